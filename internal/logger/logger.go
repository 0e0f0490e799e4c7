// Package logger provides structured, leveled logging for the proxy,
// built on zerolog.
package logger

import (
	"context"
	"io"

	"github.com/rs/zerolog"
)

// Level is a logging severity level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) zerologLevel() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// LoggerInterface is the logging contract consumed across business packages.
type LoggerInterface interface {
	Debug(ctx context.Context, msg string, kv ...interface{})
	Info(ctx context.Context, msg string, kv ...interface{})
	Warn(ctx context.Context, msg string, kv ...interface{})
	Error(ctx context.Context, msg string, kv ...interface{})
}

// Logger is the zerolog-backed LoggerInterface implementation.
type Logger struct {
	zl zerolog.Logger
}

// New builds a Logger writing to w at the given level, tagging every
// entry with service=name. fields are attached to every log line (may be
// nil).
func New(w io.Writer, level Level, name string, fields map[string]interface{}) *Logger {
	zl := zerolog.New(w).With().Timestamp().Str("service", name).Logger().Level(level.zerologLevel())
	if len(fields) > 0 {
		ctx := zl.With()
		for k, v := range fields {
			ctx = ctx.Interface(k, v)
		}
		zl = ctx.Logger()
	}
	return &Logger{zl: zl}
}

func traceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(traceIDKey{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

type traceIDKey struct{}

// WithTraceID attaches a trace id to ctx for subsequent log calls.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

func (l *Logger) event(ctx context.Context, ev *zerolog.Event, msg string, kv []interface{}) {
	if tid := traceIDFromContext(ctx); tid != "" {
		ev = ev.Str("trace_id", tid)
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ev = ev.Interface(key, kv[i+1])
	}
	ev.Msg(msg)
}

func (l *Logger) Debug(ctx context.Context, msg string, kv ...interface{}) {
	l.event(ctx, l.zl.Debug(), msg, kv)
}

func (l *Logger) Info(ctx context.Context, msg string, kv ...interface{}) {
	l.event(ctx, l.zl.Info(), msg, kv)
}

func (l *Logger) Warn(ctx context.Context, msg string, kv ...interface{}) {
	l.event(ctx, l.zl.Warn(), msg, kv)
}

func (l *Logger) Error(ctx context.Context, msg string, kv ...interface{}) {
	l.event(ctx, l.zl.Error(), msg, kv)
}
