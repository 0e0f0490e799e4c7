package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cryptoproxy/mktproxy/internal/apperror"
	"github.com/cryptoproxy/mktproxy/internal/logger"
	"github.com/cryptoproxy/mktproxy/internal/wsconn"
)

const tracerName = "github.com/cryptoproxy/mktproxy/business/marketdata/app"

// SessionState mirrors the spec's state machine: Disconnected →
// Connecting → (Subscribed | Disconnected) → Draining → Closed. Only
// Subscribed produces payloads; transitions are single-threaded per
// session (only Run's goroutine ever calls setState; Shutdown only
// closes the shutdown channel that goroutine observes).
type SessionState string

const (
	StateDisconnected SessionState = "disconnected"
	StateConnecting   SessionState = "connecting"
	StateSubscribed   SessionState = "subscribed"
	StateDraining     SessionState = "draining"
	StateClosed       SessionState = "closed"
)

// ConnectionDescriptor is the immutable (except for embedded transport
// state) tuple a WsSession is built from.
type ConnectionDescriptor struct {
	ExchangeTag      string
	LogicalName      string
	URL              string
	SubscribePayload string
	StreamKind       string // binds this session to one ParserRegistry entry
}

const (
	maxConnectAttempts = 5
	connectRetrySleep  = 1 * time.Second
	drainTimeout       = 1 * time.Second
)

// Session owns one outbound WebSocket connection for the lifetime of
// one ConnectionDescriptor. A Session is single-use: once it reaches
// Closed the Supervisor discards it and builds a fresh one.
type Session struct {
	desc     ConnectionDescriptor
	registry *Registry
	bus      *Bus
	log      logger.LoggerInterface
	tracer   trace.Tracer

	client *wsconn.Client

	mu       sync.RWMutex
	state    SessionState
	fatalErr error

	subscribedAt time.Time
	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	closedCh     chan struct{}
}

// NewSession builds a Session bound to desc, publishing decoded frames
// onto bus and dispatching raw payloads through registry.
func NewSession(desc ConnectionDescriptor, registry *Registry, bus *Bus, log logger.LoggerInterface) *Session {
	return &Session{
		desc:       desc,
		registry:   registry,
		bus:        bus,
		log:        log,
		tracer:     otel.Tracer(tracerName),
		state:      StateDisconnected,
		shutdownCh: make(chan struct{}),
		closedCh:   make(chan struct{}),
	}
}

// State returns the current SessionState.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// FatalErr returns the error that drove this session to Closed, if the
// transition was fatal (nil for a cooperative shutdown).
func (s *Session) FatalErr() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fatalErr
}

// SubscribedUptime reports how long the session has been continuously
// Subscribed, used by the Supervisor to decide whether to reset its
// backoff counter.
func (s *Session) SubscribedUptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateSubscribed || s.subscribedAt.IsZero() {
		return 0
	}
	return time.Since(s.subscribedAt)
}

// LastMessageAt reports when the last payload was read, for the
// RestartChecker's idle-timeout comparison. The zero time means no
// payload has been read yet.
func (s *Session) LastMessageAt() time.Time {
	s.mu.RLock()
	client := s.client
	s.mu.RUnlock()
	if client == nil {
		return time.Time{}
	}
	return client.LastMessageAt()
}

// Done is closed once the session reaches Closed.
func (s *Session) Done() <-chan struct{} { return s.closedCh }

// Shutdown asserts the cooperative shutdown signal: the session drains
// within drainTimeout and moves to Closed without a fatal error.
func (s *Session) Shutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	if state == StateSubscribed {
		s.subscribedAt = time.Now()
	}
	s.state = state
	s.mu.Unlock()
}

// Run executes the full session lifecycle: connect (with the session's
// own bounded retry), subscribe, read until failure or shutdown, then
// drain. It returns once the session has reached Closed; the caller
// (Supervisor) is responsible for deciding whether and when to build a
// replacement Session.
func (s *Session) Run(ctx context.Context) {
	defer close(s.closedCh)
	defer s.setState(StateClosed)

	client, err := s.connect(ctx)
	if err != nil {
		s.mu.Lock()
		s.fatalErr = err
		s.mu.Unlock()
		s.log.Error(ctx, "session failed to connect", "session", s.desc.LogicalName, "error", err)
		return
	}
	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
	defer client.Close()

	if err := client.Send(ctx, []byte(s.desc.SubscribePayload)); err != nil {
		s.mu.Lock()
		s.fatalErr = apperror.New(apperror.CodeWsSubscribeFailed, apperror.WithCause(err))
		s.mu.Unlock()
		return
	}
	s.setState(StateSubscribed)
	s.log.Info(ctx, "session subscribed", "session", s.desc.LogicalName, "url", s.desc.URL)

	s.readUntilDone(ctx, client)
}

// connect implements the spec's connect procedure: parse URL (left to
// wsconn.Client.Connect), attempt up to maxConnectAttempts with
// connectRetrySleep between tries, classifying each failure as
// retry-eligible or fatal.
func (s *Session) connect(ctx context.Context) (*wsconn.Client, error) {
	s.setState(StateConnecting)

	cfg := wsconn.DefaultConfig(s.desc.URL, s.desc.LogicalName)
	// Session-level retries are handled below. wsconn has no setting that
	// turns its own auto-reconnect off (0 means unbounded), so cap it at one
	// attempt; readUntilDone ends the session once the client leaves the
	// Connected state, so Closed is reachable and the Supervisor owns the
	// restart-with-backoff decision.
	cfg.MaxReconnects = 1

	var lastErr error
	for attempt := 1; attempt <= maxConnectAttempts; attempt++ {
		client, err := wsconn.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("wsconn.New: %w", err)
		}

		ctx, span := s.tracer.Start(ctx, "wssession.connect",
			trace.WithAttributes(
				attribute.String("session", s.desc.LogicalName),
				attribute.Int("attempt", attempt),
			))
		err = client.Connect(ctx)
		span.End()

		if err == nil {
			return client, nil
		}
		lastErr = err

		if !wsconn.IsRetryableDialError(err) {
			return nil, apperror.New(apperror.CodeWsConnectFailed, apperror.WithCause(err),
				apperror.WithContext("fatal connect error, not retrying"))
		}

		s.log.Warn(ctx, "connect attempt failed, retrying",
			"session", s.desc.LogicalName, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.shutdownCh:
			return nil, apperror.New(apperror.CodeShutdown)
		case <-time.After(connectRetrySleep):
		}
	}

	return nil, apperror.New(apperror.CodeWsConnectFailed, apperror.WithCause(lastErr),
		apperror.WithContext("exhausted connect retries"))
}

// readUntilDone forwards every payload to the bound ParserRegistry
// entry until the connection fails (checked after each payload and once a
// second), the session is shut down, or the process asks for shutdown.
func (s *Session) readUntilDone(ctx context.Context, client *wsconn.Client) {
	poll := time.NewTicker(time.Second)
	defer poll.Stop()
	for {
		select {
		case <-poll.C:
			if !client.IsConnected() {
				s.setState(StateDraining)
				s.mu.Lock()
				s.fatalErr = apperror.New(apperror.CodeWsReadFailed)
				s.mu.Unlock()
				return
			}

		case <-s.shutdownCh:
			s.setState(StateDraining)
			done := make(chan struct{})
			go func() { client.Close(); close(done) }()
			select {
			case <-done:
			case <-time.After(drainTimeout):
			}
			return

		case <-ctx.Done():
			s.setState(StateDraining)
			client.Close()
			return

		case payload, ok := <-client.Messages():
			if !ok {
				s.setState(StateDraining)
				s.mu.Lock()
				s.fatalErr = apperror.New(apperror.CodeWsClosed)
				s.mu.Unlock()
				return
			}
			s.dispatch(ctx, payload)

			if !client.IsConnected() && client.State() != wsconn.StateReconnecting {
				s.setState(StateDraining)
				s.mu.Lock()
				s.fatalErr = apperror.New(apperror.CodeWsReadFailed)
				s.mu.Unlock()
				return
			}
		}
	}
}

func (s *Session) dispatch(ctx context.Context, payload []byte) {
	n, matched := s.registry.Parse(s.desc.ExchangeTag, s.desc.StreamKind, payload, s.bus.Publish)
	if !matched {
		s.log.Warn(ctx, "no parser registered for stream",
			"exchange", s.desc.ExchangeTag, "kind", s.desc.StreamKind)
		return
	}
	if n == 0 {
		s.log.Debug(ctx, "payload dropped by parser", "session", s.desc.LogicalName)
	}
}
