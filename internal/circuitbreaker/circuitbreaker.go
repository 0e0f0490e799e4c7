// Package circuitbreaker wraps sony/gobreaker/v2 with defaults tuned for
// short, frequent external calls.
package circuitbreaker

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// Config controls breaker trip/reset behavior.
type Config struct {
	Name        string
	MaxRequests uint32        // half-open probe budget
	Interval    time.Duration // closed-state failure-count reset window
	Timeout     time.Duration // open → half-open delay
	FailureRate float64       // trip threshold, fraction of requests failed
	MinRequests uint32        // requests required before FailureRate applies
}

// DefaultConfig returns a breaker configuration suited to a single
// external dependency named name: trips after 60% failures over at
// least 5 requests, stays open 10s, allows 2 half-open probes.
func DefaultConfig(name string) Config {
	return Config{
		Name:        name,
		MaxRequests: 2,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		FailureRate: 0.6,
		MinRequests: 5,
	}
}

// CircuitBreaker guards calls returning a T.
type CircuitBreaker[T any] struct {
	cb *gobreaker.CircuitBreaker[T]
}

// New builds a CircuitBreaker from cfg.
func New[T any](cfg Config) *CircuitBreaker[T] {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRate
		},
	}
	return &CircuitBreaker[T]{cb: gobreaker.NewCircuitBreaker[T](settings)}
}

// Execute runs fn through the breaker, short-circuiting with
// gobreaker.ErrOpenState when tripped.
func (c *CircuitBreaker[T]) Execute(fn func() (T, error)) (T, error) {
	return c.cb.Execute(fn)
}

// State reports the current breaker state (closed/open/half-open).
func (c *CircuitBreaker[T]) State() gobreaker.State {
	return c.cb.State()
}
