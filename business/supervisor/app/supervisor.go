package app

import (
	"context"
	"sync"
	"time"

	mdapp "github.com/cryptoproxy/mktproxy/business/marketdata/app"
	"github.com/cryptoproxy/mktproxy/internal/logger"
)

const (
	initialBackoff  = 1 * time.Second
	maxBackoff      = 30 * time.Second
	resetAfterUptime = 60 * time.Second
	lossLogInterval = 3 * time.Second
)

// RestFetcherTask is the minimal contract the Supervisor needs from the
// REST aggregator to launch and restart it like any other task.
type RestFetcherTask interface {
	Run(ctx context.Context)
}

// Supervisor builds one ConnectionDescriptor per configured
// (exchange, stream_kind), hands each to a Session, runs the RestFetcher
// (futures exchanges only), and owns the two sink tasks plus the single
// shutdown signal for the whole process.
type Supervisor struct {
	registry *mdapp.Registry
	bus      *mdapp.Bus
	log      logger.LoggerInterface

	sinks []Sink

	mu       sync.Mutex
	sessions map[string]*sessionSlot
}

type sessionSlot struct {
	desc    mdapp.ConnectionDescriptor
	session *mdapp.Session
	backoff time.Duration
}

// New builds a Supervisor around registry and bus. Sinks are attached
// with AddSink before Run.
func New(registry *mdapp.Registry, bus *mdapp.Bus, log logger.LoggerInterface) *Supervisor {
	return &Supervisor{
		registry: registry,
		bus:      bus,
		log:      log,
		sessions: make(map[string]*sessionSlot),
	}
}

// AddSink registers a sink task to be run alongside the sessions.
func (sup *Supervisor) AddSink(sink Sink) {
	sup.sinks = append(sup.sinks, sink)
}

// AddConnection registers a ConnectionDescriptor; Run will launch and
// forever restart its Session according to the backoff policy.
func (sup *Supervisor) AddConnection(desc mdapp.ConnectionDescriptor) {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	sup.sessions[desc.LogicalName] = &sessionSlot{desc: desc, backoff: initialBackoff}
}

// Sessions returns the live Session handles, keyed by logical name, for
// the RestartChecker to inspect.
func (sup *Supervisor) Sessions() map[string]*mdapp.Session {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	out := make(map[string]*mdapp.Session, len(sup.sessions))
	for name, slot := range sup.sessions {
		if slot.session != nil {
			out[name] = slot.session
		}
	}
	return out
}

// Run launches every registered connection's session loop, every sink,
// and (if provided) the RestFetcher, blocking until ctx is cancelled.
func (sup *Supervisor) Run(ctx context.Context, restFetcher RestFetcherTask) {
	var wg sync.WaitGroup

	for _, sink := range sup.sinks {
		wg.Add(1)
		s := sink
		go func() {
			defer wg.Done()
			s.Run(ctx)
		}()
	}

	sup.mu.Lock()
	names := make([]string, 0, len(sup.sessions))
	for name := range sup.sessions {
		names = append(names, name)
	}
	sup.mu.Unlock()

	for _, name := range names {
		wg.Add(1)
		n := name
		go func() {
			defer wg.Done()
			sup.runSessionLoop(ctx, n)
		}()
	}

	if restFetcher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sup.runRestFetcher(ctx, restFetcher)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		sup.logLossCounters(ctx)
	}()

	wg.Wait()

	for _, sink := range sup.sinks {
		sink.Close()
	}
}

// runSessionLoop recreates the named session after every Closed
// transition, applying exponential backoff starting at 1s, doubling to
// a 30s cap, reset after 60s of continuous Subscribed uptime.
func (sup *Supervisor) runSessionLoop(ctx context.Context, name string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		sup.mu.Lock()
		slot := sup.sessions[name]
		sup.mu.Unlock()

		session := mdapp.NewSession(slot.desc, sup.registry, sup.bus, sup.log)
		sup.mu.Lock()
		slot.session = session
		sup.mu.Unlock()

		done := make(chan struct{})
		go func() {
			session.Run(ctx)
			close(done)
		}()

		select {
		case <-ctx.Done():
			session.Shutdown()
			<-done
			return
		case <-done:
		}

		if session.SubscribedUptime() >= resetAfterUptime {
			slot.backoff = initialBackoff
		}

		if session.FatalErr() == nil {
			// cooperative shutdown (such as the RestartChecker's idle
			// restart): rebuild at once; the loop head returns if ctx is done
			continue
		}

		sup.log.Warn(ctx, "session closed, restarting",
			"session", name, "backoff", slot.backoff, "cause", session.FatalErr())

		select {
		case <-ctx.Done():
			return
		case <-time.After(slot.backoff):
		}

		slot.backoff *= 2
		if slot.backoff > maxBackoff {
			slot.backoff = maxBackoff
		}
	}
}

func (sup *Supervisor) runRestFetcher(ctx context.Context, task RestFetcherTask) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		done := make(chan struct{})
		go func() {
			task.Run(ctx)
			close(done)
		}()
		select {
		case <-ctx.Done():
			<-done
			return
		case <-done:
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialBackoff):
		}
	}
}

func (sup *Supervisor) logLossCounters(ctx context.Context) {
	ticker := time.NewTicker(lossLogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name, loss := range sup.bus.LossSnapshot() {
				if loss > 0 {
					sup.log.Warn(ctx, "receiver loss counter", "receiver", name, "dropped", loss)
				}
			}
		}
	}
}

// Shutdown requests every live session to cooperatively drain and close.
func (sup *Supervisor) Shutdown() {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	for _, slot := range sup.sessions {
		if slot.session != nil {
			slot.session.Shutdown()
		}
	}
}
