package app

import (
	"context"
	"time"

	mdapp "github.com/cryptoproxy/mktproxy/business/marketdata/app"
	"github.com/cryptoproxy/mktproxy/internal/logger"
)

const defaultTickInterval = 30 * time.Second

// RestartChecker is the periodic idle-timeout watchdog: every tick it
// compares now - LastMessageAt() against a configured idle threshold for
// every currently Subscribed session, and asks any stalled session to
// cooperatively shut down so the Supervisor rebuilds it.
type RestartChecker struct {
	supervisor   *Supervisor
	idleThreshold time.Duration
	tickInterval  time.Duration
	log           logger.LoggerInterface
}

// NewRestartChecker builds a checker that flags sessions idle past
// idleThreshold, ticking every tickInterval (falling back to a 30s
// default when tickInterval is zero, as an unconfigured value would be).
func NewRestartChecker(supervisor *Supervisor, idleThreshold, tickInterval time.Duration, log logger.LoggerInterface) *RestartChecker {
	if tickInterval <= 0 {
		tickInterval = defaultTickInterval
	}
	return &RestartChecker{
		supervisor:    supervisor,
		idleThreshold: idleThreshold,
		tickInterval:  tickInterval,
		log:           log,
	}
}

// Run blocks until ctx is cancelled, checking every session on each tick.
func (c *RestartChecker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkAll(ctx)
		}
	}
}

func (c *RestartChecker) checkAll(ctx context.Context) {
	for name, session := range c.supervisor.Sessions() {
		if session.State() != mdapp.StateSubscribed {
			continue
		}
		lastMsg := session.LastMessageAt()
		if lastMsg.IsZero() {
			continue
		}
		idleFor := time.Since(lastMsg)
		if idleFor < c.idleThreshold {
			continue
		}
		c.log.Warn(ctx, "session idle past threshold, requesting restart",
			"session", name, "idle_for", idleFor, "threshold", c.idleThreshold)
		session.Shutdown()
	}
}
