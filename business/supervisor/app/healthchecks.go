package app

import (
	"context"
	"fmt"
	"time"

	mdapp "github.com/cryptoproxy/mktproxy/business/marketdata/app"
	"github.com/cryptoproxy/mktproxy/internal/health"
)

// TickReporter is the minimal contract RegisterHealthChecks needs from a
// RestFetcherTask to report its own freshness; *restapp.Fetcher satisfies
// it. A RestFetcherTask that doesn't (the futures-only REST pass is
// absent for spot-only deployments) is simply skipped.
type TickReporter interface {
	LastTick() (at time.Time, ok bool)
}

// RegisterHealthChecks wires one health.Server check per live session
// (healthy while Subscribed and not idle past idleThreshold, mirroring
// RestartChecker's own idle test) plus one for the RestFetcher's last
// completed pass, if fetcher reports ticks at all.
func (sup *Supervisor) RegisterHealthChecks(hs *health.Server, fetcher RestFetcherTask, idleThreshold time.Duration) {
	for _, name := range sup.connectionNames() {
		n := name
		hs.RegisterCheck(fmt.Sprintf("session.%s", n), func(ctx context.Context) (bool, string) {
			sup.mu.Lock()
			slot := sup.sessions[n]
			sup.mu.Unlock()
			if slot == nil || slot.session == nil {
				return false, "not yet started"
			}
			return sessionHealthy(slot.session, idleThreshold)
		})
	}

	if fetcher == nil {
		return
	}
	reporter, ok := fetcher.(TickReporter)
	if !ok {
		return
	}
	hs.RegisterCheck("rest_fetcher", func(ctx context.Context) (bool, string) {
		at, tickOK := reporter.LastTick()
		if at.IsZero() {
			return false, "no pass completed yet"
		}
		if !tickOK {
			return false, fmt.Sprintf("last pass at %s had failed symbols", at.UTC().Format(time.RFC3339))
		}
		return true, fmt.Sprintf("last pass at %s", at.UTC().Format(time.RFC3339))
	})
}

func sessionHealthy(session *mdapp.Session, idleThreshold time.Duration) (bool, string) {
	if session.State() != mdapp.StateSubscribed {
		return false, fmt.Sprintf("state=%v", session.State())
	}
	lastMsg := session.LastMessageAt()
	if lastMsg.IsZero() {
		return true, "subscribed, awaiting first message"
	}
	idleFor := time.Since(lastMsg)
	if idleThreshold > 0 && idleFor >= idleThreshold {
		return false, fmt.Sprintf("idle for %s", idleFor)
	}
	return true, fmt.Sprintf("last message %s ago", idleFor)
}

func (sup *Supervisor) connectionNames() []string {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	out := make([]string, 0, len(sup.sessions))
	for name := range sup.sessions {
		out = append(out, name)
	}
	return out
}
