package app

import (
	"context"
	"testing"
	"time"

	mdapp "github.com/cryptoproxy/mktproxy/business/marketdata/app"
)

func TestRestartChecker_Run_ReturnsPromptlyOnContextCancel(t *testing.T) {
	registry := mdapp.NewRegistry()
	bus := mdapp.NewBus(1)
	sup := New(registry, bus, testLogger())
	checker := NewRestartChecker(sup, time.Minute, time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not return within 1s of context cancellation")
	}
}

func TestRestartChecker_CheckAll_SkipsSessionsNotYetSubscribed(t *testing.T) {
	registry := mdapp.NewRegistry()
	bus := mdapp.NewBus(1)
	sup := New(registry, bus, testLogger())
	sup.AddConnection(mdapp.ConnectionDescriptor{LogicalName: "binance-trade"})

	slot := sup.sessions["binance-trade"]
	slot.session = mdapp.NewSession(slot.desc, registry, bus, testLogger())

	checker := NewRestartChecker(sup, time.Millisecond, time.Minute, testLogger())
	checker.checkAll(context.Background())

	if got := slot.session.State(); got != mdapp.StateDisconnected {
		t.Fatalf("session state = %v, want unchanged StateDisconnected", got)
	}
}

func TestRestartChecker_CheckAll_SkipsSessionWithNoLastMessage(t *testing.T) {
	registry := mdapp.NewRegistry()
	bus := mdapp.NewBus(1)
	sup := New(registry, bus, testLogger())
	sup.AddConnection(mdapp.ConnectionDescriptor{LogicalName: "binance-trade"})

	// A freshly-built Session has no client yet, so LastMessageAt() is
	// the zero time regardless of its state; checkAll must treat that
	// as "never checked" rather than "infinitely idle".
	slot := sup.sessions["binance-trade"]
	session := mdapp.NewSession(slot.desc, registry, bus, testLogger())
	slot.session = session

	checker := NewRestartChecker(sup, time.Nanosecond, time.Minute, testLogger())
	checker.checkAll(context.Background())

	if !session.LastMessageAt().IsZero() {
		t.Fatal("expected LastMessageAt() to remain the zero time for a session with no client")
	}
}
