// Package supervisor implements the outermost bounded context: it turns
// every configured stream into a live Session, restarts them with
// backoff, runs the RestFetcher loop, and owns the two outbound sinks.
package supervisor

import (
	"context"

	mdapp "github.com/cryptoproxy/mktproxy/business/marketdata/app"
	mddi "github.com/cryptoproxy/mktproxy/business/marketdata/di"
	"github.com/cryptoproxy/mktproxy/business/marketdata"
	restapp "github.com/cryptoproxy/mktproxy/business/rest/app"
	restdi "github.com/cryptoproxy/mktproxy/business/rest/di"
	supapp "github.com/cryptoproxy/mktproxy/business/supervisor/app"
	supdi "github.com/cryptoproxy/mktproxy/business/supervisor/di"
	"github.com/cryptoproxy/mktproxy/internal/config"
	"github.com/cryptoproxy/mktproxy/internal/di"
	"github.com/cryptoproxy/mktproxy/internal/logger"
	"github.com/cryptoproxy/mktproxy/internal/monolith"
)

// Module implements the supervisor bounded context. It depends on the
// marketdata and rest modules having registered their services first.
type Module struct{}

// RegisterServices wires the Supervisor (with one sink per configured
// transport address and one ConnectionDescriptor per configured stream)
// and the RestartChecker.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, supdi.Supervisor, func(sr di.ServiceRegistry) *supapp.Supervisor {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		bus := sr.Get("bus").(*mdapp.Bus)
		registry := di.Get[*mdapp.Registry](sr, mddi.ParserRegistry)

		sup := supapp.New(registry, bus, log)

		if cfg.Transport.TCPAddr != "" {
			if sink, err := supapp.NewTCPSink(cfg.Transport.TCPAddr, bus.Subscribe("tcp"), log); err == nil {
				sup.AddSink(sink)
			} else {
				log.Warn(context.Background(), "tcp sink init failed", "error", err)
			}
		}
		if cfg.Transport.IPCPath != "" {
			if sink, err := supapp.NewIPCSink(cfg.Transport.IPCPath, bus.Subscribe("ipc"), log); err == nil {
				sup.AddSink(sink)
			} else {
				log.Warn(context.Background(), "ipc sink init failed", "error", err)
			}
		}

		for _, sc := range cfg.Streams {
			sup.AddConnection(marketdata.ConnectionDescriptorFor(sc))
		}

		return sup
	})

	di.RegisterToken(c, supdi.RestartChecker, func(sr di.ServiceRegistry) *supapp.RestartChecker {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		sup := di.Get[*supapp.Supervisor](sr, supdi.Supervisor)
		return supapp.NewRestartChecker(sup, cfg.Transport.IdleThreshold, cfg.Transport.RestartCheckTick, log)
	})

	return nil
}

// Startup launches the RestartChecker's ticking loop and blocks on
// nothing: the Supervisor's own Run loop is driven from main, since it
// needs the process's top-level context and must outlive every module's
// Startup call.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	checker := di.Get[*supapp.RestartChecker](mono.Services(), supdi.RestartChecker)
	go checker.Run(ctx)
	mono.Logger().Info(ctx, "supervisor module ready")
	return nil
}

// RestFetcherTaskFor adapts a possibly-nil *restapp.Fetcher (the rest
// module only builds one for futures exchanges) to the Supervisor's
// RestFetcherTask contract, returning nil when there is nothing to run.
func RestFetcherTaskFor(sr di.ServiceRegistry) supapp.RestFetcherTask {
	fetcher := di.Get[*restapp.Fetcher](sr, restdi.Fetcher)
	if fetcher == nil {
		return nil
	}
	return fetcher
}
