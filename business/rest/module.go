// Package rest implements the wall-clock-aligned REST aggregator bounded
// context: the Binance futures client and the RestFetcher scheduling loop.
package rest

import (
	"context"

	mdapp "github.com/cryptoproxy/mktproxy/business/marketdata/app"
	mddi "github.com/cryptoproxy/mktproxy/business/marketdata/di"
	restapp "github.com/cryptoproxy/mktproxy/business/rest/app"
	restdi "github.com/cryptoproxy/mktproxy/business/rest/di"
	restbinance "github.com/cryptoproxy/mktproxy/business/rest/infra/binance"
	"github.com/cryptoproxy/mktproxy/internal/config"
	"github.com/cryptoproxy/mktproxy/internal/di"
	"github.com/cryptoproxy/mktproxy/internal/logger"
	"github.com/cryptoproxy/mktproxy/internal/monolith"
	"github.com/cryptoproxy/mktproxy/internal/ratelimit"
	"github.com/cryptoproxy/mktproxy/internal/symbolset"
)

// Module implements the rest bounded context. It is inert when the
// selected exchange isn't a futures market: RegisterServices still runs
// (so the DI tokens resolve to a harmless nil pair) but Startup never
// launches the Fetcher loop.
type Module struct{}

// RegisterServices wires the Binance futures Client and, on top of it,
// the Fetcher. Both are only meaningfully constructed when
// cfg.Exchange.Selected.IsFutures(); otherwise the factories return nil
// and the supervisor module's RestFetcherTaskFor turns the nil Fetcher
// into a nil task that is never run.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, restdi.Client, func(sr di.ServiceRegistry) *restbinance.Client {
		cfg := sr.Get("config").(*config.Config)
		if !cfg.Exchange.Selected.IsFutures() {
			return nil
		}
		client, err := restbinance.NewClient(cfg.Exchange.BinanceFuturesURL, restbinance.Config{
			PerCallTimeoutMax:  cfg.Rest.PerCallTimeoutMax,
			MaxAttempts:        cfg.Rest.MaxAttempts,
			InterAttemptSleep:  cfg.Rest.InterAttemptSleep,
			PoolMaxIdlePerHost: cfg.Rest.PoolMaxIdlePerHost,
			ExchangeInfoPath:   cfg.Rest.ExchangeInfoPath,
		})
		if err != nil {
			sr.Get("logger").(logger.LoggerInterface).Error(context.Background(), "rest client init failed", "error", err)
			return nil
		}
		return client
	})

	di.RegisterToken(c, restdi.Fetcher, func(sr di.ServiceRegistry) *restapp.Fetcher {
		cfg := sr.Get("config").(*config.Config)
		if !cfg.Exchange.Selected.IsFutures() || !cfg.Rest.Enabled {
			return nil
		}

		client := di.Get[*restbinance.Client](sr, restdi.Client)
		if client == nil {
			return nil
		}

		var signer *restbinance.SAPISigner
		if cfg.Rest.SAPI.APIKey != "" && cfg.Rest.SAPI.PrivateKeyPath != "" {
			s, err := restbinance.NewSAPISigner(cfg.Rest.SAPI.APIKey, cfg.Rest.SAPI.PrivateKeyPath, cfg.Rest.SAPI.PrivateKeyPassword)
			if err == nil {
				signer = s
			}
		}

		bus := sr.Get("bus").(*mdapp.Bus)
		symbols := di.Get[*symbolset.Handoff](sr, mddi.SymbolSet)
		limiter := ratelimit.New(cfg.Rest.RateLimitPerMinute)
		log := sr.Get("logger").(logger.LoggerInterface)

		return restapp.New(client, signer, bus, symbols, limiter, log, restapp.Config{
			RequestDelay: cfg.Rest.RequestDelay,
			RatioDelay:   cfg.Rest.RatioDelay,
		})
	})

	return nil
}

// Startup is a no-op: the Fetcher's Run loop is launched by the
// supervisor module, which owns the process's top-level goroutine
// lifecycle.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	mono.Logger().Info(ctx, "rest module ready")
	return nil
}
