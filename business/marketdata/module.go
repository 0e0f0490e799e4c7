// Package marketdata implements the ingest-normalize bounded context: the
// ParserRegistry, the process-wide FanoutBus, and the per-stream
// ConnectionDescriptors the Supervisor turns into live Sessions.
package marketdata

import (
	"context"

	"github.com/cryptoproxy/mktproxy/business/marketdata/app"
	mddi "github.com/cryptoproxy/mktproxy/business/marketdata/di"
	"github.com/cryptoproxy/mktproxy/business/marketdata/domain"
	"github.com/cryptoproxy/mktproxy/business/marketdata/infra/binance"
	"github.com/cryptoproxy/mktproxy/business/marketdata/infra/bybit"
	"github.com/cryptoproxy/mktproxy/business/marketdata/infra/okx"
	"github.com/cryptoproxy/mktproxy/internal/config"
	"github.com/cryptoproxy/mktproxy/internal/di"
	"github.com/cryptoproxy/mktproxy/internal/monolith"
	"github.com/cryptoproxy/mktproxy/internal/symbolset"
)

// Module implements the marketdata bounded context.
type Module struct{}

// RegisterServices wires the ParserRegistry (built once from
// cfg.Streams — every entry becomes one dispatch-table row) and the
// SymbolSet Handoff shared with the rest module's RestFetcher.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, mddi.SymbolSet, func(sr di.ServiceRegistry) *symbolset.Handoff {
		return symbolset.NewHandoff()
	})

	di.RegisterToken(c, mddi.ParserRegistry, func(sr di.ServiceRegistry) *app.Registry {
		cfg := sr.Get("config").(*config.Config)
		symbols := di.Get[*symbolset.Handoff](sr, mddi.SymbolSet)

		registry := app.NewRegistry()
		for _, sc := range cfg.Streams {
			parser := buildParser(sc, symbols)
			if parser == nil {
				continue
			}
			registry.Register(sc.Exchange, streamRegistryKey(sc), parser)
		}
		return registry
	})

	return nil
}

// Startup is a no-op: the registry and symbol handoff are fully built
// during RegisterServices; live sessions are launched by the supervisor
// module once every module has registered.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	mono.Logger().Info(ctx, "marketdata module ready")
	return nil
}

// streamRegistryKey is the ParserRegistry dispatch key for one
// StreamConfig entry. Most stream kinds key purely on their kind;
// OKX/Bybit kline streams carry no symbol in their payload (one
// subscription per instrument) so their key also folds in the
// configured symbol to keep multiple kline streams from colliding.
func streamRegistryKey(sc config.StreamConfig) string {
	if sc.Kind == "kline" && sc.Symbol != "" && !config.Exchange(sc.Exchange).IsBinance() {
		return sc.Kind + ":" + sc.Symbol
	}
	return sc.Kind
}

// ConnectionDescriptorFor turns one StreamConfig into the
// ConnectionDescriptor the supervisor hands to a Session, using the same
// dispatch key buildParser registered under.
func ConnectionDescriptorFor(sc config.StreamConfig) app.ConnectionDescriptor {
	return app.ConnectionDescriptor{
		ExchangeTag:      sc.Exchange,
		LogicalName:      sc.Name,
		URL:              sc.URL,
		SubscribePayload: sc.SubscribePayload,
		StreamKind:       streamRegistryKey(sc),
	}
}

func signalSourceFor(sc config.StreamConfig) domain.SignalSource {
	if sc.SignalSource == "tcp" {
		return domain.SignalSourceTCP
	}
	return domain.SignalSourceIPC
}

// buildParser constructs the ParserFunc bound to one StreamConfig entry,
// dispatching on exchange family then stream kind. Returns nil for a
// kind this exchange family doesn't implement — the entry is then
// silently skipped (a wiring mistake a startup log line would catch, not
// a parse failure).
func buildParser(sc config.StreamConfig, symbols *symbolset.Handoff) app.ParserFunc {
	exch := config.Exchange(sc.Exchange)

	switch {
	case exch.IsBinance():
		futures := sc.Futures || exch == config.ExchangeBinanceFutures
		switch sc.Kind {
		case "trade":
			return binance.NewTradeParserWithSBE()
		case "depth":
			return binance.NewDepthDiffParserWithSBE(futures)
		case "snapshot":
			return binance.NewSnapshotParser()
		case "kline":
			return binance.NewKlineParser()
		case "derivatives":
			return binance.NewDerivativesMetricParser(symbols)
		case "signal":
			return binance.NewSignalParser(signalSourceFor(sc))
		}

	case exch == config.ExchangeOkex || exch == config.ExchangeOkexSwap:
		switch sc.Kind {
		case "trade":
			return okx.NewTradeParser()
		case "depth":
			return okx.NewDepthParser()
		case "kline":
			return okx.NewKlineParser(sc.Symbol)
		case "mark_price":
			return okx.NewMarkPriceParser()
		case "index_price":
			return okx.NewIndexPriceParser()
		case "funding_rate":
			return okx.NewFundingRateParser()
		case "liquidation":
			return okx.NewLiquidationParser()
		case "signal":
			return okx.NewSignalParser(signalSourceFor(sc))
		}

	case exch == config.ExchangeBybit || exch == config.ExchangeBybitSpot:
		switch sc.Kind {
		case "trade":
			return bybit.NewTradeParser()
		case "depth":
			return bybit.NewDepthParser()
		case "kline":
			return bybit.NewKlineParser(sc.Symbol)
		case "derivatives":
			return bybit.NewDerivativesMetricParser()
		case "liquidation":
			return bybit.NewLiquidationParser()
		case "signal":
			return bybit.NewSignalParser(signalSourceFor(sc))
		}
	}

	return nil
}
