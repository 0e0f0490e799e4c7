// Package main is the entry point for the market-data proxy.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/cryptoproxy/mktproxy/business/marketdata"
	"github.com/cryptoproxy/mktproxy/business/rest"
	"github.com/cryptoproxy/mktproxy/business/supervisor"
	supapp "github.com/cryptoproxy/mktproxy/business/supervisor/app"
	supdi "github.com/cryptoproxy/mktproxy/business/supervisor/di"
	"github.com/cryptoproxy/mktproxy/internal/apm"
	"github.com/cryptoproxy/mktproxy/internal/config"
	"github.com/cryptoproxy/mktproxy/internal/di"
	"github.com/cryptoproxy/mktproxy/internal/health"
	"github.com/cryptoproxy/mktproxy/internal/logger"
	"github.com/cryptoproxy/mktproxy/internal/metrics"
	"github.com/cryptoproxy/mktproxy/internal/monolith"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	exchange := flag.String("exchange", "", "Exchange/market to run against (binance, binance-futures, okex, okex-swap, bybit, bybit-spot)")
	binanceURL := flag.String("binance-url", "", "Binance spot REST/WS base URL")
	binanceFuturesURL := flag.String("binance-futures-url", "", "Binance futures REST/WS base URL")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("mktproxy %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := run(ctx, *configPath, config.CLIFlags{
		Exchange:          *exchange,
		BinanceURL:        *binanceURL,
		BinanceFuturesURL: *binanceFuturesURL,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, flags config.CLIFlags) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.ApplyCLIFlags(cfg, flags); err != nil {
		return fmt.Errorf("invalid CLI flags: %w", err)
	}

	logLevel := logger.LevelInfo
	switch cfg.App.LogLevel {
	case "debug":
		logLevel = logger.LevelDebug
	case "warn":
		logLevel = logger.LevelWarn
	case "error":
		logLevel = logger.LevelError
	}
	log := logger.New(os.Stderr, logLevel, cfg.App.Name, map[string]interface{}{
		"exchange": string(cfg.Exchange.Selected),
	})
	log.Info(ctx, "starting market-data proxy",
		"version", version,
		"environment", cfg.App.Environment,
		"exchange", cfg.Exchange.Selected,
	)

	var traceProvider apm.TraceProvider
	if cfg.Telemetry.Enabled {
		if cfg.Telemetry.ServiceName != "" {
			os.Setenv("OTEL_SERVICE_NAME", cfg.Telemetry.ServiceName)
		}
		if cfg.Telemetry.OTLPEndpoint != "" {
			os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)
		}

		traceProvider = apm.NewTraceProvider(log, apm.WithProvider(apm.ZipkinProvider, log))
		log.Info(ctx, "tracing initialized", "provider", "zipkin", "endpoint", cfg.Telemetry.OTLPEndpoint)

		metrics.NewMetricProvider(
			metrics.WithServiceName(cfg.Telemetry.ServiceName),
			metrics.WithProviderConfig(metrics.ProviderCfg{
				Provider: metrics.PrometheusProvider,
			}),
		)

		port := cfg.Telemetry.PrometheusPort
		if port == 0 {
			port = 9090
		}
		go metrics.ServePrometheusMetrics(metrics.WithPort(strconv.Itoa(port)))
		log.Info(ctx, "prometheus metrics server started", "port", port)
	}
	defer func() {
		if traceProvider != nil {
			traceProvider.Stop()
		}
	}()

	healthServer := health.NewServer(8081, version)
	if err := healthServer.Start(); err != nil {
		log.Warn(ctx, "failed to start health server", "error", err)
	} else {
		log.Info(ctx, "health server started", "port", 8081)
	}
	defer healthServer.Stop(ctx)

	mono, err := monolith.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create monolith: %w", err)
	}
	defer mono.Close()

	modules := []monolith.Module{
		&marketdata.Module{},
		&rest.Module{},
		&supervisor.Module{},
	}

	if err := mono.RegisterModules(modules...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}
	if err := mono.StartModules(ctx, modules...); err != nil {
		return fmt.Errorf("failed to start modules: %w", err)
	}

	sup := di.Get[*supapp.Supervisor](mono.Services(), supdi.Supervisor)
	fetcherTask := supervisor.RestFetcherTaskFor(mono.Services())
	sup.RegisterHealthChecks(healthServer, fetcherTask, cfg.Transport.IdleThreshold)

	log.Info(ctx, "all modules started, running")
	sup.Run(ctx, fetcherTask)
	log.Info(ctx, "shutting down")
	sup.Shutdown()

	return nil
}
