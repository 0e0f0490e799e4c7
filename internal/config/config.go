// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Exchange is the CLI-selectable exchange/market combination.
type Exchange string

const (
	ExchangeBinance        Exchange = "binance"
	ExchangeBinanceFutures Exchange = "binance-futures"
	ExchangeOkex           Exchange = "okex"
	ExchangeOkexSwap       Exchange = "okex-swap"
	ExchangeBybit          Exchange = "bybit"
	ExchangeBybitSpot      Exchange = "bybit-spot"
)

func (e Exchange) valid() bool {
	switch e {
	case ExchangeBinance, ExchangeBinanceFutures, ExchangeOkex, ExchangeOkexSwap, ExchangeBybit, ExchangeBybitSpot:
		return true
	}
	return false
}

// IsBinance reports whether e is one of the two Binance markets.
func (e Exchange) IsBinance() bool {
	return e == ExchangeBinance || e == ExchangeBinanceFutures
}

// IsFutures reports whether e is a derivatives market (drives whether the
// RestFetcher and SAPI auth are wired up for this process).
func (e Exchange) IsFutures() bool {
	return e == ExchangeBinanceFutures || e == ExchangeOkexSwap
}

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	Streams   []StreamConfig  `mapstructure:"streams"`
	Rest      RestConfig      `mapstructure:"rest"`
	Transport TransportConfig `mapstructure:"transport"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// ExchangeConfig selects which exchange this process runs against and
// the REST base URLs needed to reach it. Selected/BinanceSpotURL/
// BinanceFuturesURL are populated from CLI flags, not the config file
// (see ApplyCLIFlags) — mapstructure tags are kept so the file can seed
// defaults in tests and local runs.
type ExchangeConfig struct {
	Selected          Exchange `mapstructure:"selected"`
	BinanceSpotURL    string   `mapstructure:"binance_spot_url"`
	BinanceFuturesURL string   `mapstructure:"binance_futures_url"`
}

// StreamConfig describes one WsSession: which exchange/stream_kind it
// belongs to, where to dial, and the opaque subscribe payload to send
// as the first text frame after the handshake.
type StreamConfig struct {
	Name             string `mapstructure:"name"`
	Exchange         string `mapstructure:"exchange"`
	Kind             string `mapstructure:"kind"` // trade | depth | kline | derivatives | signal
	URL              string `mapstructure:"url"`
	SubscribePayload string `mapstructure:"subscribe_payload"`
	Futures          bool   `mapstructure:"futures"`
	SignalSource     string `mapstructure:"signal_source"` // ipc | tcp
	// Symbol is required for OKX/Bybit kline streams, whose wire payload
	// carries no instrument identifier of its own (one WS subscription
	// per symbol); Binance's combined kline stream ignores it.
	Symbol string `mapstructure:"symbol"`
}

// SAPIConfig holds Ed25519-authenticated SAPI call configuration.
type SAPIConfig struct {
	APIKey             string `mapstructure:"-"` // BINANCE_API_KEY
	PrivateKeyPath     string `mapstructure:"-"` // BINANCE_PRIVATE_KEY_PATH
	PrivateKeyPassword string `mapstructure:"-"` // BINANCE_PRIVATE_KEY_PASSWORD
}

// RestConfig configures the wall-clock-aligned REST aggregator.
type RestConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	ExchangeInfoPath   string        `mapstructure:"exchange_info_path"`
	RequestDelay       time.Duration `mapstructure:"request_delay"`
	RatioDelay         time.Duration `mapstructure:"ratio_delay"`
	PerCallTimeoutMax  time.Duration `mapstructure:"per_call_timeout_max"`
	MaxAttempts        int           `mapstructure:"max_attempts"`
	InterAttemptSleep  time.Duration `mapstructure:"inter_attempt_sleep"`
	PoolMaxIdlePerHost int           `mapstructure:"pool_max_idle_per_host"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute"`
	SAPI               SAPIConfig    `mapstructure:"sapi"`
}

// TransportConfig configures the two opaque outbound sinks and the
// shared fan-out bus between producers and those sinks.
type TransportConfig struct {
	TCPAddr          string        `mapstructure:"tcp_addr"`
	IPCPath          string        `mapstructure:"ipc_path"`
	FanoutBufferSize int           `mapstructure:"fanout_buffer_size"`
	IdleThreshold    time.Duration `mapstructure:"idle_threshold"`
	RestartCheckTick time.Duration `mapstructure:"restart_check_tick"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPHeaders    string `mapstructure:"otlp_headers"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

const configFileName = "mkt_cfg"

// Load loads configuration from the fixed mkt_cfg.yaml file (or
// configPath override) and environment variables. CLI flags are applied
// afterwards with ApplyCLIFlags.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("MKTPROXY")
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Rest.SAPI.APIKey = v.GetString("binance_api_key")
	cfg.Rest.SAPI.PrivateKeyPath = v.GetString("binance_private_key_path")
	cfg.Rest.SAPI.PrivateKeyPassword = v.GetString("binance_private_key_password")

	return &cfg, nil
}

// CLIFlags are the values named in the external CLI contract.
type CLIFlags struct {
	Exchange          string
	BinanceURL        string
	BinanceFuturesURL string
}

// ApplyCLIFlags overlays the required CLI flags onto cfg and validates
// the exchange-specific requirements (spot/futures base URLs required
// only for Binance markets).
func ApplyCLIFlags(cfg *Config, flags CLIFlags) error {
	exch := Exchange(flags.Exchange)
	if !exch.valid() {
		return fmt.Errorf("invalid --exchange %q", flags.Exchange)
	}
	cfg.Exchange.Selected = exch

	if exch.IsBinance() {
		if flags.BinanceURL == "" {
			return fmt.Errorf("--binance-url is required for exchange %q", exch)
		}
		if flags.BinanceFuturesURL == "" {
			return fmt.Errorf("--binance-futures-url is required for exchange %q", exch)
		}
		cfg.Exchange.BinanceSpotURL = flags.BinanceURL
		cfg.Exchange.BinanceFuturesURL = flags.BinanceFuturesURL
	}

	return cfg.Validate()
}

func bindEnvVars(v *viper.Viper) {
	v.BindEnv("app.name", "MKTPROXY_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "MKTPROXY_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "MKTPROXY_LOG_LEVEL", "LOG_LEVEL")

	v.BindEnv("rest.enabled", "MKTPROXY_REST_ENABLED")

	v.BindEnv("transport.tcp_addr", "MKTPROXY_TCP_ADDR")
	v.BindEnv("transport.ipc_path", "MKTPROXY_IPC_PATH")

	v.BindEnv("telemetry.enabled", "MKTPROXY_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "MKTPROXY_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "MKTPROXY_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")

	v.BindEnv("binance_api_key", "BINANCE_API_KEY")
	v.BindEnv("binance_private_key_path", "BINANCE_PRIVATE_KEY_PATH")
	v.BindEnv("binance_private_key_password", "BINANCE_PRIVATE_KEY_PASSWORD")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "cryptoproxy")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("rest.enabled", true)
	v.SetDefault("rest.exchange_info_path", "/fapi/v1/exchangeInfo")
	v.SetDefault("rest.request_delay", "1s")
	v.SetDefault("rest.ratio_delay", "180s")
	v.SetDefault("rest.per_call_timeout_max", "1s")
	v.SetDefault("rest.max_attempts", 2)
	v.SetDefault("rest.inter_attempt_sleep", "100ms")
	v.SetDefault("rest.pool_max_idle_per_host", 100)
	v.SetDefault("rest.rate_limit_per_minute", 1200)

	v.SetDefault("transport.fanout_buffer_size", 65536)
	v.SetDefault("transport.idle_threshold", "120s")
	v.SetDefault("transport.restart_check_tick", "30s")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "cryptoproxy")
	v.SetDefault("telemetry.prometheus_port", 9090)
}

// Validate validates the configuration beyond what CLI-flag overlay
// already checked.
func (c *Config) Validate() error {
	if !c.Exchange.Selected.valid() {
		return fmt.Errorf("exchange.selected is required")
	}
	if c.Transport.FanoutBufferSize <= 0 {
		return fmt.Errorf("transport.fanout_buffer_size must be positive")
	}
	return nil
}
