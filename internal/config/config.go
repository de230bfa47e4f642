// Package config loads engine configuration from a YAML file, an optional
// .env file and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"solana-trade-engine/internal/logger"
	"solana-trade-engine/internal/notify"
	"solana-trade-engine/internal/safety"
)

// Config is the complete engine configuration.
type Config struct {
	Solana    SolanaConfig    `yaml:"solana"`
	Jupiter   JupiterConfig   `yaml:"jupiter"`
	Pump      PumpConfig      `yaml:"pump"`
	Safety    safety.Config   `yaml:"safety"`
	Trigger   TriggerConfig   `yaml:"trigger"`
	Portfolio PortfolioConfig `yaml:"portfolio"`
	Storage   StorageConfig   `yaml:"storage"`
	Publish   PublishConfig   `yaml:"publish"`
	Account   AccountConfig   `yaml:"account"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       logger.Config   `yaml:"log"`
}

// SolanaConfig configures the chain transports.
type SolanaConfig struct {
	RPCEndpoint    string        `yaml:"rpc_endpoint"`
	WSEndpoint     string        `yaml:"ws_endpoint"`
	Commitment     string        `yaml:"commitment"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
	ConfirmPoll    time.Duration `yaml:"confirm_poll"`
}

// JupiterConfig configures the aggregator and price API clients.
// Empty URLs select the client defaults.
type JupiterConfig struct {
	QuoteURL            string  `yaml:"quote_url"`
	SwapURL             string  `yaml:"swap_url"`
	PriceURL            string  `yaml:"price_url"`
	APIKey              string  `yaml:"api_key"`
	RateLimit           float64 `yaml:"rate_limit"` // requests per second
	Burst               int     `yaml:"burst"`
	PriorityFeeLamports uint64  `yaml:"priority_fee_lamports"`
}

// PumpConfig configures the bonding-curve path.
type PumpConfig struct {
	TradeURL       string  `yaml:"trade_url"`
	RateLimit      float64 `yaml:"rate_limit"`
	FeeBps         int     `yaml:"fee_bps"`
	SlippageBps    int     `yaml:"slippage_bps"`
	PriorityFeeSol float64 `yaml:"priority_fee_sol"`
}

// TriggerConfig configures the trigger poll loop.
type TriggerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	RecordPrices bool          `yaml:"record_prices"` // requires storage.clickhouse_dsn
}

// PortfolioConfig configures the valuation loop.
type PortfolioConfig struct {
	ValueInterval time.Duration `yaml:"value_interval"`
}

// StorageConfig selects the trade-record and price-observation backends.
// PostgresDSN wins over SQLitePath; with neither set records stay in memory.
type StorageConfig struct {
	PostgresDSN      string `yaml:"postgres_dsn"`
	PostgresMaxConns int32  `yaml:"postgres_max_conns"`
	ClickhouseDSN    string `yaml:"clickhouse_dsn"`
	SQLitePath       string `yaml:"sqlite_path"`
}

// Publish drivers
const (
	PublishNone  = "none"
	PublishRedis = "redis"
	PublishAMQP  = "amqp"
)

// PublishConfig selects the event publisher.
type PublishConfig struct {
	Driver string             `yaml:"driver"`
	Redis  notify.RedisConfig `yaml:"redis"`
	AMQP   notify.AMQPConfig  `yaml:"amqp"`
}

// AccountConfig identifies the account run by cmd/engine.
type AccountConfig struct {
	ID           string `yaml:"id"`
	EncryptedKey string `yaml:"encrypted_key"`
	WalletSecret string `yaml:"-"` // env only
}

// MetricsConfig configures the HTTP metrics endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used for keys absent from every source.
func Default() Config {
	return Config{
		Solana: SolanaConfig{
			Commitment:     "confirmed",
			Timeout:        30 * time.Second,
			MaxRetries:     3,
			ConfirmTimeout: 60 * time.Second,
			ConfirmPoll:    500 * time.Millisecond,
		},
		Jupiter: JupiterConfig{
			RateLimit: 5,
			Burst:     5,
		},
		Pump: PumpConfig{
			RateLimit:      2,
			FeeBps:         100,
			SlippageBps:    500,
			PriorityFeeSol: 0.0005,
		},
		Safety:    safety.DefaultConfig(),
		Trigger:   TriggerConfig{PollInterval: 10 * time.Second},
		Portfolio: PortfolioConfig{ValueInterval: time.Minute},
		Publish:   PublishConfig{Driver: PublishNone},
		Metrics:   MetricsConfig{Addr: ":9090"},
		Log:       logger.Config{Level: "info", Format: "text", Output: "stdout"},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if it
// exists), then environment variables (a .env file in the working directory
// is loaded first without overriding the real environment).
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config %q: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"SOLANA_RPC_ENDPOINT":   &cfg.Solana.RPCEndpoint,
		"SOLANA_WS_ENDPOINT":    &cfg.Solana.WSEndpoint,
		"SOLANA_COMMITMENT":     &cfg.Solana.Commitment,
		"POSTGRES_DSN":          &cfg.Storage.PostgresDSN,
		"CLICKHOUSE_DSN":        &cfg.Storage.ClickhouseDSN,
		"SQLITE_PATH":           &cfg.Storage.SQLitePath,
		"REDIS_ADDR":            &cfg.Publish.Redis.Address,
		"AMQP_URL":              &cfg.Publish.AMQP.URL,
		"PUBLISH_DRIVER":        &cfg.Publish.Driver,
		"WALLET_SECRET":         &cfg.Account.WalletSecret,
		"ACCOUNT_ID":            &cfg.Account.ID,
		"ACCOUNT_ENCRYPTED_KEY": &cfg.Account.EncryptedKey,
		"JUPITER_API_KEY":       &cfg.Jupiter.APIKey,
		"METRICS_ADDR":          &cfg.Metrics.Addr,
		"LOG_LEVEL":             &cfg.Log.Level,
		"LOG_FORMAT":            &cfg.Log.Format,
	}
	for key, dst := range strs {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}

	floats := map[string]*float64{
		"SAFETY_MAX_SINGLE_ORDER_SOL": &cfg.Safety.MaxSingleOrderSol,
		"SAFETY_DAILY_LOSS_LIMIT_SOL": &cfg.Safety.DailyLossLimitSol,
		"SAFETY_MAX_EXPOSURE_SOL":     &cfg.Safety.MaxTotalExposureSol,
		"SAFETY_MAX_DRAWDOWN_PCT":     &cfg.Safety.MaxDrawdownPct,
	}
	for key, dst := range floats {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse %s: %w", key, err)
		}
		*dst = f
	}

	if v := strings.TrimSpace(os.Getenv("SAFETY_MAX_DAILY_TRADES")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse SAFETY_MAX_DAILY_TRADES: %w", err)
		}
		cfg.Safety.MaxDailyTrades = n
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Solana.RPCEndpoint == "" {
		errs = append(errs, errors.New("solana.rpc_endpoint is required"))
	}
	if c.Solana.Timeout <= 0 {
		errs = append(errs, errors.New("solana.timeout must be positive"))
	}
	if c.Solana.ConfirmTimeout <= 0 || c.Solana.ConfirmPoll <= 0 {
		errs = append(errs, errors.New("solana.confirm_timeout and solana.confirm_poll must be positive"))
	}
	if c.Safety.MaxSingleOrderSol <= 0 {
		errs = append(errs, errors.New("safety.max_single_order_sol must be positive"))
	}
	if c.Safety.MaxDailyTrades <= 0 {
		errs = append(errs, errors.New("safety.max_daily_trades must be positive"))
	}
	if c.Safety.DailyLossLimitSol <= 0 {
		errs = append(errs, errors.New("safety.daily_loss_limit_sol must be positive"))
	}
	if c.Safety.MaxTotalExposureSol <= 0 {
		errs = append(errs, errors.New("safety.max_total_exposure_sol must be positive"))
	}
	if c.Safety.MaxDrawdownPct <= 0 || c.Safety.MaxDrawdownPct > 100 {
		errs = append(errs, errors.New("safety.max_drawdown_pct must be in (0, 100]"))
	}
	if c.Safety.CooldownDuration <= 0 {
		errs = append(errs, errors.New("safety.cooldown_duration must be positive"))
	}
	if c.Trigger.PollInterval <= 0 {
		errs = append(errs, errors.New("trigger.poll_interval must be positive"))
	}
	if c.Trigger.RecordPrices && c.Storage.ClickhouseDSN == "" {
		errs = append(errs, errors.New("trigger.record_prices requires storage.clickhouse_dsn"))
	}
	if c.Portfolio.ValueInterval <= 0 {
		errs = append(errs, errors.New("portfolio.value_interval must be positive"))
	}

	switch c.Publish.Driver {
	case "", PublishNone:
	case PublishRedis:
		if c.Publish.Redis.Address == "" {
			errs = append(errs, errors.New("publish.redis.address is required for the redis driver"))
		}
	case PublishAMQP:
		if c.Publish.AMQP.URL == "" {
			errs = append(errs, errors.New("publish.amqp.url is required for the amqp driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown publish.driver %q", c.Publish.Driver))
	}

	if c.Account.EncryptedKey != "" {
		if c.Account.ID == "" {
			errs = append(errs, errors.New("account.id is required with account.encrypted_key"))
		}
		if c.Account.WalletSecret == "" {
			errs = append(errs, errors.New("WALLET_SECRET is required with account.encrypted_key"))
		}
	}

	return errors.Join(errs...)
}
