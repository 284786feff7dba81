// Package config handles configuration loading and validation for the
// prize pool service.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the pool service.
type Config struct {
	Pool       PoolConfig       `mapstructure:"pool"`
	Emergency  EmergencyConfig  `mapstructure:"emergency"`
	Chain      ChainConfig      `mapstructure:"chain"`
	Wallet     WalletConfig     `mapstructure:"wallet"`
	Redis      RedisConfig      `mapstructure:"redis"`
	API        APIConfig        `mapstructure:"api"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	NewRelic   NewRelicConfig   `mapstructure:"newrelic"`
	Profiling  ProfilingConfig  `mapstructure:"profiling"`
	Log        LogConfig        `mapstructure:"log"`
}

// PoolConfig defines the pool's identity and per-round economics. The
// percentages and the asset type feed directly into internal/pool.New.
type PoolConfig struct {
	ID                  string  `mapstructure:"id"`
	AssetType           string  `mapstructure:"asset_type"`
	MinimumDeposit      float64 `mapstructure:"minimum_deposit"`
	DrawIntervalSeconds int64   `mapstructure:"draw_interval_seconds"`
	RewardsPct          float64 `mapstructure:"rewards_pct"`
	PrizePct            float64 `mapstructure:"prize_pct"`
	FeePct              float64 `mapstructure:"fee_pct"`
	WinnerCount         int     `mapstructure:"winner_count"`
}

// EmergencyConfig mirrors internal/pool.EmergencyConfig; durations and
// ratios are expressed the way an operator would write them in YAML.
type EmergencyConfig struct {
	MaxEmergencyDuration       time.Duration `mapstructure:"max_emergency_duration"`
	AutoRecoveryEnabled        bool          `mapstructure:"auto_recovery_enabled"`
	MinYieldSourceHealth       float64       `mapstructure:"min_yield_source_health"`
	MaxWithdrawFailures        uint          `mapstructure:"max_withdraw_failures"`
	PartialModeDepositLimit    float64       `mapstructure:"partial_mode_deposit_limit"`
	MinBalanceThreshold        float64       `mapstructure:"min_balance_threshold"`
	MinRecoveryHealth          float64       `mapstructure:"min_recovery_health"`
}

// ChainConfig configures the upstream RPC pool the randomness oracle
// reads block data from.
type ChainConfig struct {
	Endpoints      []string      `mapstructure:"endpoints"`
	Timeout        time.Duration `mapstructure:"timeout"`
	CommitDelay    uint64        `mapstructure:"commit_delay_blocks"`
	HealthInterval time.Duration `mapstructure:"health_interval"`
}

// WalletConfig configures the wallet RPC used to forward protocol fees.
type WalletConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	TreasuryAddress string `mapstructure:"treasury_address"`
}

// RedisConfig defines the winner tracker's backing store.
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	RingSize int64  `mapstructure:"ring_size"`
}

// APIConfig configures the admin HTTP+WS surface.
type APIConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Bind        string   `mapstructure:"bind"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	AdminToken  string   `mapstructure:"admin_token"`
}

// WebhookConfig configures Discord/Telegram delivery of operator-facing
// pool events (draw completion, insolvency, emergency transitions).
type WebhookConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	DiscordURL   string `mapstructure:"discord_url"`
	TelegramBot  string `mapstructure:"telegram_bot"`
	TelegramChat string `mapstructure:"telegram_chat"`
}

// NewRelicConfig configures APM instrumentation.
type NewRelicConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	AppName    string `mapstructure:"app_name"`
	LicenseKey string `mapstructure:"license_key"`
}

// ProfilingConfig configures the pprof debug server.
type ProfilingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Bind    string `mapstructure:"bind"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Load reads configuration from file and environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/prizepool")
	}

	v.SetEnvPrefix("PRIZEPOOL")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values, matching spec §6's
// documented defaults for the emergency controller.
func setDefaults(v *viper.Viper) {
	v.SetDefault("pool.id", "default")
	v.SetDefault("pool.asset_type", "usdc")
	v.SetDefault("pool.minimum_deposit", 1.0)
	v.SetDefault("pool.draw_interval_seconds", 604800) // weekly
	v.SetDefault("pool.rewards_pct", 0.5)
	v.SetDefault("pool.prize_pct", 0.4)
	v.SetDefault("pool.fee_pct", 0.1)
	v.SetDefault("pool.winner_count", 1)

	v.SetDefault("emergency.max_emergency_duration", "24h")
	v.SetDefault("emergency.auto_recovery_enabled", true)
	v.SetDefault("emergency.min_yield_source_health", 0.5)
	v.SetDefault("emergency.max_withdraw_failures", 3)
	v.SetDefault("emergency.partial_mode_deposit_limit", 0.0)
	v.SetDefault("emergency.min_balance_threshold", 0.95)
	v.SetDefault("emergency.min_recovery_health", 0.5)

	v.SetDefault("chain.timeout", "10s")
	v.SetDefault("chain.commit_delay_blocks", 3)
	v.SetDefault("chain.health_interval", "30s")

	v.SetDefault("redis.url", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ring_size", 1000)

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.bind", "0.0.0.0:8080")
	v.SetDefault("api.cors_origins", []string{"*"})

	v.SetDefault("webhook.enabled", false)

	v.SetDefault("newrelic.enabled", false)
	v.SetDefault("newrelic.app_name", "prizepool")

	v.SetDefault("profiling.enabled", false)
	v.SetDefault("profiling.bind", "127.0.0.1:6060")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Validate checks configuration for the invariants the pool constructor
// and its collaborators assume hold.
func (c *Config) Validate() error {
	if c.Pool.ID == "" {
		return fmt.Errorf("pool.id is required")
	}
	if c.Pool.AssetType == "" {
		return fmt.Errorf("pool.asset_type is required")
	}
	if c.Pool.DrawIntervalSeconds <= 0 {
		return fmt.Errorf("pool.draw_interval_seconds must be positive")
	}
	if c.Pool.WinnerCount <= 0 {
		return fmt.Errorf("pool.winner_count must be positive")
	}
	sum := c.Pool.RewardsPct + c.Pool.PrizePct + c.Pool.FeePct
	if sum < 0.999999 || sum > 1.000001 {
		return fmt.Errorf("pool.rewards_pct + prize_pct + fee_pct must sum to 1, got %f", sum)
	}

	if c.Emergency.MinYieldSourceHealth < 0 || c.Emergency.MinYieldSourceHealth > 1 {
		return fmt.Errorf("emergency.min_yield_source_health must be in [0,1]")
	}
	if c.Emergency.MinBalanceThreshold < 0.8 || c.Emergency.MinBalanceThreshold > 1.0 {
		return fmt.Errorf("emergency.min_balance_threshold must be in [0.8,1.0]")
	}

	if len(c.Chain.Endpoints) == 0 {
		return fmt.Errorf("chain.endpoints must list at least one RPC endpoint")
	}

	return nil
}
