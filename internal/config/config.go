// Package config defines the top-level configuration for the perp execution
// client and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PERPBOT_* environment variables.
type Config struct {
	Wallet    WalletConfig    `toml:"wallet"`
	Apex      ApexConfig      `toml:"apex"`
	Account   AccountConfig   `toml:"account"`
	Limiter   LimiterConfig   `toml:"limiter"`
	Execution ExecutionConfig `toml:"execution"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// WalletConfig holds the settlement signing key material.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ApexConfig holds the venue endpoints and chain parameters.
type ApexConfig struct {
	BaseURL string `toml:"base_url"`
	WsURL   string `toml:"ws_url"`
	ChainID int64  `toml:"chain_id"`
}

// AccountConfig holds the venue account credentials and settlement
// references passed to each submission.
type AccountConfig struct {
	ID          string `toml:"id"`
	ApiKey      string `toml:"api_key"`
	ApiSecret   string `toml:"api_secret"`
	Passphrase  string `toml:"passphrase"`
	PositionRef string `toml:"position_ref"`
	FeeRateBps  int64  `toml:"fee_rate_bps"`
}

// LimiterConfig holds the request budget applied to all venue calls.
type LimiterConfig struct {
	Budget     int      `toml:"budget"`
	Interval   duration `toml:"interval"`
	QueueDepth int      `toml:"queue_depth"`
	// Gate enables the Redis-backed cross-process budget shared by all
	// processes submitting under the same account.
	GateEnabled bool     `toml:"gate_enabled"`
	GateLimit   int      `toml:"gate_limit"`
	GateWindow  duration `toml:"gate_window"`
}

// ExecutionConfig holds per-order defaults; flags on the submit command
// override them.
type ExecutionConfig struct {
	Retries      int      `toml:"retries"`
	Timeout      duration `toml:"timeout"`
	PollInterval duration `toml:"poll_interval"`
	RetryPause   duration `toml:"retry_pause"`
	SlippagePct  float64  `toml:"slippage_pct"`
	DedupWindow  duration `toml:"dedup_window"`
}

// PostgresConfig holds PostgreSQL connection parameters for the order
// journal.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the journal
// archiver.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	// RetentionDays is the journal age beyond which the archive mode moves
	// rows to blob storage.
	RetentionDays int `toml:"retention_days"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Apex: ApexConfig{
			BaseURL: "https://pro.apex.exchange/api",
			WsURL:   "wss://quote.pro.apex.exchange/realtime",
			ChainID: 1,
		},
		Limiter: LimiterConfig{
			Budget:      20,
			Interval:    duration{time.Second},
			QueueDepth:  256,
			GateEnabled: false,
			GateLimit:   20,
			GateWindow:  duration{time.Second},
		},
		Execution: ExecutionConfig{
			Retries:      3,
			Timeout:      duration{2 * time.Minute},
			PollInterval: duration{time.Second},
			RetryPause:   duration{500 * time.Millisecond},
			SlippagePct:  0.05,
			DedupWindow:  duration{10 * time.Minute},
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "perpbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "perpbot-data",
			UseSSL:         false,
			ForcePathStyle: true,
			RetentionDays:  90,
		},
		Notify: NotifyConfig{
			Events: []string{"order_filled", "order_rejected", "order_timeout"},
		},
		Mode:     "submit",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"submit":  true,
	"watch":   true,
	"archive": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: submit, watch, archive)", c.Mode))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet is needed only when submitting; watch and archive never sign.
	if strings.ToLower(c.Mode) == "submit" {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode submit")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
		if c.Account.ApiKey == "" {
			errs = append(errs, "account: api_key must not be empty for mode submit")
		}
		if c.Account.PositionRef == "" {
			errs = append(errs, "account: position_ref must not be empty for mode submit")
		}
	}

	if c.Apex.BaseURL == "" {
		errs = append(errs, "apex: base_url must not be empty")
	}
	if c.Apex.ChainID <= 0 {
		errs = append(errs, "apex: chain_id must be positive")
	}

	if c.Limiter.Budget < 1 {
		errs = append(errs, "limiter: budget must be >= 1")
	}
	if c.Limiter.Interval.Duration <= 0 {
		errs = append(errs, "limiter: interval must be positive")
	}
	if c.Limiter.QueueDepth < 1 {
		errs = append(errs, "limiter: queue_depth must be >= 1")
	}
	if c.Limiter.GateEnabled {
		if !c.Redis.Enabled {
			errs = append(errs, "limiter: gate_enabled requires redis.enabled")
		}
		if c.Limiter.GateLimit < 1 {
			errs = append(errs, "limiter: gate_limit must be >= 1")
		}
		if c.Limiter.GateWindow.Duration <= 0 {
			errs = append(errs, "limiter: gate_window must be positive")
		}
	}

	if c.Execution.Retries < 0 {
		errs = append(errs, "execution: retries must be >= 0")
	}
	if c.Execution.Timeout.Duration < 0 {
		errs = append(errs, "execution: timeout must be >= 0")
	}
	if c.Execution.SlippagePct < 0 {
		errs = append(errs, "execution: slippage_pct must be >= 0")
	}

	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if !c.Postgres.Enabled {
			errs = append(errs, "s3: archiving requires postgres.enabled")
		}
		if c.S3.RetentionDays < 1 {
			errs = append(errs, "s3: retention_days must be >= 1")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
