// Package config defines the top-level configuration for the trade core
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TRADECORE_* environment variables.
type Config struct {
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Quotes    QuotesConfig    `toml:"quotes"`
	Arbitrage ArbitrageConfig `toml:"arbitrage"`
	Engine    EngineConfig    `toml:"engine"`
	PnL       PnLConfig       `toml:"pnl"`
	Archive   ArchiveConfig   `toml:"archive"`
	Storage   string          `toml:"storage"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// QuotesConfig holds quote store parameters.
type QuotesConfig struct {
	// StaleAfter is how long a quote batch is considered fresh.
	StaleAfter duration `toml:"stale_after"`
	// EvictInterval is how often stale batches are evicted in service modes.
	EvictInterval duration `toml:"evict_interval"`
}

// ArbitrageConfig holds arbitrage scanning and acceptance parameters.
type ArbitrageConfig struct {
	Enabled           bool     `toml:"enabled"`
	MinNetProfitUSD   float64  `toml:"min_net_profit_usd"`
	MaxNotionalUSD    float64  `toml:"max_notional_usd"`
	KillSwitchLossUSD float64  `toml:"kill_switch_loss_usd"`
	ValidityHorizon   duration `toml:"validity_horizon"`
	ScanInterval      duration `toml:"scan_interval"`
	Symbols           []string `toml:"symbols"`
}

// EngineConfig holds deterministic plan engine parameters.
type EngineConfig struct {
	DedupTTL       duration `toml:"dedup_ttl"`
	LockTTL        duration `toml:"lock_ttl"`
	TriggerChannel string   `toml:"trigger_channel"`
	// DistributedLocks enables Redis locks around trigger processing. When
	// false the engine relies on its in-process dedup map only.
	DistributedLocks bool `toml:"distributed_locks"`
	// SimEquityUSD is the account value used to size pct_equity actions in
	// the simulated executor.
	SimEquityUSD float64 `toml:"sim_equity_usd"`
}

// PnLConfig holds scheduled snapshot parameters. Owners lists the accounts
// that get a periodic snapshot; an empty list disables the scheduler.
type PnLConfig struct {
	Owners   []string `toml:"owners"`
	Interval duration `toml:"interval"`
}

// ArchiveConfig holds cold storage export parameters.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
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
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "tradecore",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "tradecore-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Quotes: QuotesConfig{
			StaleAfter:    duration{5 * time.Second},
			EvictInterval: duration{30 * time.Second},
		},
		Arbitrage: ArbitrageConfig{
			Enabled:           true,
			MinNetProfitUSD:   1.0,
			MaxNotionalUSD:    10_000.0,
			KillSwitchLossUSD: 500.0,
			ValidityHorizon:   duration{30 * time.Second},
			ScanInterval:      duration{2 * time.Second},
			Symbols:           []string{},
		},
		Engine: EngineConfig{
			DedupTTL:         duration{2 * time.Minute},
			LockTTL:          duration{30 * time.Second},
			TriggerChannel:   "triggers",
			DistributedLocks: true,
			SimEquityUSD:     100_000,
		},
		PnL: PnLConfig{
			Owners:   []string{},
			Interval: duration{24 * time.Hour},
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Storage:  "postgres",
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"route":   true,
	"engine":  true,
	"archive": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validStorage enumerates the accepted values for Config.Storage.
var validStorage = map[string]bool{
	"memory":   true,
	"postgres": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: route, engine, archive, full)", c.Mode))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if !validStorage[strings.ToLower(c.Storage)] {
		errs = append(errs, fmt.Sprintf("unknown storage %q (valid: memory, postgres)", c.Storage))
	}

	// Postgres (only required when it is the selected backend).
	if strings.ToLower(c.Storage) == "postgres" {
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

		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Quotes
	if c.Quotes.StaleAfter.Duration <= 0 {
		errs = append(errs, "quotes: stale_after must be > 0")
	}
	if c.Quotes.EvictInterval.Duration <= 0 {
		errs = append(errs, "quotes: evict_interval must be > 0")
	}

	// Arbitrage
	if c.Arbitrage.Enabled {
		if c.Arbitrage.MinNetProfitUSD < 0 {
			errs = append(errs, "arbitrage: min_net_profit_usd must be >= 0")
		}
		if c.Arbitrage.MaxNotionalUSD <= 0 {
			errs = append(errs, "arbitrage: max_notional_usd must be > 0 when enabled")
		}
		if c.Arbitrage.KillSwitchLossUSD <= 0 {
			errs = append(errs, "arbitrage: kill_switch_loss_usd must be > 0 when enabled")
		}
		if c.Arbitrage.ScanInterval.Duration <= 0 {
			errs = append(errs, "arbitrage: scan_interval must be > 0 when enabled")
		}
	}

	// Engine
	if c.Engine.DedupTTL.Duration <= 0 {
		errs = append(errs, "engine: dedup_ttl must be > 0")
	}
	if c.Engine.LockTTL.Duration <= 0 {
		errs = append(errs, "engine: lock_ttl must be > 0")
	}
	if c.Engine.TriggerChannel == "" {
		errs = append(errs, "engine: trigger_channel must not be empty")
	}
	if c.Engine.SimEquityUSD <= 0 {
		errs = append(errs, "engine: sim_equity_usd must be > 0")
	}

	// PnL
	if len(c.PnL.Owners) > 0 && c.PnL.Interval.Duration <= 0 {
		errs = append(errs, "pnl: interval must be > 0 when owners are configured")
	}

	// Archive
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
