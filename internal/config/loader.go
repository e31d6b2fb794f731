package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TRADECORE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TRADECORE_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "TRADECORE_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "TRADECORE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TRADECORE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TRADECORE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TRADECORE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TRADECORE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TRADECORE_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TRADECORE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TRADECORE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TRADECORE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "TRADECORE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRADECORE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRADECORE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRADECORE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRADECORE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRADECORE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "TRADECORE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRADECORE_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRADECORE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TRADECORE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRADECORE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TRADECORE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TRADECORE_S3_FORCE_PATH_STYLE")

	// ── Quotes ──
	setDuration(&cfg.Quotes.StaleAfter, "TRADECORE_QUOTES_STALE_AFTER")
	setDuration(&cfg.Quotes.EvictInterval, "TRADECORE_QUOTES_EVICT_INTERVAL")

	// ── Arbitrage ──
	setBool(&cfg.Arbitrage.Enabled, "TRADECORE_ARBITRAGE_ENABLED")
	setFloat64(&cfg.Arbitrage.MinNetProfitUSD, "TRADECORE_ARBITRAGE_MIN_NET_PROFIT_USD")
	setFloat64(&cfg.Arbitrage.MaxNotionalUSD, "TRADECORE_ARBITRAGE_MAX_NOTIONAL_USD")
	setFloat64(&cfg.Arbitrage.KillSwitchLossUSD, "TRADECORE_ARBITRAGE_KILL_SWITCH_LOSS_USD")
	setDuration(&cfg.Arbitrage.ValidityHorizon, "TRADECORE_ARBITRAGE_VALIDITY_HORIZON")
	setDuration(&cfg.Arbitrage.ScanInterval, "TRADECORE_ARBITRAGE_SCAN_INTERVAL")
	setStringSlice(&cfg.Arbitrage.Symbols, "TRADECORE_ARBITRAGE_SYMBOLS")

	// ── Engine ──
	setDuration(&cfg.Engine.DedupTTL, "TRADECORE_ENGINE_DEDUP_TTL")
	setDuration(&cfg.Engine.LockTTL, "TRADECORE_ENGINE_LOCK_TTL")
	setStr(&cfg.Engine.TriggerChannel, "TRADECORE_ENGINE_TRIGGER_CHANNEL")
	setBool(&cfg.Engine.DistributedLocks, "TRADECORE_ENGINE_DISTRIBUTED_LOCKS")
	setFloat64(&cfg.Engine.SimEquityUSD, "TRADECORE_ENGINE_SIM_EQUITY_USD")

	// ── PnL ──
	setStringSlice(&cfg.PnL.Owners, "TRADECORE_PNL_OWNERS")
	setDuration(&cfg.PnL.Interval, "TRADECORE_PNL_INTERVAL")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "TRADECORE_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "TRADECORE_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "TRADECORE_ARCHIVE_INTERVAL")

	// ── Top-level ──
	setStr(&cfg.Storage, "TRADECORE_STORAGE")
	setStr(&cfg.Mode, "TRADECORE_MODE")
	setStr(&cfg.LogLevel, "TRADECORE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
