package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, "postgres", cfg.Storage)
	assert.Equal(t, 5*time.Second, cfg.Quotes.StaleAfter.Duration)
	assert.Equal(t, 100_000.0, cfg.Engine.SimEquityUSD)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "turbo"
	cfg.LogLevel = "loud"
	cfg.Storage = "sqlite"
	cfg.Quotes.StaleAfter.Duration = 0
	cfg.Engine.SimEquityUSD = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mode "turbo"`)
	assert.Contains(t, err.Error(), `unknown log_level "loud"`)
	assert.Contains(t, err.Error(), `unknown storage "sqlite"`)
	assert.Contains(t, err.Error(), "quotes: stale_after must be > 0")
	assert.Contains(t, err.Error(), "engine: sim_equity_usd must be > 0")
}

func TestValidateMemoryStorageSkipsBackends(t *testing.T) {
	cfg := Defaults()
	cfg.Storage = "memory"
	cfg.Postgres = PostgresConfig{}
	cfg.Redis = RedisConfig{}

	require.NoError(t, cfg.Validate())
}

func TestValidatePostgresRequiresConnection(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Host = ""
	cfg.Postgres.Database = ""
	cfg.Redis.Addr = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: host must not be empty")
	assert.Contains(t, err.Error(), "postgres: database must not be empty")
	assert.Contains(t, err.Error(), "redis: addr must not be empty")

	// A DSN replaces the discrete connection fields.
	cfg.Postgres.DSN = "postgres://app@db:5432/tradecore"
	cfg.Redis.Addr = "localhost:6379"
	require.NoError(t, cfg.Validate())
}

func TestValidateArchiveRequiresS3(t *testing.T) {
	cfg := Defaults()
	cfg.Archive.Enabled = true
	cfg.S3.Endpoint = ""
	cfg.S3.Bucket = ""
	cfg.Archive.RetentionDays = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3: endpoint must not be empty")
	assert.Contains(t, err.Error(), "s3: bucket must not be empty")
	assert.Contains(t, err.Error(), "archive: retention_days must be >= 1")
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeTOML(t, `
storage = "memory"
mode = "route"

[quotes]
stale_after = "10s"

[arbitrage]
enabled = false
symbols = ["BTC-USD", "ETH-USD"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage)
	assert.Equal(t, "route", cfg.Mode)
	assert.Equal(t, 10*time.Second, cfg.Quotes.StaleAfter.Duration)
	assert.False(t, cfg.Arbitrage.Enabled)
	assert.Equal(t, []string{"BTC-USD", "ETH-USD"}, cfg.Arbitrage.Symbols)
	// Untouched sections keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.Quotes.EvictInterval.Duration)
	assert.Equal(t, "triggers", cfg.Engine.TriggerChannel)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeTOML(t, `
mode = "route"

[postgres]
password = "from-file"
`)
	t.Setenv("TRADECORE_MODE", "engine")
	t.Setenv("TRADECORE_POSTGRES_PASSWORD", "from-env")
	t.Setenv("TRADECORE_ENGINE_LOCK_TTL", "45s")
	t.Setenv("TRADECORE_PNL_OWNERS", "acct-1, acct-2")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "engine", cfg.Mode)
	assert.Equal(t, "from-env", cfg.Postgres.Password)
	assert.Equal(t, 45*time.Second, cfg.Engine.LockTTL.Duration)
	assert.Equal(t, []string{"acct-1", "acct-2"}, cfg.PnL.Owners)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}
