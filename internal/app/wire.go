package app

import (
	"context"
	"fmt"
	"strings"

	s3blob "github.com/veradex/tradecore/internal/blob/s3"
	"github.com/veradex/tradecore/internal/cache/redis"
	"github.com/veradex/tradecore/internal/config"
	"github.com/veradex/tradecore/internal/domain"
	"github.com/veradex/tradecore/internal/quotes"
	"github.com/veradex/tradecore/internal/store/memory"
	"github.com/veradex/tradecore/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	PlanStore      domain.PlanStore
	ExecutionStore domain.ExecutionStore
	TradeStore     domain.TradeStore
	SnapshotStore  domain.SnapshotStore
	AuditStore     domain.AuditStore

	// Quote persistence
	QuoteRepo domain.QuoteRepository

	// Caches (nil when Redis is not wired)
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage (nil when S3 is not wired)
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   *s3blob.Archiver
}

// usesMemory returns true when the in-memory backend is selected.
func usesMemory(cfg *config.Config) bool {
	return strings.ToLower(cfg.Storage) == "memory"
}

// needsS3 returns true for modes that require object storage.
func needsS3(cfg *config.Config) bool {
	if !cfg.Archive.Enabled {
		return false
	}
	switch strings.ToLower(cfg.Mode) {
	case "archive", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	if usesMemory(cfg) {
		// In-memory backend: single-process, no external services. Quote
		// batches live in process memory and the engine relies on its own
		// dedup map instead of distributed locks.
		deps.PlanStore = memory.NewPlanStore()
		deps.ExecutionStore = memory.NewExecutionStore()
		deps.TradeStore = memory.NewTradeStore()
		deps.SnapshotStore = memory.NewSnapshotStore()
		deps.AuditStore = memory.NewAuditStore()
		deps.QuoteRepo = quotes.NewMemoryRepository()
	} else {
		// --- PostgreSQL ---
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.PlanStore = postgres.NewPlanStore(pool)
		deps.ExecutionStore = postgres.NewExecutionStore(pool)
		deps.TradeStore = postgres.NewTradeStore(pool)
		deps.SnapshotStore = postgres.NewSnapshotStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)

		// --- Redis ---
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		// Quote batches expire from Redis well after they go stale so the
		// store can still report staleness instead of absence.
		quoteTTL := 4 * cfg.Quotes.StaleAfter.Duration
		deps.QuoteRepo = redis.NewQuoteRepository(redisClient, quoteTTL)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		if cfg.Engine.DistributedLocks {
			deps.LockManager = redis.NewLockManager(redisClient)
		}
	}

	// --- S3 blob storage ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(
			deps.BlobWriter,
			deps.BlobReader,
			deps.SnapshotStore,
			deps.TradeStore,
			deps.AuditStore,
		)
	}

	return deps, cleanup, nil
}
