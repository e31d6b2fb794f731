package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veradex/tradecore/internal/domain"
)

// QuoteRepository implements domain.QuoteRepository using Redis hashes.
// Each symbol's batch is stored as a hash at "quotes:{symbol}" with fields
// "batch" (JSON-encoded quote slice) and "updated_at" (Unix nanoseconds).
// The whole hash is written in one HSET, so readers never see a torn batch.
type QuoteRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewQuoteRepository creates a QuoteRepository backed by the given Client.
// A non-zero ttl lets Redis expire abandoned symbols on its own, as a
// backstop behind the store's explicit eviction loop.
func NewQuoteRepository(c *Client, ttl time.Duration) *QuoteRepository {
	return &QuoteRepository{rdb: c.Underlying(), ttl: ttl}
}

func quoteKey(symbol string) string {
	return "quotes:" + symbol
}

const quoteIndexKey = "quotes:symbols"

// Replace swaps in the new batch and resets the symbol's freshness field.
func (r *QuoteRepository) Replace(ctx context.Context, symbol string, batch []domain.Quote) error {
	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("redis: marshal batch %s: %w", symbol, err)
	}

	key := quoteKey(symbol)
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"batch":      data,
		"updated_at": strconv.FormatInt(time.Now().UnixNano(), 10),
	})
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	pipe.SAdd(ctx, quoteIndexKey, symbol)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: replace quotes %s: %w", symbol, err)
	}
	return nil
}

// Current returns the stored batch and its update time, or ErrNotFound.
func (r *QuoteRepository) Current(ctx context.Context, symbol string) ([]domain.Quote, time.Time, error) {
	vals, err := r.rdb.HGetAll(ctx, quoteKey(symbol)).Result()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: get quotes %s: %w", symbol, err)
	}
	if len(vals) == 0 {
		return nil, time.Time{}, domain.ErrNotFound
	}

	raw, ok := vals["batch"]
	if !ok {
		return nil, time.Time{}, domain.ErrNotFound
	}
	var batch []domain.Quote
	if err := json.Unmarshal([]byte(raw), &batch); err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: unmarshal batch %s: %w", symbol, err)
	}

	tsNano, err := strconv.ParseInt(vals["updated_at"], 10, 64)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: parse updated_at %s: %w", symbol, err)
	}
	return batch, time.Unix(0, tsNano), nil
}

// Symbols lists every symbol in the index set.
func (r *QuoteRepository) Symbols(ctx context.Context) ([]string, error) {
	symbols, err := r.rdb.SMembers(ctx, quoteIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list symbols: %w", err)
	}
	return symbols, nil
}

// Remove drops a symbol's batch and index entry.
func (r *QuoteRepository) Remove(ctx context.Context, symbol string) error {
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, quoteKey(symbol))
	pipe.SRem(ctx, quoteIndexKey, symbol)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: remove quotes %s: %w", symbol, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.QuoteRepository = (*QuoteRepository)(nil)
