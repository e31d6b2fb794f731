package quotes

import (
	"context"
	"sync"
	"time"

	"github.com/veradex/tradecore/internal/domain"
)

// MemoryRepository is the in-process domain.QuoteRepository. Each Replace
// installs a fresh batch slice under the lock, so concurrent readers always
// observe a whole batch and never a partial write.
type MemoryRepository struct {
	mu      sync.RWMutex
	batches map[string]batchEntry
	now     func() time.Time
}

type batchEntry struct {
	quotes    []domain.Quote
	updatedAt time.Time
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		batches: make(map[string]batchEntry),
		now:     time.Now,
	}
}

// NewMemoryRepositoryWithClock creates a repository with an injected time
// source, for deterministic tests.
func NewMemoryRepositoryWithClock(now func() time.Time) *MemoryRepository {
	r := NewMemoryRepository()
	r.now = now
	return r
}

// Replace swaps in the new batch and resets the symbol's freshness
// timestamp.
func (r *MemoryRepository) Replace(_ context.Context, symbol string, batch []domain.Quote) error {
	copied := make([]domain.Quote, len(batch))
	copy(copied, batch)

	r.mu.Lock()
	r.batches[symbol] = batchEntry{quotes: copied, updatedAt: r.now()}
	r.mu.Unlock()
	return nil
}

// Current returns the stored batch and its update time, or ErrNotFound.
func (r *MemoryRepository) Current(_ context.Context, symbol string) ([]domain.Quote, time.Time, error) {
	r.mu.RLock()
	entry, ok := r.batches[symbol]
	r.mu.RUnlock()
	if !ok {
		return nil, time.Time{}, domain.ErrNotFound
	}
	return entry.quotes, entry.updatedAt, nil
}

// Symbols lists every held symbol.
func (r *MemoryRepository) Symbols(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.batches))
	for sym := range r.batches {
		out = append(out, sym)
	}
	return out, nil
}

// Remove drops a symbol.
func (r *MemoryRepository) Remove(_ context.Context, symbol string) error {
	r.mu.Lock()
	delete(r.batches, symbol)
	r.mu.Unlock()
	return nil
}

// Compile-time interface check.
var _ domain.QuoteRepository = (*MemoryRepository)(nil)
