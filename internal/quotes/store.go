// Package quotes holds the latest batch of per-symbol venue quotes with
// staleness tracking. Batches are replaced wholesale on each update; there
// is no incremental merge.
package quotes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/veradex/tradecore/internal/domain"
)

// DefaultStaleAfter is the window after which a symbol with no update is
// considered stale.
const DefaultStaleAfter = 5 * time.Second

// Store layers validity filtering and staleness tracking over an injectable
// quote repository. Staleness is evaluated against the repository's
// per-symbol last-update timestamp, not per-quote observation times.
type Store struct {
	repo       domain.QuoteRepository
	staleAfter time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// Option customizes a Store.
type Option func(*Store)

// WithStaleAfter overrides the staleness window.
func WithStaleAfter(d time.Duration) Option {
	return func(s *Store) { s.staleAfter = d }
}

// WithClock injects the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a Store over the given repository.
func NewStore(repo domain.QuoteRepository, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		repo:       repo,
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
		logger:     logger.With(slog.String("component", "quote_store")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Update replaces the quote set for a symbol. Quotes failing the validity
// filters are silently dropped rather than failing the whole batch; the
// symbol's freshness timestamp resets either way.
func (s *Store) Update(ctx context.Context, symbol string, batch []domain.Quote) error {
	accepted := make([]domain.Quote, 0, len(batch))
	for _, q := range batch {
		if !q.Valid() {
			continue
		}
		q.Symbol = symbol
		accepted = append(accepted, q)
	}
	if dropped := len(batch) - len(accepted); dropped > 0 {
		s.logger.Debug("dropped invalid quotes",
			slog.String("symbol", symbol),
			slog.Int("dropped", dropped),
		)
	}
	if err := s.repo.Replace(ctx, symbol, accepted); err != nil {
		return fmt.Errorf("quotes: replace %s: %w", symbol, err)
	}
	return nil
}

// Current returns the last accepted batch for the symbol, or nil if the
// symbol was never updated.
func (s *Store) Current(ctx context.Context, symbol string) []domain.Quote {
	batch, _, err := s.repo.Current(ctx, symbol)
	if err != nil {
		return nil
	}
	return batch
}

// IsStale reports whether the symbol has had no update within the staleness
// window, or was never seen at all.
func (s *Store) IsStale(ctx context.Context, symbol string) bool {
	_, updatedAt, err := s.repo.Current(ctx, symbol)
	if err != nil {
		return true
	}
	return s.now().Sub(updatedAt) > s.staleAfter
}

// Fresh returns the current batch when the symbol is fresh, or
// ErrStaleQuotes otherwise. Router and scanner read through this.
func (s *Store) Fresh(ctx context.Context, symbol string) ([]domain.Quote, error) {
	batch, updatedAt, err := s.repo.Current(ctx, symbol)
	if err != nil {
		return nil, domain.ErrStaleQuotes
	}
	if s.now().Sub(updatedAt) > s.staleAfter {
		return nil, domain.ErrStaleQuotes
	}
	return batch, nil
}

// EvictStale removes every stale symbol from the repository and returns the
// number evicted. The app runs this on its own ticker so cleanup latency
// never couples to request latency.
func (s *Store) EvictStale(ctx context.Context) (int, error) {
	symbols, err := s.repo.Symbols(ctx)
	if err != nil {
		return 0, fmt.Errorf("quotes: list symbols: %w", err)
	}
	evicted := 0
	for _, sym := range symbols {
		if !s.IsStale(ctx, sym) {
			continue
		}
		if err := s.repo.Remove(ctx, sym); err != nil {
			return evicted, fmt.Errorf("quotes: evict %s: %w", sym, err)
		}
		evicted++
	}
	if evicted > 0 {
		s.logger.Debug("evicted stale symbols", slog.Int("count", evicted))
	}
	return evicted, nil
}
