package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/veradex/tradecore/internal/domain"
)

// TradeStore is an in-memory domain.TradeStore.
type TradeStore struct {
	mu     sync.RWMutex
	trades []domain.Trade
}

// NewTradeStore creates an empty TradeStore.
func NewTradeStore() *TradeStore {
	return &TradeStore{}
}

// InsertBatch appends the trades.
func (s *TradeStore) InsertBatch(_ context.Context, trades []domain.Trade) error {
	s.mu.Lock()
	s.trades = append(s.trades, trades...)
	s.mu.Unlock()
	return nil
}

// ListByOwnerPeriod returns the owner's trades inside [start, end), ordered
// by timestamp.
func (s *TradeStore) ListByOwnerPeriod(_ context.Context, owner string, period domain.Period) ([]domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Trade
	for _, t := range s.trades {
		if t.Owner != owner {
			continue
		}
		if t.Timestamp.Before(period.Start) || !t.Timestamp.Before(period.End) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// ListBefore returns all trades with a timestamp strictly before the cutoff.
func (s *TradeStore) ListBefore(_ context.Context, before time.Time) ([]domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Trade
	for _, t := range s.trades {
		if t.Timestamp.Before(before) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// Compile-time interface check.
var _ domain.TradeStore = (*TradeStore)(nil)
