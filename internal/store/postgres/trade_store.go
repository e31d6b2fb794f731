package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veradex/tradecore/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// InsertBatch inserts the trades in one batch; conflicts on id are ignored
// so replayed fill reports stay idempotent.
func (s *TradeStore) InsertBatch(ctx context.Context, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, t := range trades {
		batch.Queue(`
			INSERT INTO trades (id, owner_id, symbol, side, quantity, price, pnl, ts)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO NOTHING`,
			t.ID, t.Owner, t.Symbol, string(t.Side), t.Quantity, t.Price, t.PnL, t.Timestamp,
		)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range trades {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("postgres: insert trades: %w", err)
		}
	}
	return nil
}

// ListByOwnerPeriod returns the owner's trades inside [start, end), ordered
// by timestamp.
func (s *TradeStore) ListByOwnerPeriod(ctx context.Context, owner string, period domain.Period) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_id, symbol, side, quantity, price, pnl, ts
		FROM trades WHERE owner_id = $1 AND ts >= $2 AND ts < $3
		ORDER BY ts`,
		owner, period.Start, period.End,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	defer rows.Close()
	return collectTrades(rows)
}

// ListBefore returns all trades with a timestamp strictly before the cutoff.
func (s *TradeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_id, symbol, side, quantity, price, pnl, ts
		FROM trades WHERE ts < $1 ORDER BY ts`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before: %w", err)
	}
	defer rows.Close()
	return collectTrades(rows)
}

func collectTrades(rows pgx.Rows) ([]domain.Trade, error) {
	var out []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var side string
		if err := rows.Scan(&t.ID, &t.Owner, &t.Symbol, &side, &t.Quantity, &t.Price, &t.PnL, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		t.Side = domain.Side(side)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Compile-time interface check.
var _ domain.TradeStore = (*TradeStore)(nil)
