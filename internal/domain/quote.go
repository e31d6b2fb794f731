package domain

import (
	"context"
	"time"
)

// Side indicates whether a quote (or order) is on the buy or sell side.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Quote is one venue's advertised price/quantity for a side of a symbol at a
// point in time. Side is the taker side the quote serves: a buy quote is a
// venue ask we can buy from, a sell quote a venue bid we can sell into.
type Quote struct {
	Venue          string
	Symbol         string
	Side           Side
	Price          float64
	Quantity       float64
	MakerFee       float64 // fraction, e.g. 0.001 = 10 bps
	TakerFee       float64
	LatencyMs      int64
	LiquidityScore float64 // 0..100
	ObservedAt     time.Time
}

// Valid reports whether the quote passes the acceptance filters: positive
// price and quantity, latency under 10 seconds, non-negative liquidity.
func (q Quote) Valid() bool {
	if q.Price <= 0 || q.Quantity <= 0 {
		return false
	}
	if q.LatencyMs >= 10_000 {
		return false
	}
	if q.LiquidityScore < 0 {
		return false
	}
	return true
}

// QuoteRepository holds the latest quote batch per symbol. Batches are
// replaced wholesale; readers must never observe a partially written batch.
type QuoteRepository interface {
	// Replace swaps in a new quote batch for the symbol and resets its
	// freshness timestamp.
	Replace(ctx context.Context, symbol string, quotes []Quote) error
	// Current returns the last accepted batch and the time it was stored.
	// It returns ErrNotFound for symbols that were never updated.
	Current(ctx context.Context, symbol string) ([]Quote, time.Time, error)
	// Symbols lists every symbol currently held.
	Symbols(ctx context.Context) ([]string, error)
	// Remove drops a symbol and its batch.
	Remove(ctx context.Context, symbol string) error
}
