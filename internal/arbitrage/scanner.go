// Package arbitrage detects profitable cross-venue pairs from quote
// snapshots. Scans are stateless: opportunities are recomputed from scratch
// every time and expire after a fixed horizon. They are advisory, not
// authoritative; callers must re-validate before any execution attempt.
package arbitrage

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/veradex/tradecore/internal/domain"
	"github.com/veradex/tradecore/internal/quotes"
)

// DefaultValidityHorizon is how long a detected opportunity stays advisory.
const DefaultValidityHorizon = 30 * time.Second

// minSpreadPct is the gross spread floor, in percent.
const minSpreadPct = 0.1

// Scanner finds cross-venue arbitrage pairs for a symbol.
type Scanner struct {
	store   *quotes.Store
	horizon time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// ScannerOption customizes a Scanner.
type ScannerOption func(*Scanner)

// WithHorizon overrides the opportunity validity horizon.
func WithHorizon(d time.Duration) ScannerOption {
	return func(s *Scanner) { s.horizon = d }
}

// WithClock injects the time source, for deterministic tests.
func WithClock(now func() time.Time) ScannerOption {
	return func(s *Scanner) { s.now = now }
}

// NewScanner creates a Scanner reading from the given quote store.
func NewScanner(store *quotes.Store, logger *slog.Logger, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		store:   store,
		horizon: DefaultValidityHorizon,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "arb_scanner")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan returns every profitable cross-venue pair for the symbol, best net
// profit first. It returns an empty list on stale or absent data. The
// pairing is exhaustive O(n²) over the per-symbol venue count, which is
// bounded by the number of connected exchanges.
func (s *Scanner) Scan(ctx context.Context, symbol string) []domain.ArbOpportunity {
	batch, err := s.store.Fresh(ctx, symbol)
	if err != nil {
		return nil
	}

	var buys, sells []domain.Quote
	for _, q := range batch {
		switch q.Side {
		case domain.SideBuy:
			buys = append(buys, q)
		case domain.SideSell:
			sells = append(sells, q)
		}
	}
	sort.SliceStable(buys, func(i, j int) bool { return buys[i].Price < buys[j].Price })
	sort.SliceStable(sells, func(i, j int) bool { return sells[i].Price > sells[j].Price })

	now := s.now()
	var opps []domain.ArbOpportunity
	for _, buy := range buys {
		for _, sell := range sells {
			if buy.Venue == sell.Venue {
				continue
			}
			netSpread := (sell.Price - buy.Price) - (buy.TakerFee+sell.TakerFee)*buy.Price
			if netSpread <= 0 {
				continue
			}
			spreadPct := (sell.Price - buy.Price) / buy.Price * 100
			if spreadPct <= minSpreadPct {
				continue
			}
			fillable := buy.Quantity
			if sell.Quantity < fillable {
				fillable = sell.Quantity
			}
			opps = append(opps, domain.ArbOpportunity{
				ID:                uuid.New().String(),
				Symbol:            symbol,
				BuyVenue:          buy.Venue,
				SellVenue:         sell.Venue,
				BuyPrice:          buy.Price,
				SellPrice:         sell.Price,
				SpreadPct:         spreadPct,
				NetProfitEstimate: netSpread * fillable,
				FillableQuantity:  fillable,
				ConfidenceScore:   (buy.LiquidityScore + sell.LiquidityScore) / 2,
				DetectedAt:        now,
				ValidUntil:        now.Add(s.horizon),
			})
		}
	}

	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].NetProfitEstimate > opps[j].NetProfitEstimate
	})

	if len(opps) > 0 {
		s.logger.Debug("scan found opportunities",
			slog.String("symbol", symbol),
			slog.Int("count", len(opps)),
			slog.Float64("best_profit", opps[0].NetProfitEstimate),
		)
	}
	return opps
}
