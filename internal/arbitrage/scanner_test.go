package arbitrage

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veradex/tradecore/internal/domain"
	"github.com/veradex/tradecore/internal/quotes"
)

func newTestScanner(t *testing.T) (*Scanner, *quotes.Store, *time.Time) {
	t.Helper()
	current := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return current }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := quotes.NewStore(quotes.NewMemoryRepositoryWithClock(now), logger,
		quotes.WithClock(now),
	)
	scanner := NewScanner(store, logger, WithClock(now))
	return scanner, store, &current
}

func quote(venue string, side domain.Side, price, qty, takerFee float64) domain.Quote {
	return domain.Quote{
		Venue:          venue,
		Side:           side,
		Price:          price,
		Quantity:       qty,
		TakerFee:       takerFee,
		LatencyMs:      50,
		LiquidityScore: 80,
	}
}

func TestScanFindsCrossVenueSpread(t *testing.T) {
	scanner, store, _ := newTestScanner(t)
	ctx := context.Background()

	// Buy the V1 ask at 100, sell into the V2 bid at 102.
	require.NoError(t, store.Update(ctx, "BTC-USD", []domain.Quote{
		quote("v1", domain.SideBuy, 100, 2, 0.001),
		quote("v2", domain.SideSell, 102, 1, 0.001),
	}))

	opps := scanner.Scan(ctx, "BTC-USD")
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, "v1", opp.BuyVenue)
	assert.Equal(t, "v2", opp.SellVenue)
	assert.Equal(t, 100.0, opp.BuyPrice)
	assert.Equal(t, 102.0, opp.SellPrice)
	assert.Equal(t, 1.0, opp.FillableQuantity)
	assert.InDelta(t, 2.0, opp.SpreadPct, 1e-9)
	// Net spread is 2 minus both taker fees on the buy price.
	assert.InDelta(t, 2.0-0.002*100, opp.NetProfitEstimate, 1e-9)
	assert.Equal(t, 80.0, opp.ConfidenceScore)
	assert.Equal(t, 30*time.Second, opp.ValidUntil.Sub(opp.DetectedAt))
}

func TestScanSkipsSameVenue(t *testing.T) {
	scanner, store, _ := newTestScanner(t)
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, "BTC-USD", []domain.Quote{
		quote("v1", domain.SideBuy, 100, 1, 0),
		quote("v1", domain.SideSell, 105, 1, 0),
	}))
	assert.Empty(t, scanner.Scan(ctx, "BTC-USD"))
}

func TestScanSkipsFeeEatenSpread(t *testing.T) {
	scanner, store, _ := newTestScanner(t)
	ctx := context.Background()

	// Gross spread 1, fees 1% each side on a 100 buy eat the whole edge.
	require.NoError(t, store.Update(ctx, "BTC-USD", []domain.Quote{
		quote("v1", domain.SideBuy, 100, 1, 0.01),
		quote("v2", domain.SideSell, 101, 1, 0.01),
	}))
	assert.Empty(t, scanner.Scan(ctx, "BTC-USD"))
}

func TestScanSkipsThinSpread(t *testing.T) {
	scanner, store, _ := newTestScanner(t)
	ctx := context.Background()

	// 0.05% gross spread is below the floor even with zero fees.
	require.NoError(t, store.Update(ctx, "BTC-USD", []domain.Quote{
		quote("v1", domain.SideBuy, 100, 1, 0),
		quote("v2", domain.SideSell, 100.05, 1, 0),
	}))
	assert.Empty(t, scanner.Scan(ctx, "BTC-USD"))
}

func TestScanStaleData(t *testing.T) {
	scanner, store, clock := newTestScanner(t)
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, "BTC-USD", []domain.Quote{
		quote("v1", domain.SideBuy, 100, 1, 0),
		quote("v2", domain.SideSell, 105, 1, 0),
	}))
	*clock = clock.Add(time.Minute)
	assert.Empty(t, scanner.Scan(ctx, "BTC-USD"))
}

func TestScanOrdersByNetProfit(t *testing.T) {
	scanner, store, _ := newTestScanner(t)
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, "BTC-USD", []domain.Quote{
		quote("a", domain.SideBuy, 100, 1, 0),
		quote("b", domain.SideBuy, 101, 1, 0),
		quote("c", domain.SideSell, 104, 1, 0),
		quote("d", domain.SideSell, 103, 1, 0),
	}))

	opps := scanner.Scan(ctx, "BTC-USD")
	require.NotEmpty(t, opps)
	for i := 1; i < len(opps); i++ {
		assert.GreaterOrEqual(t, opps[i-1].NetProfitEstimate, opps[i].NetProfitEstimate)
	}
	assert.Equal(t, "a", opps[0].BuyVenue)
	assert.Equal(t, "c", opps[0].SellVenue)
}

func TestOpportunityExpiry(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	opp := domain.ArbOpportunity{ValidUntil: now.Add(30 * time.Second)}

	assert.False(t, opp.Expired(now))
	assert.False(t, opp.Expired(now.Add(30*time.Second)))
	assert.True(t, opp.Expired(now.Add(30*time.Second+time.Nanosecond)))
}
