package router

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

func newTestRouter(t *testing.T) (*Router, *quotes.Store, *time.Time) {
	t.Helper()
	current := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return current }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := quotes.NewStore(quotes.NewMemoryRepositoryWithClock(now), logger,
		quotes.WithClock(now),
	)
	return New(store, logger), store, &current
}

func ask(venue string, price, qty float64) domain.Quote {
	return domain.Quote{
		Venue:          venue,
		Side:           domain.SideBuy,
		Price:          price,
		Quantity:       qty,
		TakerFee:       0.001,
		LatencyMs:      50,
		LiquidityScore: 80,
	}
}

func TestRouteSplitsAcrossVenues(t *testing.T) {
	rt, store, _ := newTestRouter(t)
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, "BTC-USD", []domain.Quote{
		ask("v1", 100, 1.0),
		ask("v2", 101, 1.0),
	}))

	plan, err := rt.Route(ctx, "BTC-USD", domain.SideBuy, 1.5, domain.RoutingConstraints{
		MaxVenues: 2,
	})
	require.NoError(t, err)

	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "v1", plan.Steps[0].Venue)
	assert.Equal(t, 1.0, plan.Steps[0].Quantity)
	assert.Equal(t, domain.StepReasonBestPrice, plan.Steps[0].Reason)
	assert.Equal(t, 1, plan.Steps[0].Priority)
	assert.Equal(t, "v2", plan.Steps[1].Venue)
	assert.Equal(t, 0.5, plan.Steps[1].Quantity)
	assert.Equal(t, domain.StepReasonLiquiditySplit, plan.Steps[1].Reason)
	assert.Equal(t, 2, plan.Steps[1].Priority)

	assert.Equal(t, 1.5, plan.TotalQuantity)
	assert.Greater(t, plan.AveragePrice, 100.0)
	assert.Less(t, plan.AveragePrice, 101.0)
	assert.InDelta(t, (100*1.0+101*0.5)/1.5, plan.AveragePrice, 1e-9)
	assert.Greater(t, plan.EstimatedSlippagePct, 0.0)
}

func TestRouteStaleQuotes(t *testing.T) {
	rt, store, clock := newTestRouter(t)
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, "BTC-USD", []domain.Quote{ask("v1", 100, 1)}))
	*clock = clock.Add(time.Minute)

	_, err := rt.Route(ctx, "BTC-USD", domain.SideBuy, 1, domain.RoutingConstraints{MaxVenues: 1})
	assert.ErrorIs(t, err, domain.ErrNoRoute)
}

func TestRouteBadArguments(t *testing.T) {
	rt, store, _ := newTestRouter(t)
	ctx := context.Background()
	require.NoError(t, store.Update(ctx, "BTC-USD", []domain.Quote{ask("v1", 100, 1)}))

	_, err := rt.Route(ctx, "BTC-USD", domain.SideBuy, 0, domain.RoutingConstraints{MaxVenues: 1})
	assert.ErrorIs(t, err, domain.ErrNoRoute)

	_, err = rt.Route(ctx, "BTC-USD", domain.SideBuy, 1, domain.RoutingConstraints{MaxVenues: 0})
	assert.ErrorIs(t, err, domain.ErrNoRoute)
}

func TestRouteRequireFullFill(t *testing.T) {
	rt, store, _ := newTestRouter(t)
	ctx := context.Background()
	require.NoError(t, store.Update(ctx, "BTC-USD", []domain.Quote{ask("v1", 100, 1)}))

	// Without the flag a partial plan is acceptable.
	plan, err := rt.Route(ctx, "BTC-USD", domain.SideBuy, 2, domain.RoutingConstraints{MaxVenues: 1})
	require.NoError(t, err)
	assert.Equal(t, 1.0, plan.TotalQuantity)

	// With it the whole plan is discarded.
	_, err = rt.Route(ctx, "BTC-USD", domain.SideBuy, 2, domain.RoutingConstraints{
		MaxVenues:       1,
		RequireFullFill: true,
	})
	assert.ErrorIs(t, err, domain.ErrNoRoute)
}

func TestRouteFilters(t *testing.T) {
	rt, store, _ := newTestRouter(t)
	ctx := context.Background()

	slow := ask("slow", 99, 5)
	slow.LatencyMs = 900
	thin := ask("thin", 98, 5)
	thin.LiquidityScore = 10

	require.NoError(t, store.Update(ctx, "BTC-USD", []domain.Quote{
		ask("good", 100, 5),
		ask("banned", 95, 5),
		slow,
		thin,
	}))

	plan, err := rt.Route(ctx, "BTC-USD", domain.SideBuy, 1, domain.RoutingConstraints{
		MaxVenues:         4,
		MaxLatencyMs:      500,
		MinLiquidityScore: 50,
		BlacklistedVenues: []string{"banned"},
	})
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "good", plan.Steps[0].Venue)
}

func TestRoutePreferredVenueWins(t *testing.T) {
	rt, store, _ := newTestRouter(t)
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, "BTC-USD", []domain.Quote{
		ask("cheap", 100, 5),
		ask("pref", 101, 5),
	}))

	plan, err := rt.Route(ctx, "BTC-USD", domain.SideBuy, 1, domain.RoutingConstraints{
		MaxVenues:       2,
		PreferredVenues: []string{"pref"},
	})
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "pref", plan.Steps[0].Venue)

	// Slippage is still measured against the cheapest quote.
	assert.InDelta(t, 1.0, plan.EstimatedSlippagePct, 1e-9)
}

func TestRouteMaxSlippage(t *testing.T) {
	rt, store, _ := newTestRouter(t)
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, "BTC-USD", []domain.Quote{
		ask("cheap", 100, 1),
		ask("dear", 110, 5),
	}))

	_, err := rt.Route(ctx, "BTC-USD", domain.SideBuy, 3, domain.RoutingConstraints{
		MaxVenues:      2,
		MaxSlippagePct: 1.0,
	})
	assert.ErrorIs(t, err, domain.ErrNoRoute)
}

func TestRouteSellSideOrdering(t *testing.T) {
	rt, store, _ := newTestRouter(t)
	ctx := context.Background()

	bid := func(venue string, price, qty float64) domain.Quote {
		q := ask(venue, price, qty)
		q.Side = domain.SideSell
		return q
	}
	require.NoError(t, store.Update(ctx, "ETH-USD", []domain.Quote{
		bid("low", 99, 5),
		bid("high", 101, 5),
	}))

	plan, err := rt.Route(ctx, "ETH-USD", domain.SideSell, 1, domain.RoutingConstraints{MaxVenues: 2})
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "high", plan.Steps[0].Venue)
}

func TestRouteWrongSideOnly(t *testing.T) {
	rt, store, _ := newTestRouter(t)
	ctx := context.Background()
	require.NoError(t, store.Update(ctx, "BTC-USD", []domain.Quote{ask("v1", 100, 1)}))

	_, err := rt.Route(ctx, "BTC-USD", domain.SideSell, 1, domain.RoutingConstraints{MaxVenues: 1})
	assert.ErrorIs(t, err, domain.ErrNoRoute)
}
