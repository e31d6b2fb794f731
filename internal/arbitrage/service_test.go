package arbitrage

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veradex/tradecore/internal/domain"
	"github.com/veradex/tradecore/internal/store/memory"
)

func newTestService(cfg Config) (*Service, *memory.AuditStore) {
	audit := memory.NewAuditStore()
	svc := NewService(nil, audit, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return svc, audit
}

func TestEvaluateGates(t *testing.T) {
	svc, _ := newTestService(Config{
		MinNetProfitUSD:   5,
		MaxNotionalUSD:    1_000,
		KillSwitchLossUSD: 100,
	})
	ctx := context.Background()

	base := domain.ArbOpportunity{
		ID:                "opp-1",
		BuyPrice:          100,
		FillableQuantity:  5,
		NetProfitEstimate: 10,
	}
	assert.True(t, svc.Evaluate(ctx, base))

	thin := base
	thin.NetProfitEstimate = 4.99
	assert.False(t, svc.Evaluate(ctx, thin), "below minimum profit")

	big := base
	big.FillableQuantity = 50 // notional 5000 > 1000
	assert.False(t, svc.Evaluate(ctx, big), "notional over limit")
}

func TestKillSwitchTripsOnCumulativeLoss(t *testing.T) {
	svc, audit := newTestService(Config{
		MinNetProfitUSD:   1,
		KillSwitchLossUSD: 100,
	})
	ctx := context.Background()

	opp := domain.ArbOpportunity{
		ID:                "opp-1",
		BuyPrice:          100,
		FillableQuantity:  1,
		NetProfitEstimate: 10,
	}
	require.True(t, svc.Evaluate(ctx, opp))

	svc.RecordOutcome(ctx, -60)
	assert.True(t, svc.Evaluate(ctx, opp), "loss within budget")

	svc.RecordOutcome(ctx, -45)
	assert.False(t, svc.Evaluate(ctx, opp), "cumulative loss past budget")

	// Tripping is one-way: later profits do not re-arm the switch.
	svc.RecordOutcome(ctx, 500)
	assert.False(t, svc.Evaluate(ctx, opp))

	entries, err := audit.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 1, "trip is audited exactly once")
	assert.Equal(t, "arb_kill_switch", entries[0].Event)
	assert.InDelta(t, -105.0, entries[0].Detail["session_pnl"].(float64), 1e-9)
}

func TestKillSwitchDisabledByZeroBudget(t *testing.T) {
	svc, _ := newTestService(Config{MinNetProfitUSD: 1})
	ctx := context.Background()

	svc.RecordOutcome(ctx, -1_000_000)
	opp := domain.ArbOpportunity{
		ID:                "opp-1",
		BuyPrice:          100,
		FillableQuantity:  1,
		NetProfitEstimate: 10,
	}
	assert.True(t, svc.Evaluate(ctx, opp))
}

func TestRecordWritesAudit(t *testing.T) {
	svc, audit := newTestService(Config{})
	ctx := context.Background()

	opp := domain.ArbOpportunity{
		ID:                "opp-1",
		Symbol:            "BTC-USD",
		BuyVenue:          "v1",
		SellVenue:         "v2",
		NetProfitEstimate: 3.2,
	}
	require.NoError(t, svc.Record(ctx, opp))

	entries, err := audit.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "arb_detected", entries[0].Event)
	assert.Equal(t, "opp-1", entries[0].Detail["opp_id"])
}
