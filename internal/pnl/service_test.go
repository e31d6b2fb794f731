package pnl

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veradex/tradecore/internal/canonical"
	"github.com/veradex/tradecore/internal/domain"
	"github.com/veradex/tradecore/internal/merkle"
	"github.com/veradex/tradecore/internal/store/memory"
)

type pnlFixture struct {
	svc    *Service
	trades *memory.TradeStore
	snaps  *memory.SnapshotStore
	audit  *memory.AuditStore
	clock  *time.Time
}

func newPnLFixture(t *testing.T) *pnlFixture {
	t.Helper()
	current := time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)
	f := &pnlFixture{
		trades: memory.NewTradeStore(),
		snaps:  memory.NewSnapshotStore(),
		audit:  memory.NewAuditStore(),
		clock:  &current,
	}
	f.svc = NewService(f.trades, f.snaps, f.audit, slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithClock(func() time.Time { return *f.clock }),
	)
	return f
}

func aug1Period() domain.Period {
	return domain.Period{
		Start: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC),
	}
}

func trade(id, symbol string, side domain.Side, qty, price, pnl float64, at time.Time) domain.Trade {
	return domain.Trade{
		ID: id, Owner: "acct-1", Symbol: symbol, Side: side,
		Quantity: qty, Price: price, PnL: pnl, Timestamp: at,
	}
}

func TestCreateSnapshotTotalsAndPositions(t *testing.T) {
	f := newPnLFixture(t)
	period := aug1Period()
	at := period.Start.Add(time.Hour)
	trades := []domain.Trade{
		trade("t1", "BTC-USD", domain.SideBuy, 1.0, 50_000, 0, at),
		trade("t2", "BTC-USD", domain.SideSell, 0.4, 51_000, 400, at.Add(time.Hour)),
		trade("t3", "ETH-USD", domain.SideBuy, 2.0, 3_000, -30, at.Add(2*time.Hour)),
	}

	snap, err := f.svc.CreateSnapshot(context.Background(), "acct-1", domain.SnapshotDaily, period, trades)
	require.NoError(t, err)

	assert.InDelta(t, 370.0, snap.TotalPnL, 1e-9)
	assert.InDelta(t, 400.0, snap.RealizedPnL, 1e-9, "only sells realize")
	assert.InDelta(t, -30.0, snap.UnrealizedPnL, 1e-9)
	assert.Equal(t, 3, snap.TradeCount)
	assert.False(t, snap.Verified)

	require.Len(t, snap.Positions, 2)
	btc, eth := snap.Positions[0], snap.Positions[1]
	assert.Equal(t, "BTC-USD", btc.Symbol)
	assert.InDelta(t, 0.6, btc.NetQty, 1e-9)
	assert.InDelta(t, (50_000*1.0+51_000*0.4)/1.4, btc.AvgPrice, 1e-6)
	assert.Equal(t, "ETH-USD", eth.Symbol)
	assert.InDelta(t, 2.0, eth.NetQty, 1e-9)
}

func TestCreateSnapshotRootMatchesTradeLeaves(t *testing.T) {
	f := newPnLFixture(t)
	period := aug1Period()
	trades := []domain.Trade{
		trade("t1", "BTC-USD", domain.SideBuy, 1, 50_000, 0, period.Start),
		trade("t2", "BTC-USD", domain.SideSell, 1, 50_500, 500, period.Start.Add(time.Hour)),
	}

	snap, err := f.svc.CreateSnapshot(context.Background(), "acct-1", domain.SnapshotDaily, period, trades)
	require.NoError(t, err)

	var leaves [][]byte
	for _, tr := range trades {
		leaf, err := canonical.TradeLeaf(tr)
		require.NoError(t, err)
		leaves = append(leaves, leaf)
	}
	tree, err := merkle.Build(leaves)
	require.NoError(t, err)
	assert.Equal(t, tree.Root(), snap.MerkleRoot)
	assert.Equal(t, 0, snap.Proof.LeafIndex)
	assert.True(t, merkle.Verify(snap.Proof, snap.MerkleRoot))
}

func TestCreateSnapshotEmptyPeriod(t *testing.T) {
	f := newPnLFixture(t)
	period := aug1Period()

	snap, err := f.svc.CreateSnapshot(context.Background(), "acct-1", domain.SnapshotDaily, period, nil)
	require.NoError(t, err)
	assert.Zero(t, snap.TradeCount)
	assert.Empty(t, snap.Positions)
	require.NotEmpty(t, snap.MerkleRoot, "empty period still commits to a synthetic leaf")

	leaf, err := canonical.EmptyPeriodLeaf("acct-1", period)
	require.NoError(t, err)
	tree, err := merkle.Build([][]byte{leaf})
	require.NoError(t, err)
	assert.Equal(t, tree.Root(), snap.MerkleRoot)
}

func TestCreateSnapshotRejectsUnknownKind(t *testing.T) {
	f := newPnLFixture(t)
	_, err := f.svc.CreateSnapshot(context.Background(), "acct-1", domain.SnapshotKind("hourly"), aug1Period(), nil)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestCreateForPeriodHalfOpenRange(t *testing.T) {
	f := newPnLFixture(t)
	period := aug1Period()
	ctx := context.Background()
	require.NoError(t, f.trades.InsertBatch(ctx, []domain.Trade{
		trade("in-start", "BTC-USD", domain.SideBuy, 1, 100, 0, period.Start),
		trade("in-mid", "BTC-USD", domain.SideSell, 1, 101, 1, period.Start.Add(12*time.Hour)),
		trade("at-end", "BTC-USD", domain.SideBuy, 1, 102, 0, period.End),
		trade("before", "BTC-USD", domain.SideBuy, 1, 99, 0, period.Start.Add(-time.Second)),
	}))

	snap, err := f.svc.CreateForPeriod(ctx, "acct-1", domain.SnapshotDaily, period)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.TradeCount, "end boundary and earlier trades excluded")
}

func TestVerifyFlipsFlagOnce(t *testing.T) {
	f := newPnLFixture(t)
	ctx := context.Background()

	snap, err := f.svc.CreateSnapshot(ctx, "acct-1", domain.SnapshotDaily, aug1Period(), nil)
	require.NoError(t, err)

	ok, err := f.svc.Verify(ctx, snap.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// Re-verification succeeds without appending another event.
	ok, err = f.svc.Verify(ctx, snap.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	trail, err := f.svc.AuditTrail(ctx, snap.ID)
	require.NoError(t, err)
	assert.True(t, trail.Snapshot.Verified)
	require.Len(t, trail.Events, 2)
	assert.Equal(t, domain.SnapshotEventCreated, trail.Events[0].Event)
	assert.Equal(t, domain.SnapshotEventVerified, trail.Events[1].Event)
}

func TestVerifyDetectsTamperedRoot(t *testing.T) {
	f := newPnLFixture(t)
	ctx := context.Background()

	snap, err := f.svc.CreateSnapshot(ctx, "acct-1", domain.SnapshotDaily, aug1Period(), nil)
	require.NoError(t, err)

	tampered := snap
	tampered.ID = "tampered"
	tampered.MerkleRoot = append([]byte(nil), snap.MerkleRoot...)
	tampered.MerkleRoot[0] ^= 0xff
	require.NoError(t, f.snaps.Create(ctx, tampered))

	ok, err := f.svc.Verify(ctx, tampered.ID)
	require.NoError(t, err, "mismatch is a result, not an error")
	assert.False(t, ok)

	got, err := f.snaps.GetByID(ctx, tampered.ID)
	require.NoError(t, err)
	assert.False(t, got.Verified, "failed verification leaves the flag untouched")
}

func TestVerifyDetectsTamperedProof(t *testing.T) {
	f := newPnLFixture(t)
	ctx := context.Background()
	period := aug1Period()
	trades := []domain.Trade{
		trade("t1", "BTC-USD", domain.SideBuy, 1, 100, 0, period.Start),
		trade("t2", "BTC-USD", domain.SideSell, 1, 101, 1, period.Start.Add(time.Hour)),
	}

	snap, err := f.svc.CreateSnapshot(ctx, "acct-1", domain.SnapshotDaily, period, trades)
	require.NoError(t, err)

	tampered := snap
	tampered.ID = "tampered-proof"
	tampered.Proof.LeafHash = append([]byte(nil), snap.Proof.LeafHash...)
	tampered.Proof.LeafHash[0] ^= 0x01
	require.NoError(t, f.snaps.Create(ctx, tampered))

	ok, err := f.svc.Verify(ctx, tampered.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyUnknownSnapshot(t *testing.T) {
	f := newPnLFixture(t)
	_, err := f.svc.Verify(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
