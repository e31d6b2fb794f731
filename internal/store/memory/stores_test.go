package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veradex/tradecore/internal/domain"
)

func TestPlanStoreTransitions(t *testing.T) {
	ctx := context.Background()
	s := NewPlanStore()
	require.NoError(t, s.Create(ctx, domain.Plan{ID: "p1", Owner: "a", Status: domain.PlanStatusActive}))

	assert.ErrorIs(t, s.Create(ctx, domain.Plan{ID: "p1"}), domain.ErrAlreadyExists)
	assert.ErrorIs(t, s.UpdateStatus(ctx, "p1", domain.PlanStatusActive), domain.ErrBadTransition)

	require.NoError(t, s.UpdateStatus(ctx, "p1", domain.PlanStatusPaused))
	require.NoError(t, s.UpdateStatus(ctx, "p1", domain.PlanStatusActive))
	require.NoError(t, s.UpdateStatus(ctx, "p1", domain.PlanStatusStopped))
	assert.ErrorIs(t, s.UpdateStatus(ctx, "p1", domain.PlanStatusActive), domain.ErrBadTransition)
	assert.ErrorIs(t, s.UpdateStatus(ctx, "missing", domain.PlanStatusPaused), domain.ErrNotFound)
}

func TestPlanStoreRecordExecution(t *testing.T) {
	ctx := context.Background()
	s := NewPlanStore()
	require.NoError(t, s.Create(ctx, domain.Plan{ID: "p1", Owner: "a", Status: domain.PlanStatusActive}))

	at := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordExecution(ctx, "p1", 5.0, at))
	require.NoError(t, s.RecordExecution(ctx, "p1", -2.0, at.Add(time.Hour)))

	plan, err := s.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), plan.ExecutionCount)
	assert.InDelta(t, 3.0, plan.CumulativePnL, 1e-9)
	require.NotNil(t, plan.LastExecutedAt)
	assert.Equal(t, at.Add(time.Hour), *plan.LastExecutedAt)
}

func TestPlanStorePagination(t *testing.T) {
	ctx := context.Background()
	s := NewPlanStore()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"p1", "p2", "p3"} {
		require.NoError(t, s.Create(ctx, domain.Plan{
			ID: id, Owner: "a", Status: domain.PlanStatusActive,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	page, err := s.ListByOwner(ctx, "a", domain.ListOpts{Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "p2", page[0].ID)

	empty, err := s.ListByOwner(ctx, "a", domain.ListOpts{Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestExecutionStoreForwardOnly(t *testing.T) {
	ctx := context.Background()
	s := NewExecutionStore()
	require.NoError(t, s.Create(ctx, domain.Execution{
		ID: "e1", PlanID: "p1", ExecutionHash: "h1", Status: domain.ExecutionPending,
	}))

	// Skipping a state or moving backward is rejected.
	assert.ErrorIs(t, s.Advance(ctx, "e1", domain.ExecutionCompleted, domain.ExecutionUpdate{}), domain.ErrBadTransition)
	require.NoError(t, s.Advance(ctx, "e1", domain.ExecutionExecuting, domain.ExecutionUpdate{}))
	assert.ErrorIs(t, s.Advance(ctx, "e1", domain.ExecutionPending, domain.ExecutionUpdate{}), domain.ErrBadTransition)

	done := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Advance(ctx, "e1", domain.ExecutionCompleted, domain.ExecutionUpdate{
		RealizedPnL: 7.5,
		DurationMs:  120,
		CompletedAt: &done,
	}))
	assert.ErrorIs(t, s.Advance(ctx, "e1", domain.ExecutionFailed, domain.ExecutionUpdate{}), domain.ErrBadTransition)

	exec, err := s.GetByID(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionCompleted, exec.Status)
	assert.Equal(t, 7.5, exec.RealizedPnL)
	assert.Equal(t, int64(120), exec.DurationMs)
}

func TestExecutionStoreGetByHash(t *testing.T) {
	ctx := context.Background()
	s := NewExecutionStore()
	require.NoError(t, s.Create(ctx, domain.Execution{ID: "e1", PlanID: "p1", ExecutionHash: "h1"}))

	exec, err := s.GetByHash(ctx, "p1", "h1")
	require.NoError(t, err)
	assert.Equal(t, "e1", exec.ID)

	// Hashes are scoped to their plan.
	_, err = s.GetByHash(ctx, "p2", "h1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExecutionStoreCountCompletedSince(t *testing.T) {
	ctx := context.Background()
	s := NewExecutionStore()
	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	seed := []domain.Execution{
		{ID: "e1", PlanID: "p1", ExecutionHash: "h1", Status: domain.ExecutionCompleted, CreatedAt: day.Add(time.Hour)},
		{ID: "e2", PlanID: "p1", ExecutionHash: "h2", Status: domain.ExecutionFailed, CreatedAt: day.Add(2 * time.Hour)},
		{ID: "e3", PlanID: "p1", ExecutionHash: "h3", Status: domain.ExecutionCompleted, CreatedAt: day.Add(-time.Hour)},
	}
	for _, e := range seed {
		require.NoError(t, s.Create(ctx, e))
	}

	count, err := s.CountCompletedSince(ctx, "p1", day)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "failed and prior-day executions excluded")
}

func TestSnapshotStoreMarkVerifiedMonotonic(t *testing.T) {
	ctx := context.Background()
	s := NewSnapshotStore()
	require.NoError(t, s.Create(ctx, domain.PnLSnapshot{ID: "s1", Owner: "a"}))

	require.NoError(t, s.MarkVerified(ctx, "s1"))
	require.NoError(t, s.MarkVerified(ctx, "s1"), "re-marking is a no-op")
	assert.ErrorIs(t, s.MarkVerified(ctx, "missing"), domain.ErrNotFound)

	snap, err := s.GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, snap.Verified)
}

func TestSnapshotStoreEventsAppendOnly(t *testing.T) {
	ctx := context.Background()
	s := NewSnapshotStore()
	require.NoError(t, s.Create(ctx, domain.PnLSnapshot{ID: "s1", Owner: "a"}))

	assert.ErrorIs(t, s.AppendEvent(ctx, domain.SnapshotEvent{SnapshotID: "missing", Event: "created"}), domain.ErrNotFound)
	require.NoError(t, s.AppendEvent(ctx, domain.SnapshotEvent{SnapshotID: "s1", Event: "created"}))
	require.NoError(t, s.AppendEvent(ctx, domain.SnapshotEvent{SnapshotID: "s1", Event: "verified"}))

	events, err := s.ListEvents(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "created", events[0].Event)
	assert.Equal(t, "verified", events[1].Event)
	assert.Less(t, events[0].ID, events[1].ID)
}

func TestTradeStorePeriodBoundaries(t *testing.T) {
	ctx := context.Background()
	s := NewTradeStore()
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	require.NoError(t, s.InsertBatch(ctx, []domain.Trade{
		{ID: "t1", Owner: "a", Timestamp: start},
		{ID: "t2", Owner: "a", Timestamp: end.Add(-time.Nanosecond)},
		{ID: "t3", Owner: "a", Timestamp: end},
		{ID: "t4", Owner: "b", Timestamp: start},
	}))

	trades, err := s.ListByOwnerPeriod(ctx, "a", domain.Period{Start: start, End: end})
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "t1", trades[0].ID)
	assert.Equal(t, "t2", trades[1].ID)
}

func TestAuditStoreAppends(t *testing.T) {
	ctx := context.Background()
	s := NewAuditStore()
	require.NoError(t, s.Log(ctx, "first", map[string]any{"k": "v"}))
	require.NoError(t, s.Log(ctx, "second", nil))

	entries, err := s.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0].Event)
	assert.Equal(t, "v", entries[0].Detail["k"])
	assert.Equal(t, "second", entries[1].Event)
}
