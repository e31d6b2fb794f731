package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// PlanStore persists deterministic copy plans.
type PlanStore interface {
	Create(ctx context.Context, plan Plan) error
	GetByID(ctx context.Context, id string) (Plan, error)
	// UpdateStatus applies an operator transition. Implementations must
	// reject transitions for which CanTransition is false with
	// ErrBadTransition.
	UpdateStatus(ctx context.Context, id string, status PlanStatus) error
	// RecordExecution updates the plan aggregates after a completed
	// execution: increments the count, adds pnl, and sets last-executed-at.
	RecordExecution(ctx context.Context, id string, pnl float64, executedAt time.Time) error
	ListByOwner(ctx context.Context, owner string, opts ListOpts) ([]Plan, error)
}

// ExecutionStore persists plan execution records.
type ExecutionStore interface {
	Create(ctx context.Context, exec Execution) error
	GetByID(ctx context.Context, id string) (Execution, error)
	// GetByHash returns the execution with the given deterministic hash, if
	// any. Used to collapse same-second duplicate triggers.
	GetByHash(ctx context.Context, planID, hash string) (Execution, error)
	// Advance moves an execution forward. Implementations must reject moves
	// for which CanAdvance is false with ErrBadTransition.
	Advance(ctx context.Context, id string, status ExecutionStatus, update ExecutionUpdate) error
	ListByPlan(ctx context.Context, planID string, opts ListOpts) ([]Execution, error)
	// CountCompletedSince counts completed executions for the plan created
	// at or after the cutoff. Backs the daily execution cap.
	CountCompletedSince(ctx context.Context, planID string, since time.Time) (int, error)
}

// ExecutionUpdate carries the terminal-state fields written alongside a
// status advance. Zero values are ignored for non-terminal advances.
type ExecutionUpdate struct {
	ResultingOrders []ResultingOrder
	RealizedPnL     float64
	DurationMs      int64
	FailureReason   string
	CompletedAt     *time.Time
}

// TradeStore persists realized trades.
type TradeStore interface {
	InsertBatch(ctx context.Context, trades []Trade) error
	ListByOwnerPeriod(ctx context.Context, owner string, period Period) ([]Trade, error)
	ListBefore(ctx context.Context, before time.Time) ([]Trade, error)
}

// SnapshotStore persists PnL snapshots and their append-only event history.
type SnapshotStore interface {
	Create(ctx context.Context, snap PnLSnapshot) error
	GetByID(ctx context.Context, id string) (PnLSnapshot, error)
	// MarkVerified flips verified false→true. Flipping an already-verified
	// snapshot is a no-op; any other mutation is ErrSnapshotImmutable.
	MarkVerified(ctx context.Context, id string) error
	AppendEvent(ctx context.Context, ev SnapshotEvent) error
	ListEvents(ctx context.Context, snapshotID string) ([]SnapshotEvent, error)
	ListByOwner(ctx context.Context, owner string, opts ListOpts) ([]PnLSnapshot, error)
	// ListVerifiedBefore returns verified snapshots created before the
	// cutoff, for archival.
	ListVerifiedBefore(ctx context.Context, before time.Time) ([]PnLSnapshot, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
