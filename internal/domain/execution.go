package domain

import "time"

// ExecutionStatus is the forward-only lifecycle of one plan execution.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionExecuting ExecutionStatus = "executing"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// executionRank orders statuses along the lifecycle. Terminal states share
// the highest rank so neither can replace the other.
func executionRank(s ExecutionStatus) int {
	switch s {
	case ExecutionPending:
		return 0
	case ExecutionExecuting:
		return 1
	case ExecutionCompleted, ExecutionFailed:
		return 2
	}
	return -1
}

// CanAdvance reports whether an execution may move from one status to
// another. Status only moves forward; terminal states accept no exits.
func CanAdvance(from, to ExecutionStatus) bool {
	fr, tr := executionRank(from), executionRank(to)
	if fr < 0 || tr < 0 {
		return false
	}
	return tr == fr+1
}

// ResultingOrder is one fill reported by the external order executor.
type ResultingOrder struct {
	OrderID  string
	Symbol   string
	Venue    string
	Side     Side
	Quantity float64
	Price    float64
	FeeUSD   float64
}

// Execution records one admitted trigger of a plan, identified by a
// deterministic hash so that triggers racing within the same second collapse
// to the same identity.
type Execution struct {
	ID              string
	PlanID          string
	TriggerSnapshot map[string]any
	ExecutionHash   string
	Status          ExecutionStatus
	ResultingOrders []ResultingOrder
	RealizedPnL     float64
	DurationMs      int64
	FailureReason   string
	// CompensatesID links a compensation execution back to the execution it
	// reverses. Empty for ordinary executions.
	CompensatesID string
	CreatedAt     time.Time
	CompletedAt   *time.Time
}
