package domain

import "time"

// PlanStatus is the operator-driven lifecycle state of a deterministic copy
// plan. Stopped is terminal; reactivation requires a new plan.
type PlanStatus string

const (
	PlanStatusActive  PlanStatus = "active"
	PlanStatusPaused  PlanStatus = "paused"
	PlanStatusStopped PlanStatus = "stopped"
)

// ValidPlanStatus reports whether s is one of the closed set of statuses.
func ValidPlanStatus(s PlanStatus) bool {
	switch s {
	case PlanStatusActive, PlanStatusPaused, PlanStatusStopped:
		return true
	}
	return false
}

// CanTransition reports whether a plan may move from one status to another.
// Active and paused are interchangeable; stopped accepts no exits.
func CanTransition(from, to PlanStatus) bool {
	if !ValidPlanStatus(from) || !ValidPlanStatus(to) {
		return false
	}
	if from == PlanStatusStopped {
		return false
	}
	return from != to
}

// Trigger describes what fires a plan.
type Trigger struct {
	Type   string
	Params map[string]any
}

// PlanAction is one ordered action executed when a plan fires.
type PlanAction struct {
	Type       string // "market", "limit"
	Symbol     string
	Venue      string
	Side       Side
	Sizing     ActionSizing
	Pricing    ActionPricing
	Protective *ProtectiveOrders
}

// ActionSizing controls position size for an action.
type ActionSizing struct {
	Mode     string // "fixed", "pct_equity"
	Quantity float64
	Pct      float64
}

// ActionPricing controls the price of an action. An empty mode means market.
type ActionPricing struct {
	Mode       string // "market", "limit"
	LimitPrice float64
}

// ProtectiveOrders are optional stop/take levels attached to an action.
type ProtectiveOrders struct {
	StopLossPct   float64
	TakeProfitPct float64
}

// TradingHours is an optional HH:MM window (UTC). A window whose start is
// after its end wraps past midnight.
type TradingHours struct {
	Start string
	End   string
}

// PlanConstraints gate every trigger before an execution is admitted.
type PlanConstraints struct {
	MaxPosition        float64
	MaxDailyExecutions int
	AllowedSymbols     []string
	AllowedVenues      []string
	TradingHours       *TradingHours
	CooldownMs         int64
}

// Plan is a deterministic copy trading plan. Created by an operator, mutated
// only by status transitions and post-execution bookkeeping, never deleted.
type Plan struct {
	ID                string
	Owner             string
	Trigger           Trigger
	Actions           []PlanAction
	Constraints       PlanConstraints
	DeterministicHash string // recomputed from content, never hand-edited
	Status            PlanStatus
	ExecutionCount    int64
	CumulativePnL     float64
	LastExecutedAt    *time.Time
	CreatedAt         time.Time
}
