// Package dce implements the deterministic plan engine: operator-defined
// copy trading plans that, on a trigger event, validate constraints, derive
// a reproducible execution identity, and record the outcome. Order placement
// itself is delegated to an external collaborator; the engine's job ends at
// a well-formed, validated, uniquely-identified execution intent and its
// recorded result.
package dce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/veradex/tradecore/internal/canonical"
	"github.com/veradex/tradecore/internal/domain"
)

// OrderExecutor is the external collaborator that places the plan's orders.
// It returns the resulting fills and the realized PnL. When it fails after
// placing some orders, the partial fills must be returned alongside the
// error so the engine can record a compensation step.
type OrderExecutor interface {
	Execute(ctx context.Context, plan domain.Plan, exec domain.Execution) ([]domain.ResultingOrder, float64, error)
	// Compensate reverses previously placed orders. Called when an
	// execution failed after partial placement.
	Compensate(ctx context.Context, orders []domain.ResultingOrder) ([]domain.ResultingOrder, error)
}

// Definition is the operator-supplied content of a new plan.
type Definition struct {
	Owner       string
	Trigger     domain.Trigger
	Actions     []domain.PlanAction
	Constraints domain.PlanConstraints
}

// defaultDedupTTL bounds how long a derived execution hash short-circuits
// duplicate triggers in-process. Well above the one-second quantization
// window.
const defaultDedupTTL = 2 * time.Minute

// defaultLockTTL bounds how long a per-plan trigger lock may be held.
const defaultLockTTL = 30 * time.Second

// Engine runs deterministic copy plans.
type Engine struct {
	plans      domain.PlanStore
	executions domain.ExecutionStore
	executor   OrderExecutor
	locks      domain.LockManager // optional; nil means in-process only
	lockTTL    time.Duration
	dedup      *dedup
	now        func() time.Time
	logger     *slog.Logger
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithClock injects the time source, for deterministic tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithLockManager enables cross-process trigger serialization per plan.
func WithLockManager(locks domain.LockManager) EngineOption {
	return func(e *Engine) { e.locks = locks }
}

// WithLockTTL overrides the per-plan trigger lock lifetime.
func WithLockTTL(ttl time.Duration) EngineOption {
	return func(e *Engine) { e.lockTTL = ttl }
}

// WithDedupTTL overrides how long derived execution hashes are remembered.
func WithDedupTTL(ttl time.Duration) EngineOption {
	return func(e *Engine) { e.dedup = newDedup(ttl) }
}

// NewEngine creates an Engine over the given stores and order executor.
func NewEngine(plans domain.PlanStore, executions domain.ExecutionStore, executor OrderExecutor, logger *slog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		plans:      plans,
		executions: executions,
		executor:   executor,
		lockTTL:    defaultLockTTL,
		dedup:      newDedup(defaultDedupTTL),
		now:        time.Now,
		logger:     logger.With(slog.String("component", "dce_engine")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreatePlan validates the definition, derives the plan's deterministic
// hash from its canonical content, and persists it in active status.
func (e *Engine) CreatePlan(ctx context.Context, def Definition) (domain.Plan, error) {
	if reasons := validateDefinition(def); len(reasons) > 0 {
		return domain.Plan{}, &domain.ValidationError{Reasons: reasons}
	}

	hash, err := planHash(def)
	if err != nil {
		return domain.Plan{}, fmt.Errorf("dce: plan hash: %w", err)
	}

	plan := domain.Plan{
		ID:                uuid.New().String(),
		Owner:             def.Owner,
		Trigger:           def.Trigger,
		Actions:           def.Actions,
		Constraints:       def.Constraints,
		DeterministicHash: hash,
		Status:            domain.PlanStatusActive,
		CreatedAt:         e.now(),
	}
	if err := e.plans.Create(ctx, plan); err != nil {
		return domain.Plan{}, fmt.Errorf("dce: create plan: %w", err)
	}

	e.logger.InfoContext(ctx, "plan created",
		slog.String("plan_id", plan.ID),
		slog.String("owner", plan.Owner),
		slog.String("hash", hash),
	)
	return plan, nil
}

// SetStatus applies an operator status transition. Stopped is terminal;
// illegal transitions return ErrBadTransition.
func (e *Engine) SetStatus(ctx context.Context, planID string, status domain.PlanStatus) error {
	if err := e.plans.UpdateStatus(ctx, planID, status); err != nil {
		return fmt.Errorf("dce: set status %s on %s: %w", status, planID, err)
	}
	e.logger.InfoContext(ctx, "plan status changed",
		slog.String("plan_id", planID),
		slog.String("status", string(status)),
	)
	return nil
}

// Trigger admits a trigger event against a plan. It returns the execution ID
// on success, a *domain.ValidationError listing every violated constraint,
// or ErrPlanNotActive for paused/stopped plans. Two triggers with identical
// payloads racing within the same second derive the same execution hash and
// collapse to one execution.
func (e *Engine) Trigger(ctx context.Context, planID string, trigger map[string]any) (string, error) {
	plan, err := e.plans.GetByID(ctx, planID)
	if err != nil {
		return "", fmt.Errorf("dce: load plan %s: %w", planID, err)
	}
	if plan.Status != domain.PlanStatusActive {
		return "", domain.ErrPlanNotActive
	}

	now := e.now()
	hash, err := executionHash(plan.DeterministicHash, trigger, now)
	if err != nil {
		return "", fmt.Errorf("dce: execution hash: %w", err)
	}

	// Fast path: a racing duplicate already produced this execution.
	if execID, ok := e.dedup.lookup(hash); ok {
		return execID, nil
	}

	if e.locks != nil {
		unlock, err := e.locks.Acquire(ctx, "dce:plan:"+planID, e.lockTTL)
		if err != nil {
			return "", fmt.Errorf("dce: acquire plan lock %s: %w", planID, err)
		}
		defer unlock()
	}

	// A duplicate from another process may have landed while we waited.
	if existing, err := e.executions.GetByHash(ctx, planID, hash); err == nil {
		e.dedup.record(hash, existing.ID)
		return existing.ID, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("dce: lookup execution by hash: %w", err)
	}

	dailyCompleted, err := e.executions.CountCompletedSince(ctx, planID, startOfDay(now))
	if err != nil {
		return "", fmt.Errorf("dce: count daily executions: %w", err)
	}
	if reasons := validateTrigger(plan, now, dailyCompleted); len(reasons) > 0 {
		e.logger.InfoContext(ctx, "trigger rejected",
			slog.String("plan_id", planID),
			slog.Any("reasons", reasons),
		)
		return "", &domain.ValidationError{Reasons: reasons}
	}

	exec := domain.Execution{
		ID:              uuid.New().String(),
		PlanID:          planID,
		TriggerSnapshot: trigger,
		ExecutionHash:   hash,
		Status:          domain.ExecutionPending,
		CreatedAt:       now,
	}
	if err := e.executions.Create(ctx, exec); err != nil {
		return "", fmt.Errorf("dce: create execution: %w", err)
	}
	e.dedup.record(hash, exec.ID)

	if err := e.executions.Advance(ctx, exec.ID, domain.ExecutionExecuting, domain.ExecutionUpdate{}); err != nil {
		return exec.ID, fmt.Errorf("dce: advance to executing: %w", err)
	}

	e.run(ctx, plan, exec)
	return exec.ID, nil
}

// run delegates order placement and records the outcome. Aggregates on the
// plan move only on completion; failures are recorded durably and never
// retried automatically.
func (e *Engine) run(ctx context.Context, plan domain.Plan, exec domain.Execution) {
	started := e.now()
	orders, pnl, execErr := e.executor.Execute(ctx, plan, exec)
	completedAt := e.now()
	duration := completedAt.Sub(started).Milliseconds()

	if execErr != nil {
		update := domain.ExecutionUpdate{
			ResultingOrders: orders,
			FailureReason:   execErr.Error(),
			DurationMs:      duration,
			CompletedAt:     &completedAt,
		}
		if err := e.executions.Advance(ctx, exec.ID, domain.ExecutionFailed, update); err != nil {
			e.logger.ErrorContext(ctx, "record failed execution",
				slog.String("execution_id", exec.ID),
				slog.String("error", err.Error()),
			)
		}
		e.logger.WarnContext(ctx, "execution failed",
			slog.String("plan_id", plan.ID),
			slog.String("execution_id", exec.ID),
			slog.String("reason", execErr.Error()),
		)
		if len(orders) > 0 {
			e.compensate(ctx, plan, exec, orders)
		}
		return
	}

	update := domain.ExecutionUpdate{
		ResultingOrders: orders,
		RealizedPnL:     pnl,
		DurationMs:      duration,
		CompletedAt:     &completedAt,
	}
	if err := e.executions.Advance(ctx, exec.ID, domain.ExecutionCompleted, update); err != nil {
		e.logger.ErrorContext(ctx, "record completed execution",
			slog.String("execution_id", exec.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := e.plans.RecordExecution(ctx, plan.ID, pnl, completedAt); err != nil {
		e.logger.ErrorContext(ctx, "update plan aggregates",
			slog.String("plan_id", plan.ID),
			slog.String("error", err.Error()),
		)
	}

	e.logger.InfoContext(ctx, "execution completed",
		slog.String("plan_id", plan.ID),
		slog.String("execution_id", exec.ID),
		slog.Float64("realized_pnl", pnl),
		slog.Int64("duration_ms", duration),
	)
}

// compensate records an explicit saga step reversing the partial fills of a
// failed execution. Both the original and the compensating attempt remain in
// the execution history, linked by CompensatesID.
func (e *Engine) compensate(ctx context.Context, plan domain.Plan, failed domain.Execution, orders []domain.ResultingOrder) {
	comp := domain.Execution{
		ID:              uuid.New().String(),
		PlanID:          plan.ID,
		TriggerSnapshot: map[string]any{"compensates": failed.ID},
		ExecutionHash:   failed.ExecutionHash + ":comp",
		Status:          domain.ExecutionPending,
		CompensatesID:   failed.ID,
		CreatedAt:       e.now(),
	}
	if err := e.executions.Create(ctx, comp); err != nil {
		e.logger.ErrorContext(ctx, "create compensation record",
			slog.String("execution_id", failed.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := e.executions.Advance(ctx, comp.ID, domain.ExecutionExecuting, domain.ExecutionUpdate{}); err != nil {
		e.logger.ErrorContext(ctx, "advance compensation",
			slog.String("execution_id", comp.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	completedAt := e.now()
	reversed, err := e.executor.Compensate(ctx, orders)
	if err != nil {
		update := domain.ExecutionUpdate{
			FailureReason: err.Error(),
			CompletedAt:   &completedAt,
		}
		_ = e.executions.Advance(ctx, comp.ID, domain.ExecutionFailed, update)
		e.logger.ErrorContext(ctx, "compensation failed",
			slog.String("execution_id", failed.ID),
			slog.String("compensation_id", comp.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	update := domain.ExecutionUpdate{
		ResultingOrders: reversed,
		CompletedAt:     &completedAt,
	}
	if err := e.executions.Advance(ctx, comp.ID, domain.ExecutionCompleted, update); err != nil {
		e.logger.ErrorContext(ctx, "record compensation",
			slog.String("compensation_id", comp.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	e.logger.InfoContext(ctx, "compensation recorded",
		slog.String("execution_id", failed.ID),
		slog.String("compensation_id", comp.ID),
		slog.Int("orders_reversed", len(reversed)),
	)
}

// Cleanup expires old dedup entries. The app calls this on a ticker.
func (e *Engine) Cleanup() {
	e.dedup.cleanup()
}

// planHash derives the deterministic hash of a plan's content. It is
// recomputed from the definition, never edited.
func planHash(def Definition) (string, error) {
	return canonical.HashHex(map[string]any{
		"owner":       def.Owner,
		"trigger":     triggerContent(def.Trigger),
		"actions":     def.Actions,
		"constraints": def.Constraints,
	})
}

// executionHash derives the reproducible execution identity. Trigger time is
// quantized to whole seconds so near-simultaneous triggers collapse to the
// same hash.
func executionHash(planHash string, trigger map[string]any, at time.Time) (string, error) {
	return canonical.HashHex(map[string]any{
		"plan_hash":    planHash,
		"trigger":      trigger,
		"trigger_time": at.Unix(),
	})
}

func triggerContent(t domain.Trigger) map[string]any {
	return map[string]any{
		"type":   t.Type,
		"params": t.Params,
	}
}

func startOfDay(t time.Time) time.Time {
	utc := t.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}
