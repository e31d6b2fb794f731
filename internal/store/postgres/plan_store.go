package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veradex/tradecore/internal/domain"
)

// PlanStore implements domain.PlanStore using PostgreSQL.
type PlanStore struct {
	pool *pgxpool.Pool
}

// NewPlanStore creates a new PlanStore.
func NewPlanStore(pool *pgxpool.Pool) *PlanStore {
	return &PlanStore{pool: pool}
}

// Create inserts a plan.
func (s *PlanStore) Create(ctx context.Context, plan domain.Plan) error {
	params, err := json.Marshal(plan.Trigger.Params)
	if err != nil {
		return fmt.Errorf("postgres: marshal trigger params: %w", err)
	}
	actions, err := json.Marshal(plan.Actions)
	if err != nil {
		return fmt.Errorf("postgres: marshal actions: %w", err)
	}
	constraints, err := json.Marshal(plan.Constraints)
	if err != nil {
		return fmt.Errorf("postgres: marshal constraints: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO dce_plans (id, owner_id, trigger_type, trigger_params, actions, constraints, deterministic_hash, status, execution_count, total_pnl, last_executed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		plan.ID, plan.Owner, plan.Trigger.Type, params, actions, constraints,
		plan.DeterministicHash, string(plan.Status), plan.ExecutionCount,
		plan.CumulativePnL, plan.LastExecutedAt, plan.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert plan: %w", err)
	}
	return nil
}

// GetByID returns the plan or domain.ErrNotFound.
func (s *PlanStore) GetByID(ctx context.Context, id string) (domain.Plan, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, owner_id, trigger_type, trigger_params, actions, constraints, deterministic_hash, status, execution_count, total_pnl, last_executed_at, created_at
		FROM dce_plans WHERE id = $1`, id)
	plan, err := scanPlan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Plan{}, domain.ErrNotFound
		}
		return domain.Plan{}, fmt.Errorf("postgres: get plan %s: %w", id, err)
	}
	return plan, nil
}

// UpdateStatus applies an operator transition. The transition is validated
// against the current row under the same statement, so racing updates
// cannot bypass the state machine.
func (s *PlanStore) UpdateStatus(ctx context.Context, id string, status domain.PlanStatus) error {
	if !domain.ValidPlanStatus(status) {
		return domain.ErrBadTransition
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE dce_plans SET status = $2
		WHERE id = $1 AND status <> 'stopped' AND status <> $2`,
		id, string(status),
	)
	if err != nil {
		return fmt.Errorf("postgres: update plan status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM dce_plans WHERE id = $1)", id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: check plan %s: %w", id, err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrBadTransition
	}
	return nil
}

// RecordExecution updates the plan aggregates after a completed execution.
func (s *PlanStore) RecordExecution(ctx context.Context, id string, pnl float64, executedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE dce_plans
		SET execution_count = execution_count + 1,
		    total_pnl = total_pnl + $2,
		    last_executed_at = $3
		WHERE id = $1`,
		id, pnl, executedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByOwner returns the owner's plans ordered by creation time.
func (s *PlanStore) ListByOwner(ctx context.Context, owner string, opts domain.ListOpts) ([]domain.Plan, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_id, trigger_type, trigger_params, actions, constraints, deterministic_hash, status, execution_count, total_pnl, last_executed_at, created_at
		FROM dce_plans WHERE owner_id = $1
		ORDER BY created_at LIMIT $2 OFFSET $3`,
		owner, limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list plans: %w", err)
	}
	defer rows.Close()

	var out []domain.Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan plan: %w", err)
		}
		out = append(out, plan)
	}
	return out, rows.Err()
}

func scanPlan(row pgx.Row) (domain.Plan, error) {
	var plan domain.Plan
	var params, actions, constraints []byte
	var status string
	err := row.Scan(&plan.ID, &plan.Owner, &plan.Trigger.Type, &params, &actions,
		&constraints, &plan.DeterministicHash, &status, &plan.ExecutionCount,
		&plan.CumulativePnL, &plan.LastExecutedAt, &plan.CreatedAt)
	if err != nil {
		return domain.Plan{}, err
	}
	plan.Status = domain.PlanStatus(status)
	if err := json.Unmarshal(params, &plan.Trigger.Params); err != nil {
		return domain.Plan{}, fmt.Errorf("unmarshal trigger params: %w", err)
	}
	if err := json.Unmarshal(actions, &plan.Actions); err != nil {
		return domain.Plan{}, fmt.Errorf("unmarshal actions: %w", err)
	}
	if err := json.Unmarshal(constraints, &plan.Constraints); err != nil {
		return domain.Plan{}, fmt.Errorf("unmarshal constraints: %w", err)
	}
	return plan, nil
}

// Compile-time interface check.
var _ domain.PlanStore = (*PlanStore)(nil)
