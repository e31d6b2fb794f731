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

// ExecutionStore implements domain.ExecutionStore using PostgreSQL.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates a new ExecutionStore.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

// Create inserts an execution record.
func (s *ExecutionStore) Create(ctx context.Context, exec domain.Execution) error {
	trigger, err := json.Marshal(exec.TriggerSnapshot)
	if err != nil {
		return fmt.Errorf("postgres: marshal trigger snapshot: %w", err)
	}
	var compensates *string
	if exec.CompensatesID != "" {
		compensates = &exec.CompensatesID
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO dce_executions (id, plan_id, trigger_data, execution_hash, status, compensates_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		exec.ID, exec.PlanID, trigger, exec.ExecutionHash, string(exec.Status),
		compensates, exec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution: %w", err)
	}
	return nil
}

// GetByID returns the execution or domain.ErrNotFound.
func (s *ExecutionStore) GetByID(ctx context.Context, id string) (domain.Execution, error) {
	row := s.pool.QueryRow(ctx, selectExecution+" WHERE id = $1", id)
	exec, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Execution{}, domain.ErrNotFound
		}
		return domain.Execution{}, fmt.Errorf("postgres: get execution %s: %w", id, err)
	}
	return exec, nil
}

// GetByHash returns the execution with the given deterministic hash.
func (s *ExecutionStore) GetByHash(ctx context.Context, planID, hash string) (domain.Execution, error) {
	row := s.pool.QueryRow(ctx, selectExecution+" WHERE plan_id = $1 AND execution_hash = $2", planID, hash)
	exec, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Execution{}, domain.ErrNotFound
		}
		return domain.Execution{}, fmt.Errorf("postgres: get execution by hash: %w", err)
	}
	return exec, nil
}

// Advance moves an execution forward inside one transaction, re-reading the
// current status under FOR UPDATE so backward moves are impossible even
// under concurrent writers.
func (s *ExecutionStore) Advance(ctx context.Context, id string, status domain.ExecutionStatus, update domain.ExecutionUpdate) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current string
	err = tx.QueryRow(ctx,
		"SELECT status FROM dce_executions WHERE id = $1 FOR UPDATE", id,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("postgres: lock execution %s: %w", id, err)
	}
	if !domain.CanAdvance(domain.ExecutionStatus(current), status) {
		return domain.ErrBadTransition
	}

	var orders []byte
	if len(update.ResultingOrders) > 0 {
		orders, err = json.Marshal(update.ResultingOrders)
		if err != nil {
			return fmt.Errorf("postgres: marshal orders: %w", err)
		}
	}
	var errMsg *string
	if update.FailureReason != "" {
		errMsg = &update.FailureReason
	}
	_, err = tx.Exec(ctx, `
		UPDATE dce_executions
		SET status = $2,
		    orders_data = COALESCE($3, orders_data),
		    actual_pnl = CASE WHEN $2 = 'completed' THEN $4 ELSE actual_pnl END,
		    execution_time_ms = CASE WHEN $5 > 0 THEN $5 ELSE execution_time_ms END,
		    error_message = COALESCE($6, error_message),
		    completed_at = COALESCE($7, completed_at)
		WHERE id = $1`,
		id, string(status), orders, update.RealizedPnL, update.DurationMs,
		errMsg, update.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: advance execution %s: %w", id, err)
	}

	return tx.Commit(ctx)
}

// ListByPlan returns the plan's executions ordered by creation time.
func (s *ExecutionStore) ListByPlan(ctx context.Context, planID string, opts domain.ListOpts) ([]domain.Execution, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		selectExecution+" WHERE plan_id = $1 ORDER BY created_at LIMIT $2 OFFSET $3",
		planID, limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions: %w", err)
	}
	defer rows.Close()

	var out []domain.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan execution: %w", err)
		}
		out = append(out, exec)
	}
	return out, rows.Err()
}

// CountCompletedSince counts completed executions created at or after since.
func (s *ExecutionStore) CountCompletedSince(ctx context.Context, planID string, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM dce_executions
		WHERE plan_id = $1 AND status = 'completed' AND created_at >= $2`,
		planID, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count completed executions: %w", err)
	}
	return count, nil
}

const selectExecution = `
	SELECT id, plan_id, trigger_data, execution_hash, status, orders_data, actual_pnl, execution_time_ms, error_message, compensates_id, created_at, completed_at
	FROM dce_executions`

func scanExecution(row pgx.Row) (domain.Execution, error) {
	var exec domain.Execution
	var trigger, orders []byte
	var status string
	var pnl *float64
	var durationMs *int64
	var errMsg, compensates *string
	err := row.Scan(&exec.ID, &exec.PlanID, &trigger, &exec.ExecutionHash,
		&status, &orders, &pnl, &durationMs, &errMsg, &compensates,
		&exec.CreatedAt, &exec.CompletedAt)
	if err != nil {
		return domain.Execution{}, err
	}
	exec.Status = domain.ExecutionStatus(status)
	if err := json.Unmarshal(trigger, &exec.TriggerSnapshot); err != nil {
		return domain.Execution{}, fmt.Errorf("unmarshal trigger data: %w", err)
	}
	if len(orders) > 0 {
		if err := json.Unmarshal(orders, &exec.ResultingOrders); err != nil {
			return domain.Execution{}, fmt.Errorf("unmarshal orders data: %w", err)
		}
	}
	if pnl != nil {
		exec.RealizedPnL = *pnl
	}
	if durationMs != nil {
		exec.DurationMs = *durationMs
	}
	if errMsg != nil {
		exec.FailureReason = *errMsg
	}
	if compensates != nil {
		exec.CompensatesID = *compensates
	}
	return exec, nil
}

// Compile-time interface check.
var _ domain.ExecutionStore = (*ExecutionStore)(nil)
