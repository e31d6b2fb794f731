package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/veradex/tradecore/internal/domain"
)

// ExecutionStore is an in-memory domain.ExecutionStore.
type ExecutionStore struct {
	mu    sync.RWMutex
	execs map[string]domain.Execution
}

// NewExecutionStore creates an empty ExecutionStore.
func NewExecutionStore() *ExecutionStore {
	return &ExecutionStore{execs: make(map[string]domain.Execution)}
}

// Create inserts an execution; duplicate IDs return ErrAlreadyExists.
func (s *ExecutionStore) Create(_ context.Context, exec domain.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.execs[exec.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.execs[exec.ID] = exec
	return nil
}

// GetByID returns the execution or ErrNotFound.
func (s *ExecutionStore) GetByID(_ context.Context, id string) (domain.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exec, ok := s.execs[id]
	if !ok {
		return domain.Execution{}, domain.ErrNotFound
	}
	return exec, nil
}

// GetByHash returns the execution with the given deterministic hash.
func (s *ExecutionStore) GetByHash(_ context.Context, planID, hash string) (domain.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, exec := range s.execs {
		if exec.PlanID == planID && exec.ExecutionHash == hash {
			return exec, nil
		}
	}
	return domain.Execution{}, domain.ErrNotFound
}

// Advance moves an execution forward, rejecting backward or skipped moves.
func (s *ExecutionStore) Advance(_ context.Context, id string, status domain.ExecutionStatus, update domain.ExecutionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.execs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !domain.CanAdvance(exec.Status, status) {
		return domain.ErrBadTransition
	}
	exec.Status = status
	if len(update.ResultingOrders) > 0 {
		exec.ResultingOrders = update.ResultingOrders
	}
	if status == domain.ExecutionCompleted {
		exec.RealizedPnL = update.RealizedPnL
	}
	if update.DurationMs > 0 {
		exec.DurationMs = update.DurationMs
	}
	if update.FailureReason != "" {
		exec.FailureReason = update.FailureReason
	}
	if update.CompletedAt != nil {
		exec.CompletedAt = update.CompletedAt
	}
	s.execs[id] = exec
	return nil
}

// ListByPlan returns the plan's executions ordered by creation time.
func (s *ExecutionStore) ListByPlan(_ context.Context, planID string, opts domain.ListOpts) ([]domain.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Execution
	for _, exec := range s.execs {
		if exec.PlanID == planID {
			out = append(out, exec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return paginate(out, opts), nil
}

// CountCompletedSince counts completed executions created at or after since.
func (s *ExecutionStore) CountCompletedSince(_ context.Context, planID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, exec := range s.execs {
		if exec.PlanID == planID && exec.Status == domain.ExecutionCompleted && !exec.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// Compile-time interface check.
var _ domain.ExecutionStore = (*ExecutionStore)(nil)
