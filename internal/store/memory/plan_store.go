// Package memory implements the domain store interfaces with in-process
// maps. Used by tests and single-node runs without persistence; the same
// transition rules enforced by the Postgres stores are enforced here.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/veradex/tradecore/internal/domain"
)

// PlanStore is an in-memory domain.PlanStore.
type PlanStore struct {
	mu    sync.RWMutex
	plans map[string]domain.Plan
}

// NewPlanStore creates an empty PlanStore.
func NewPlanStore() *PlanStore {
	return &PlanStore{plans: make(map[string]domain.Plan)}
}

// Create inserts a plan; duplicate IDs return ErrAlreadyExists.
func (s *PlanStore) Create(_ context.Context, plan domain.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[plan.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.plans[plan.ID] = plan
	return nil
}

// GetByID returns the plan or ErrNotFound.
func (s *PlanStore) GetByID(_ context.Context, id string) (domain.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	plan, ok := s.plans[id]
	if !ok {
		return domain.Plan{}, domain.ErrNotFound
	}
	return plan, nil
}

// UpdateStatus applies an operator transition, rejecting illegal ones.
func (s *PlanStore) UpdateStatus(_ context.Context, id string, status domain.PlanStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	plan, ok := s.plans[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !domain.CanTransition(plan.Status, status) {
		return domain.ErrBadTransition
	}
	plan.Status = status
	s.plans[id] = plan
	return nil
}

// RecordExecution updates the plan aggregates after a completed execution.
func (s *PlanStore) RecordExecution(_ context.Context, id string, pnl float64, executedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	plan, ok := s.plans[id]
	if !ok {
		return domain.ErrNotFound
	}
	plan.ExecutionCount++
	plan.CumulativePnL += pnl
	plan.LastExecutedAt = &executedAt
	s.plans[id] = plan
	return nil
}

// ListByOwner returns the owner's plans ordered by creation time.
func (s *PlanStore) ListByOwner(_ context.Context, owner string, opts domain.ListOpts) ([]domain.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Plan
	for _, plan := range s.plans {
		if plan.Owner == owner {
			out = append(out, plan)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return paginate(out, opts), nil
}

func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}

// Compile-time interface check.
var _ domain.PlanStore = (*PlanStore)(nil)
