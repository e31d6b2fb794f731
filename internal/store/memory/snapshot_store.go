package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/veradex/tradecore/internal/domain"
)

// SnapshotStore is an in-memory domain.SnapshotStore.
type SnapshotStore struct {
	mu     sync.RWMutex
	snaps  map[string]domain.PnLSnapshot
	events map[string][]domain.SnapshotEvent
	nextID int64
}

// NewSnapshotStore creates an empty SnapshotStore.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		snaps:  make(map[string]domain.PnLSnapshot),
		events: make(map[string][]domain.SnapshotEvent),
	}
}

// Create inserts a snapshot; duplicate IDs return ErrAlreadyExists.
func (s *SnapshotStore) Create(_ context.Context, snap domain.PnLSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.snaps[snap.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.snaps[snap.ID] = snap
	return nil
}

// GetByID returns the snapshot or ErrNotFound.
func (s *SnapshotStore) GetByID(_ context.Context, id string) (domain.PnLSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[id]
	if !ok {
		return domain.PnLSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

// MarkVerified flips verified false→true; re-marking is a no-op.
func (s *SnapshotStore) MarkVerified(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snaps[id]
	if !ok {
		return domain.ErrNotFound
	}
	if snap.Verified {
		return nil
	}
	snap.Verified = true
	s.snaps[id] = snap
	return nil
}

// AppendEvent appends to the snapshot's event history.
func (s *SnapshotStore) AppendEvent(_ context.Context, ev domain.SnapshotEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.snaps[ev.SnapshotID]; !ok {
		return domain.ErrNotFound
	}
	s.nextID++
	ev.ID = s.nextID
	s.events[ev.SnapshotID] = append(s.events[ev.SnapshotID], ev)
	return nil
}

// ListEvents returns the snapshot's events in append order.
func (s *SnapshotStore) ListEvents(_ context.Context, snapshotID string) ([]domain.SnapshotEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.events[snapshotID]
	out := make([]domain.SnapshotEvent, len(events))
	copy(out, events)
	return out, nil
}

// ListByOwner returns the owner's snapshots ordered by creation time.
func (s *SnapshotStore) ListByOwner(_ context.Context, owner string, opts domain.ListOpts) ([]domain.PnLSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.PnLSnapshot
	for _, snap := range s.snaps {
		if snap.Owner == owner {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return paginate(out, opts), nil
}

// ListVerifiedBefore returns verified snapshots created before the cutoff.
func (s *SnapshotStore) ListVerifiedBefore(_ context.Context, before time.Time) ([]domain.PnLSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.PnLSnapshot
	for _, snap := range s.snaps {
		if snap.Verified && snap.CreatedAt.Before(before) {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Compile-time interface check.
var _ domain.SnapshotStore = (*SnapshotStore)(nil)
