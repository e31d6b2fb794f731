// Package pnl builds verifiable profit-and-loss snapshots. Each snapshot
// commits its trade list to a Merkle root; verification recomputes the
// stored inclusion proof against that root, so any tampering with the trade
// list, its order, or a single trade's content surfaces as a failed check.
package pnl

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/veradex/tradecore/internal/canonical"
	"github.com/veradex/tradecore/internal/domain"
	"github.com/veradex/tradecore/internal/merkle"
)

// Service creates, verifies, and audits PnL snapshots.
type Service struct {
	trades domain.TradeStore
	snaps  domain.SnapshotStore
	audit  domain.AuditStore
	now    func() time.Time
	logger *slog.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithClock injects the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service over the given stores.
func NewService(trades domain.TradeStore, snaps domain.SnapshotStore, audit domain.AuditStore, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		trades: trades,
		snaps:  snaps,
		audit:  audit,
		now:    time.Now,
		logger: logger.With(slog.String("component", "pnl_service")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSnapshot builds an immutable snapshot over the given trades:
// PnL totals, per-symbol positions, and a Merkle commitment with a stored
// proof for the first leaf. A period with no trades commits to a single
// synthetic leaf so the ledger is never empty.
func (s *Service) CreateSnapshot(ctx context.Context, owner string, kind domain.SnapshotKind, period domain.Period, trades []domain.Trade) (domain.PnLSnapshot, error) {
	if !domain.ValidSnapshotKind(kind) {
		return domain.PnLSnapshot{}, domain.NewValidationError(fmt.Sprintf("unknown snapshot kind %q", kind))
	}

	leaves, err := tradeLeaves(owner, period, trades)
	if err != nil {
		return domain.PnLSnapshot{}, fmt.Errorf("pnl: encode leaves: %w", err)
	}
	tree, err := merkle.Build(leaves)
	if err != nil {
		return domain.PnLSnapshot{}, fmt.Errorf("pnl: build tree: %w", err)
	}
	proof, err := tree.Proof(0)
	if err != nil {
		return domain.PnLSnapshot{}, fmt.Errorf("pnl: proof: %w", err)
	}

	total, realized := totals(trades)
	snap := domain.PnLSnapshot{
		ID:            uuid.New().String(),
		Owner:         owner,
		Kind:          kind,
		Period:        period,
		TotalPnL:      total,
		RealizedPnL:   realized,
		UnrealizedPnL: total - realized,
		TradeCount:    len(trades),
		Positions:     aggregatePositions(trades),
		MerkleRoot:    tree.Root(),
		Proof:         proof,
		CreatedAt:     s.now(),
	}

	if err := s.snaps.Create(ctx, snap); err != nil {
		return domain.PnLSnapshot{}, fmt.Errorf("pnl: store snapshot: %w", err)
	}
	if err := s.snaps.AppendEvent(ctx, domain.SnapshotEvent{
		SnapshotID: snap.ID,
		Event:      domain.SnapshotEventCreated,
		Detail: map[string]any{
			"trade_count": snap.TradeCount,
			"merkle_root": hex.EncodeToString(snap.MerkleRoot),
		},
		CreatedAt: snap.CreatedAt,
	}); err != nil {
		return domain.PnLSnapshot{}, fmt.Errorf("pnl: append creation event: %w", err)
	}
	if err := s.audit.Log(ctx, "snapshot_created", map[string]any{
		"snapshot_id": snap.ID,
		"owner":       owner,
		"kind":        string(kind),
		"trade_count": snap.TradeCount,
	}); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("snapshot_id", snap.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "snapshot created",
		slog.String("snapshot_id", snap.ID),
		slog.String("owner", owner),
		slog.Int("trade_count", snap.TradeCount),
		slog.Float64("total_pnl", total),
	)
	return snap, nil
}

// CreateForPeriod reads the owner's trades for the period from the trade
// store and builds a snapshot over them.
func (s *Service) CreateForPeriod(ctx context.Context, owner string, kind domain.SnapshotKind, period domain.Period) (domain.PnLSnapshot, error) {
	trades, err := s.trades.ListByOwnerPeriod(ctx, owner, period)
	if err != nil {
		return domain.PnLSnapshot{}, fmt.Errorf("pnl: list trades: %w", err)
	}
	return s.CreateSnapshot(ctx, owner, kind, period, trades)
}

// Verify recomputes the snapshot's stored proof against its stored root. On
// success the verified flag flips false→true; re-verifying an already
// verified snapshot is a no-op. A mismatch is a normal false result, not an
// error, and leaves the flag untouched.
func (s *Service) Verify(ctx context.Context, id string) (bool, error) {
	snap, err := s.snaps.GetByID(ctx, id)
	if err != nil {
		return false, fmt.Errorf("pnl: load snapshot %s: %w", id, err)
	}

	if !merkle.Verify(snap.Proof, snap.MerkleRoot) {
		s.logger.WarnContext(ctx, "snapshot verification failed",
			slog.String("snapshot_id", id),
		)
		return false, nil
	}
	if snap.Verified {
		return true, nil
	}

	if err := s.snaps.MarkVerified(ctx, id); err != nil {
		return false, fmt.Errorf("pnl: mark verified %s: %w", id, err)
	}
	if err := s.snaps.AppendEvent(ctx, domain.SnapshotEvent{
		SnapshotID: id,
		Event:      domain.SnapshotEventVerified,
		Detail:     map[string]any{"merkle_root": hex.EncodeToString(snap.MerkleRoot)},
		CreatedAt:  s.now(),
	}); err != nil {
		return false, fmt.Errorf("pnl: append verification event: %w", err)
	}

	s.logger.InfoContext(ctx, "snapshot verified", slog.String("snapshot_id", id))
	return true, nil
}

// AuditTrail returns the snapshot and its append-only event history,
// creation first.
func (s *Service) AuditTrail(ctx context.Context, id string) (domain.AuditTrail, error) {
	snap, err := s.snaps.GetByID(ctx, id)
	if err != nil {
		return domain.AuditTrail{}, fmt.Errorf("pnl: load snapshot %s: %w", id, err)
	}
	events, err := s.snaps.ListEvents(ctx, id)
	if err != nil {
		return domain.AuditTrail{}, fmt.Errorf("pnl: list events %s: %w", id, err)
	}
	return domain.AuditTrail{Snapshot: snap, Events: events}, nil
}

func tradeLeaves(owner string, period domain.Period, trades []domain.Trade) ([][]byte, error) {
	if len(trades) == 0 {
		leaf, err := canonical.EmptyPeriodLeaf(owner, period)
		if err != nil {
			return nil, err
		}
		return [][]byte{leaf}, nil
	}
	leaves := make([][]byte, len(trades))
	for i, t := range trades {
		leaf, err := canonical.TradeLeaf(t)
		if err != nil {
			return nil, err
		}
		leaves[i] = leaf
	}
	return leaves, nil
}

func totals(trades []domain.Trade) (total, realized float64) {
	for _, t := range trades {
		total += t.PnL
		if t.Side == domain.SideSell {
			realized += t.PnL
		}
	}
	return total, realized
}

// aggregatePositions folds trades into per-symbol summaries, sorted by
// symbol for deterministic snapshot content.
func aggregatePositions(trades []domain.Trade) []domain.PositionSummary {
	bySymbol := make(map[string]*domain.PositionSummary)
	notional := make(map[string]float64)
	volume := make(map[string]float64)

	for _, t := range trades {
		pos, ok := bySymbol[t.Symbol]
		if !ok {
			pos = &domain.PositionSummary{Symbol: t.Symbol}
			bySymbol[t.Symbol] = pos
		}
		if t.Side == domain.SideBuy {
			pos.NetQty += t.Quantity
		} else {
			pos.NetQty -= t.Quantity
		}
		pos.PnL += t.PnL
		notional[t.Symbol] += t.Price * t.Quantity
		volume[t.Symbol] += t.Quantity
	}

	out := make([]domain.PositionSummary, 0, len(bySymbol))
	for sym, pos := range bySymbol {
		if volume[sym] > 0 {
			pos.AvgPrice = notional[sym] / volume[sym]
		}
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
