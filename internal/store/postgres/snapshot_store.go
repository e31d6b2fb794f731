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

// SnapshotStore implements domain.SnapshotStore using PostgreSQL.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// proofJSON is the persisted shape of a Merkle proof.
type proofJSON struct {
	LeafHash  []byte   `json:"leaf_hash"`
	Siblings  [][]byte `json:"siblings"`
	LeafIndex int      `json:"leaf_index"`
}

// Create inserts an immutable snapshot row.
func (s *SnapshotStore) Create(ctx context.Context, snap domain.PnLSnapshot) error {
	positions, err := json.Marshal(snap.Positions)
	if err != nil {
		return fmt.Errorf("postgres: marshal positions: %w", err)
	}
	proof, err := json.Marshal(proofJSON{
		LeafHash:  snap.Proof.LeafHash,
		Siblings:  snap.Proof.Siblings,
		LeafIndex: snap.Proof.LeafIndex,
	})
	if err != nil {
		return fmt.Errorf("postgres: marshal proof: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO pnl_snapshots (id, owner_id, snapshot_type, period_start, period_end, total_pnl, realized_pnl, unrealized_pnl, trade_count, positions_data, merkle_root, merkle_proof, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		snap.ID, snap.Owner, string(snap.Kind), snap.Period.Start, snap.Period.End,
		snap.TotalPnL, snap.RealizedPnL, snap.UnrealizedPnL, snap.TradeCount,
		positions, snap.MerkleRoot, proof, snap.Verified, snap.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert snapshot: %w", err)
	}
	return nil
}

// GetByID returns the snapshot or domain.ErrNotFound.
func (s *SnapshotStore) GetByID(ctx context.Context, id string) (domain.PnLSnapshot, error) {
	row := s.pool.QueryRow(ctx, selectSnapshot+" WHERE id = $1", id)
	snap, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PnLSnapshot{}, domain.ErrNotFound
		}
		return domain.PnLSnapshot{}, fmt.Errorf("postgres: get snapshot %s: %w", id, err)
	}
	return snap, nil
}

// MarkVerified flips verified false→true. The WHERE clause keeps the flip
// monotonic; re-marking an already-verified snapshot matches zero rows and
// is treated as a no-op.
func (s *SnapshotStore) MarkVerified(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE pnl_snapshots SET verified = TRUE WHERE id = $1 AND verified = FALSE", id)
	if err != nil {
		return fmt.Errorf("postgres: mark verified %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM pnl_snapshots WHERE id = $1)", id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: check snapshot %s: %w", id, err)
		}
		if !exists {
			return domain.ErrNotFound
		}
	}
	return nil
}

// AppendEvent appends to the snapshot's event history.
func (s *SnapshotStore) AppendEvent(ctx context.Context, ev domain.SnapshotEvent) error {
	detail, err := json.Marshal(ev.Detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal event detail: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO snapshot_events (snapshot_id, event, detail, created_at)
		VALUES ($1, $2, $3, $4)`,
		ev.SnapshotID, ev.Event, detail, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert snapshot event: %w", err)
	}
	return nil
}

// ListEvents returns the snapshot's events in append order.
func (s *SnapshotStore) ListEvents(ctx context.Context, snapshotID string) ([]domain.SnapshotEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, snapshot_id, event, detail, created_at
		FROM snapshot_events WHERE snapshot_id = $1 ORDER BY id`,
		snapshotID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list snapshot events: %w", err)
	}
	defer rows.Close()

	var out []domain.SnapshotEvent
	for rows.Next() {
		var ev domain.SnapshotEvent
		var detail []byte
		if err := rows.Scan(&ev.ID, &ev.SnapshotID, &ev.Event, &detail, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan snapshot event: %w", err)
		}
		if err := json.Unmarshal(detail, &ev.Detail); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal event detail: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ListByOwner returns the owner's snapshots ordered by creation time.
func (s *SnapshotStore) ListByOwner(ctx context.Context, owner string, opts domain.ListOpts) ([]domain.PnLSnapshot, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		selectSnapshot+" WHERE owner_id = $1 ORDER BY created_at LIMIT $2 OFFSET $3",
		owner, limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list snapshots: %w", err)
	}
	defer rows.Close()
	return collectSnapshots(rows)
}

// ListVerifiedBefore returns verified snapshots created before the cutoff.
func (s *SnapshotStore) ListVerifiedBefore(ctx context.Context, before time.Time) ([]domain.PnLSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		selectSnapshot+" WHERE verified AND created_at < $1 ORDER BY created_at", before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list verified snapshots: %w", err)
	}
	defer rows.Close()
	return collectSnapshots(rows)
}

const selectSnapshot = `
	SELECT id, owner_id, snapshot_type, period_start, period_end, total_pnl, realized_pnl, unrealized_pnl, trade_count, positions_data, merkle_root, merkle_proof, verified, created_at
	FROM pnl_snapshots`

func collectSnapshots(rows pgx.Rows) ([]domain.PnLSnapshot, error) {
	var out []domain.PnLSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func scanSnapshot(row pgx.Row) (domain.PnLSnapshot, error) {
	var snap domain.PnLSnapshot
	var kind string
	var positions, proofData []byte
	err := row.Scan(&snap.ID, &snap.Owner, &kind, &snap.Period.Start, &snap.Period.End,
		&snap.TotalPnL, &snap.RealizedPnL, &snap.UnrealizedPnL, &snap.TradeCount,
		&positions, &snap.MerkleRoot, &proofData, &snap.Verified, &snap.CreatedAt)
	if err != nil {
		return domain.PnLSnapshot{}, err
	}
	snap.Kind = domain.SnapshotKind(kind)
	if err := json.Unmarshal(positions, &snap.Positions); err != nil {
		return domain.PnLSnapshot{}, fmt.Errorf("unmarshal positions: %w", err)
	}
	var proof proofJSON
	if err := json.Unmarshal(proofData, &proof); err != nil {
		return domain.PnLSnapshot{}, fmt.Errorf("unmarshal proof: %w", err)
	}
	snap.Proof = domain.MerkleProof{
		LeafHash:  proof.LeafHash,
		Siblings:  proof.Siblings,
		LeafIndex: proof.LeafIndex,
	}
	return snap, nil
}

// Compile-time interface check.
var _ domain.SnapshotStore = (*SnapshotStore)(nil)
