package domain

import "time"

// SnapshotKind is the period type of a PnL snapshot.
type SnapshotKind string

const (
	SnapshotDaily     SnapshotKind = "daily"
	SnapshotWeekly    SnapshotKind = "weekly"
	SnapshotMonthly   SnapshotKind = "monthly"
	SnapshotExecution SnapshotKind = "execution"
)

// ValidSnapshotKind reports whether k is one of the closed set of kinds.
func ValidSnapshotKind(k SnapshotKind) bool {
	switch k {
	case SnapshotDaily, SnapshotWeekly, SnapshotMonthly, SnapshotExecution:
		return true
	}
	return false
}

// Period is a half-open [Start, End) time range.
type Period struct {
	Start time.Time
	End   time.Time
}

// MerkleProof is an inclusion proof for one leaf. Sibling hashes are listed
// root-ward, starting at the leaf layer.
type MerkleProof struct {
	LeafHash  []byte
	Siblings  [][]byte
	LeafIndex int
}

// PositionSummary is the per-symbol aggregation stored with a snapshot.
type PositionSummary struct {
	Symbol   string
	NetQty   float64
	AvgPrice float64
	PnL      float64
}

// PnLSnapshot is an immutable period summary anchored to a Merkle root.
// After insertion the only permitted mutation is a monotonic false→true flip
// of Verified.
type PnLSnapshot struct {
	ID            string
	Owner         string
	Kind          SnapshotKind
	Period        Period
	TotalPnL      float64
	RealizedPnL   float64
	UnrealizedPnL float64
	TradeCount    int
	Positions     []PositionSummary
	MerkleRoot    []byte
	Proof         MerkleProof
	Verified      bool
	CreatedAt     time.Time
}

// Snapshot event types recorded in the audit trail.
const (
	SnapshotEventCreated  = "created"
	SnapshotEventVerified = "verified"
)

// SnapshotEvent is one entry in a snapshot's append-only history.
type SnapshotEvent struct {
	ID         int64
	SnapshotID string
	Event      string
	Detail     map[string]any
	CreatedAt  time.Time
}

// AuditTrail is a snapshot together with its full event history, creation
// first.
type AuditTrail struct {
	Snapshot PnLSnapshot
	Events   []SnapshotEvent
}
