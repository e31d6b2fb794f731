package domain

import "time"

// Trade is one realized fill as reported by the trade-execution collaborator.
// Its canonical encoding is the Merkle leaf content; any field change breaks
// every proof for that leaf.
type Trade struct {
	ID        string
	Owner     string
	Symbol    string
	Side      Side
	Quantity  float64
	Price     float64
	PnL       float64
	Timestamp time.Time
}
