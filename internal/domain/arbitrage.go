package domain

import "time"

// ArbOpportunity is a detected buy-low/sell-high pair across two venues.
// Opportunities are ephemeral and advisory: they expire after a fixed
// horizon, are recomputed on every scan, and must be re-validated before any
// execution attempt.
type ArbOpportunity struct {
	ID                string
	Symbol            string
	BuyVenue          string
	SellVenue         string
	BuyPrice          float64
	SellPrice         float64
	SpreadPct         float64
	NetProfitEstimate float64
	FillableQuantity  float64
	ConfidenceScore   float64
	DetectedAt        time.Time
	ValidUntil        time.Time
}

// Expired reports whether the opportunity's validity horizon has passed.
func (o ArbOpportunity) Expired(now time.Time) bool {
	return now.After(o.ValidUntil)
}
