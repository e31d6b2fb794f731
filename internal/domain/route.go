package domain

// RoutingConstraints are the operator-defined limits for one routing request.
// A value is immutable once handed to the router.
type RoutingConstraints struct {
	MaxVenues         int
	MaxSlippagePct    float64
	MinLiquidityScore float64
	PreferredVenues   []string // ordered; earlier entries win ties
	BlacklistedVenues []string
	MaxLatencyMs      int64
	RequireFullFill   bool
}

// Preferred reports whether venue appears in the preferred set.
func (c RoutingConstraints) Preferred(venue string) bool {
	for _, v := range c.PreferredVenues {
		if v == venue {
			return true
		}
	}
	return false
}

// Blacklisted reports whether venue appears in the blacklist.
func (c RoutingConstraints) Blacklisted(venue string) bool {
	for _, v := range c.BlacklistedVenues {
		if v == venue {
			return true
		}
	}
	return false
}

// Step reasons attached to execution steps by the router.
const (
	StepReasonBestPrice      = "best_price"
	StepReasonLiquiditySplit = "liquidity_split"
)

// ExecutionStep is one venue allocation inside a route plan.
type ExecutionStep struct {
	Venue       string
	Side        Side
	Quantity    float64
	Price       float64
	Priority    int // 1 = highest
	FeeEstimate float64
	Reason      string
}

// RoutePlan is an ordered allocation of an order across venues, plus derived
// metrics. Plans are value objects: recomputed fresh per request, never
// mutated.
type RoutePlan struct {
	Symbol              string
	Side                Side
	Steps               []ExecutionStep
	TotalQuantity       float64
	AveragePrice        float64 // volume-weighted
	TotalFees           float64
	EstimatedSlippagePct float64 // vs the single best available price
	ConfidenceScore     float64 // 0..100
	EstimatedDurationMs int64
}
