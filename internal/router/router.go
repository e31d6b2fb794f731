// Package router produces multi-venue execution plans from quote snapshots
// under operator-defined constraints. Routing is a stateless read of the
// freshest available snapshot: it fails closed on stale data and returns no
// plan rather than a bad plan.
package router

import (
	"context"
	"log/slog"
	"sort"

	"github.com/veradex/tradecore/internal/domain"
	"github.com/veradex/tradecore/internal/quotes"
)

// Router plans order execution across venues.
type Router struct {
	store  *quotes.Store
	logger *slog.Logger
}

// New creates a Router reading from the given quote store.
func New(store *quotes.Store, logger *slog.Logger) *Router {
	return &Router{
		store:  store,
		logger: logger.With(slog.String("component", "router")),
	}
}

// Route builds an execution plan for quantity of symbol on the given side.
// It returns domain.ErrNoRoute when quotes are stale, no quote matches the
// side, the candidate set is empty after filtering, or require-full-fill
// cannot be satisfied. Callers must treat no-route as an expected outcome.
func (r *Router) Route(ctx context.Context, symbol string, side domain.Side, quantity float64, c domain.RoutingConstraints) (domain.RoutePlan, error) {
	if quantity <= 0 || c.MaxVenues < 1 {
		return domain.RoutePlan{}, domain.ErrNoRoute
	}

	batch, err := r.store.Fresh(ctx, symbol)
	if err != nil {
		return domain.RoutePlan{}, domain.ErrNoRoute
	}

	candidates := filter(batch, side, c)
	if len(candidates) == 0 {
		return domain.RoutePlan{}, domain.ErrNoRoute
	}

	// The single best available price is the benchmark for slippage, taken
	// before preferred venues are promoted.
	best := bestPrice(candidates, side)

	sortCandidates(candidates, side, c)

	plan := allocate(symbol, side, quantity, candidates, c)
	if len(plan.Steps) == 0 {
		return domain.RoutePlan{}, domain.ErrNoRoute
	}
	if c.RequireFullFill && plan.TotalQuantity < quantity {
		// All-or-nothing: the whole plan is discarded, not partially filled.
		r.logger.Debug("full fill unavailable",
			slog.String("symbol", symbol),
			slog.Float64("requested", quantity),
			slog.Float64("fillable", plan.TotalQuantity),
		)
		return domain.RoutePlan{}, domain.ErrNoRoute
	}

	plan.EstimatedSlippagePct = slippagePct(side, plan.AveragePrice, best)
	if c.MaxSlippagePct > 0 && plan.EstimatedSlippagePct > c.MaxSlippagePct {
		return domain.RoutePlan{}, domain.ErrNoRoute
	}

	return plan, nil
}

func filter(batch []domain.Quote, side domain.Side, c domain.RoutingConstraints) []domain.Quote {
	out := make([]domain.Quote, 0, len(batch))
	for _, q := range batch {
		if q.Side != side {
			continue
		}
		if c.MaxLatencyMs > 0 && q.LatencyMs > c.MaxLatencyMs {
			continue
		}
		if q.LiquidityScore < c.MinLiquidityScore {
			continue
		}
		if c.Blacklisted(q.Venue) {
			continue
		}
		out = append(out, q)
	}
	return out
}

// sortCandidates orders quotes preferred-venue-first (stable), then by best
// price for the side: ascending for buys, descending for sells.
func sortCandidates(qs []domain.Quote, side domain.Side, c domain.RoutingConstraints) {
	sort.SliceStable(qs, func(i, j int) bool {
		pi, pj := c.Preferred(qs[i].Venue), c.Preferred(qs[j].Venue)
		if pi != pj {
			return pi
		}
		if side == domain.SideBuy {
			return qs[i].Price < qs[j].Price
		}
		return qs[i].Price > qs[j].Price
	})
}

// allocate walks the sorted candidates greedily, taking
// min(remaining, venue quantity) per venue up to MaxVenues.
func allocate(symbol string, side domain.Side, quantity float64, candidates []domain.Quote, c domain.RoutingConstraints) domain.RoutePlan {
	plan := domain.RoutePlan{Symbol: symbol, Side: side}

	remaining := quantity
	var notional, liquiditySum float64
	var latencySum, maxLatency int64

	for _, q := range candidates {
		if remaining <= 0 || len(plan.Steps) >= c.MaxVenues {
			break
		}
		take := remaining
		if q.Quantity < take {
			take = q.Quantity
		}
		reason := domain.StepReasonLiquiditySplit
		if len(plan.Steps) == 0 {
			reason = domain.StepReasonBestPrice
		}
		fee := q.TakerFee * q.Price * take
		plan.Steps = append(plan.Steps, domain.ExecutionStep{
			Venue:       q.Venue,
			Side:        side,
			Quantity:    take,
			Price:       q.Price,
			Priority:    len(plan.Steps) + 1,
			FeeEstimate: fee,
			Reason:      reason,
		})

		remaining -= take
		notional += q.Price * take
		plan.TotalFees += fee
		liquiditySum += q.LiquidityScore
		latencySum += q.LatencyMs
		if q.LatencyMs > maxLatency {
			maxLatency = q.LatencyMs
		}
	}

	used := float64(len(plan.Steps))
	if used == 0 {
		return plan
	}

	plan.TotalQuantity = quantity - remaining
	plan.AveragePrice = notional / plan.TotalQuantity
	plan.ConfidenceScore = confidence(liquiditySum/used, float64(latencySum)/used)
	plan.EstimatedDurationMs = maxLatency
	return plan
}

// confidence blends 60% average liquidity with 40% inverse average latency,
// capped at 100.
func confidence(avgLiquidity, avgLatencyMs float64) float64 {
	latencyScore := 100 - avgLatencyMs/10
	if latencyScore < 0 {
		latencyScore = 0
	}
	score := 0.6*avgLiquidity + 0.4*latencyScore
	if score > 100 {
		score = 100
	}
	return score
}

func bestPrice(qs []domain.Quote, side domain.Side) float64 {
	best := qs[0].Price
	for _, q := range qs[1:] {
		if side == domain.SideBuy && q.Price < best {
			best = q.Price
		}
		if side == domain.SideSell && q.Price > best {
			best = q.Price
		}
	}
	return best
}

func slippagePct(side domain.Side, avg, best float64) float64 {
	if best <= 0 {
		return 0
	}
	if side == domain.SideBuy {
		return (avg - best) / best * 100
	}
	return (best - avg) / best * 100
}
