package dce

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/veradex/tradecore/internal/domain"
	"github.com/veradex/tradecore/internal/router"
)

// SimExecutor is an OrderExecutor that fills plan actions against the route
// planner instead of a live exchange. Each action is routed across fresh
// quotes and the resulting steps become simulated fills at the quoted
// prices. Realized PnL is the negated fee total; no market impact is
// modelled.
type SimExecutor struct {
	router *router.Router
	equity float64
	logger *slog.Logger
}

// NewSimExecutor creates a SimExecutor. equity is the account value used to
// size pct_equity actions.
func NewSimExecutor(r *router.Router, equity float64, logger *slog.Logger) *SimExecutor {
	return &SimExecutor{
		router: r,
		equity: equity,
		logger: logger.With(slog.String("component", "sim_executor")),
	}
}

// Execute routes every action of the plan in order and returns one fill per
// execution step. A routing failure part-way through returns the fills
// already produced alongside the error so the engine can compensate them.
func (s *SimExecutor) Execute(ctx context.Context, plan domain.Plan, exec domain.Execution) ([]domain.ResultingOrder, float64, error) {
	var orders []domain.ResultingOrder
	var fees float64

	for i, action := range plan.Actions {
		side := action.Side

		constraints := domain.RoutingConstraints{
			MaxVenues: 3,
		}
		if action.Venue != "" {
			constraints.PreferredVenues = []string{action.Venue}
		}

		qty, err := s.sizeAction(ctx, action, side, constraints)
		if err != nil {
			return orders, -fees, fmt.Errorf("dce: action %d: %w", i, err)
		}

		route, err := s.router.Route(ctx, action.Symbol, side, qty, constraints)
		if err != nil {
			return orders, -fees, fmt.Errorf("dce: action %d: route: %w", i, err)
		}

		if reason := priceGate(action.Pricing, side, route.AveragePrice); reason != "" {
			return orders, -fees, fmt.Errorf("dce: action %d: %s", i, reason)
		}

		for _, step := range route.Steps {
			orders = append(orders, domain.ResultingOrder{
				OrderID:  uuid.New().String(),
				Symbol:   action.Symbol,
				Venue:    step.Venue,
				Side:     step.Side,
				Quantity: step.Quantity,
				Price:    step.Price,
				FeeUSD:   step.FeeEstimate,
			})
			fees += step.FeeEstimate
		}
	}

	s.logger.InfoContext(ctx, "simulated execution filled",
		slog.String("execution_id", exec.ID),
		slog.Int("orders", len(orders)),
		slog.Float64("fees_usd", fees),
	)
	return orders, -fees, nil
}

// Compensate emits the opposite fill for each order at its original price.
func (s *SimExecutor) Compensate(ctx context.Context, orders []domain.ResultingOrder) ([]domain.ResultingOrder, error) {
	reversed := make([]domain.ResultingOrder, 0, len(orders))
	for _, o := range orders {
		side := domain.SideSell
		if o.Side == domain.SideSell {
			side = domain.SideBuy
		}
		reversed = append(reversed, domain.ResultingOrder{
			OrderID:  uuid.New().String(),
			Symbol:   o.Symbol,
			Venue:    o.Venue,
			Side:     side,
			Quantity: o.Quantity,
			Price:    o.Price,
			FeeUSD:   o.FeeUSD,
		})
	}
	return reversed, nil
}

// sizeAction resolves an action's sizing mode to a concrete quantity. For
// pct_equity a probe route establishes the reference price.
func (s *SimExecutor) sizeAction(ctx context.Context, action domain.PlanAction, side domain.Side, c domain.RoutingConstraints) (float64, error) {
	switch action.Sizing.Mode {
	case "", "fixed":
		if action.Sizing.Quantity <= 0 {
			return 0, fmt.Errorf("fixed sizing with non-positive quantity")
		}
		return action.Sizing.Quantity, nil
	case "pct_equity":
		if action.Sizing.Pct <= 0 {
			return 0, fmt.Errorf("pct_equity sizing with non-positive pct")
		}
		// Probe with one unit to learn the current price level.
		probe, err := s.router.Route(ctx, action.Symbol, side, 1, c)
		if err != nil {
			return 0, fmt.Errorf("pct_equity probe: %w", err)
		}
		notional := s.equity * action.Sizing.Pct / 100
		return notional / probe.AveragePrice, nil
	default:
		return 0, fmt.Errorf("unknown sizing mode %q", action.Sizing.Mode)
	}
}

// priceGate rejects fills whose average price crosses the action's limit.
// Returns an empty string when the fill is acceptable.
func priceGate(p domain.ActionPricing, side domain.Side, avgPrice float64) string {
	if p.Mode != "limit" || p.LimitPrice <= 0 {
		return ""
	}
	if side == domain.SideBuy && avgPrice > p.LimitPrice {
		return fmt.Sprintf("limit %.4f not met, avg fill %.4f", p.LimitPrice, avgPrice)
	}
	if side == domain.SideSell && avgPrice < p.LimitPrice {
		return fmt.Sprintf("limit %.4f not met, avg fill %.4f", p.LimitPrice, avgPrice)
	}
	return ""
}

var _ OrderExecutor = (*SimExecutor)(nil)
