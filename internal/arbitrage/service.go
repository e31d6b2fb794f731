package arbitrage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/veradex/tradecore/internal/domain"
)

// Config holds the tunable gates applied before an opportunity is surfaced
// to downstream consumers.
type Config struct {
	MinNetProfitUSD float64
	MaxNotionalUSD  float64
	// KillSwitchLossUSD is the session realized-loss budget. Once the
	// cumulative PnL reported via RecordOutcome drops below its negation,
	// the service stops surfacing opportunities until restart.
	KillSwitchLossUSD float64
}

// Service applies the execution gates to scanned opportunities and records
// the ones that pass. Opportunities remain advisory even after recording.
type Service struct {
	bus    domain.SignalBus
	audit  domain.AuditStore
	cfg    Config
	logger *slog.Logger

	mu         sync.Mutex
	sessionPnL float64
	tripped    bool
}

// NewService creates a Service with all required dependencies.
func NewService(bus domain.SignalBus, audit domain.AuditStore, cfg Config, logger *slog.Logger) *Service {
	return &Service{
		bus:    bus,
		audit:  audit,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "arb_service")),
	}
}

// Evaluate returns true when the opportunity passes all gates:
//  1. the kill switch has not tripped
//  2. net profit estimate >= MinNetProfitUSD
//  3. notional (buy price x fillable quantity) <= MaxNotionalUSD
func (s *Service) Evaluate(ctx context.Context, opp domain.ArbOpportunity) bool {
	if s.killed() {
		s.logger.DebugContext(ctx, "kill switch active, opportunity suppressed",
			slog.String("opp_id", opp.ID),
		)
		return false
	}

	if opp.NetProfitEstimate < s.cfg.MinNetProfitUSD {
		s.logger.DebugContext(ctx, "net profit below minimum",
			slog.String("opp_id", opp.ID),
			slog.Float64("net_profit", opp.NetProfitEstimate),
			slog.Float64("min", s.cfg.MinNetProfitUSD),
		)
		return false
	}

	notional := opp.BuyPrice * opp.FillableQuantity
	if s.cfg.MaxNotionalUSD > 0 && notional > s.cfg.MaxNotionalUSD {
		s.logger.DebugContext(ctx, "notional exceeds limit",
			slog.String("opp_id", opp.ID),
			slog.Float64("notional", notional),
			slog.Float64("max", s.cfg.MaxNotionalUSD),
		)
		return false
	}

	return true
}

// RecordOutcome feeds one realized execution result into the session loss
// tracker. When cumulative PnL falls below -KillSwitchLossUSD the kill
// switch trips: Evaluate rejects everything until the process restarts.
// Tripping is one-way; later profits do not re-arm the switch.
func (s *Service) RecordOutcome(ctx context.Context, pnl float64) {
	s.mu.Lock()
	s.sessionPnL += pnl
	trippedNow := !s.tripped &&
		s.cfg.KillSwitchLossUSD > 0 &&
		s.sessionPnL <= -s.cfg.KillSwitchLossUSD
	if trippedNow {
		s.tripped = true
	}
	sessionPnL := s.sessionPnL
	s.mu.Unlock()

	if !trippedNow {
		return
	}

	s.logger.ErrorContext(ctx, "kill switch tripped",
		slog.Float64("session_pnl", sessionPnL),
		slog.Float64("loss_budget", s.cfg.KillSwitchLossUSD),
	)
	if err := s.audit.Log(ctx, "arb_kill_switch", map[string]any{
		"session_pnl": sessionPnL,
		"loss_budget": s.cfg.KillSwitchLossUSD,
	}); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("error", err.Error()),
		)
	}
}

func (s *Service) killed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tripped
}

// Record audit-logs the opportunity and publishes it on the "arbitrage"
// channel for downstream consumers.
func (s *Service) Record(ctx context.Context, opp domain.ArbOpportunity) error {
	if err := s.audit.Log(ctx, "arb_detected", map[string]any{
		"opp_id":     opp.ID,
		"symbol":     opp.Symbol,
		"buy_venue":  opp.BuyVenue,
		"sell_venue": opp.SellVenue,
		"spread_pct": opp.SpreadPct,
		"net_profit": opp.NetProfitEstimate,
	}); err != nil {
		return fmt.Errorf("arbitrage: audit log %q: %w", opp.ID, err)
	}

	if s.bus != nil {
		evt, err := json.Marshal(opp)
		if err != nil {
			return fmt.Errorf("arbitrage: marshal opportunity %q: %w", opp.ID, err)
		}
		if err := s.bus.Publish(ctx, "arbitrage", evt); err != nil {
			s.logger.WarnContext(ctx, "publish failed",
				slog.String("opp_id", opp.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "opportunity recorded",
		slog.String("opp_id", opp.ID),
		slog.String("symbol", opp.Symbol),
		slog.Float64("net_profit", opp.NetProfitEstimate),
	)
	return nil
}
