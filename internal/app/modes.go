package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/veradex/tradecore/internal/arbitrage"
	"github.com/veradex/tradecore/internal/dce"
	"github.com/veradex/tradecore/internal/domain"
	"github.com/veradex/tradecore/internal/pnl"
	"github.com/veradex/tradecore/internal/quotes"
	"github.com/veradex/tradecore/internal/router"
)

// quoteEvent is the payload published on the "quotes" channel by upstream
// feed processes.
type quoteEvent struct {
	Symbol string         `json:"symbol"`
	Quotes []domain.Quote `json:"quotes"`
}

// triggerEvent is the payload published on the trigger channel.
type triggerEvent struct {
	PlanID  string         `json:"plan_id"`
	Trigger map[string]any `json:"trigger"`
}

// RouteMode runs quote ingestion, staleness eviction, and arbitrage scanning.
func (a *App) RouteMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting route mode")

	g, ctx := errgroup.WithContext(ctx)

	store := a.buildQuoteStore(deps)
	a.startQuoteLoops(ctx, g, deps, store, a.buildArbService(deps))

	return g.Wait()
}

// EngineMode runs the deterministic plan engine fed by the trigger channel,
// plus the scheduled snapshot service.
func (a *App) EngineMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting engine mode")

	g, ctx := errgroup.WithContext(ctx)

	store := a.buildQuoteStore(deps)
	engine := a.buildEngine(deps, store)
	a.startEngineLoops(ctx, g, deps, engine, nil)
	a.startSnapshotLoop(ctx, g, deps)

	return g.Wait()
}

// ArchiveMode periodically exports cold verification records to blob
// storage.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	if deps.Archiver == nil {
		return fmt.Errorf("app: archive mode requires archive.enabled and s3 configuration")
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startArchiveLoop(ctx, g, deps)
	return g.Wait()
}

// FullMode runs every service: quote loops, the plan engine, the snapshot
// scheduler, and (when configured) the archiver.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	store := a.buildQuoteStore(deps)
	arbSvc := a.buildArbService(deps)
	a.startQuoteLoops(ctx, g, deps, store, arbSvc)

	engine := a.buildEngine(deps, store)
	a.startEngineLoops(ctx, g, deps, engine, arbSvc)
	a.startSnapshotLoop(ctx, g, deps)

	if deps.Archiver != nil {
		a.startArchiveLoop(ctx, g, deps)
	}

	return g.Wait()
}

// buildQuoteStore constructs the staleness-aware quote store over the wired
// repository.
func (a *App) buildQuoteStore(deps *Dependencies) *quotes.Store {
	return quotes.NewStore(deps.QuoteRepo, a.logger,
		quotes.WithStaleAfter(a.cfg.Quotes.StaleAfter.Duration),
	)
}

// buildEngine constructs the plan engine with a simulated order executor
// routing against the quote store.
func (a *App) buildEngine(deps *Dependencies, store *quotes.Store) *dce.Engine {
	rt := router.New(store, a.logger)
	exec := dce.NewSimExecutor(rt, a.cfg.Engine.SimEquityUSD, a.logger)

	opts := []dce.EngineOption{
		dce.WithDedupTTL(a.cfg.Engine.DedupTTL.Duration),
		dce.WithLockTTL(a.cfg.Engine.LockTTL.Duration),
	}
	if deps.LockManager != nil {
		opts = append(opts, dce.WithLockManager(deps.LockManager))
	}
	return dce.NewEngine(deps.PlanStore, deps.ExecutionStore, exec, a.logger, opts...)
}

// buildArbService constructs the gate-and-record service for scanned
// opportunities, or nil when arbitrage is disabled.
func (a *App) buildArbService(deps *Dependencies) *arbitrage.Service {
	if !a.cfg.Arbitrage.Enabled {
		return nil
	}
	return arbitrage.NewService(deps.SignalBus, deps.AuditStore, arbitrage.Config{
		MinNetProfitUSD:   a.cfg.Arbitrage.MinNetProfitUSD,
		MaxNotionalUSD:    a.cfg.Arbitrage.MaxNotionalUSD,
		KillSwitchLossUSD: a.cfg.Arbitrage.KillSwitchLossUSD,
	}, a.logger)
}

// startQuoteLoops launches the quote consumer, the stale batch evictor, and
// the arbitrage scanner.
func (a *App) startQuoteLoops(ctx context.Context, g *errgroup.Group, deps *Dependencies, store *quotes.Store, arbSvc *arbitrage.Service) {
	// Quote consumer. Without a signal bus (memory storage) quotes can only
	// be injected programmatically, e.g. by tests.
	if deps.SignalBus != nil {
		g.Go(func() error {
			ch, err := deps.SignalBus.Subscribe(ctx, "quotes")
			if err != nil {
				return fmt.Errorf("app: subscribe quotes: %w", err)
			}
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case payload, ok := <-ch:
					if !ok {
						return nil
					}
					var ev quoteEvent
					if err := json.Unmarshal(payload, &ev); err != nil {
						a.logger.WarnContext(ctx, "malformed quote event",
							slog.String("error", err.Error()),
						)
						continue
					}
					if err := store.Update(ctx, ev.Symbol, ev.Quotes); err != nil {
						a.logger.WarnContext(ctx, "quote update failed",
							slog.String("symbol", ev.Symbol),
							slog.String("error", err.Error()),
						)
					}
				}
			}
		})
	} else {
		a.logger.Warn("no signal bus wired; quote consumer disabled")
	}

	// Stale batch eviction.
	g.Go(func() error {
		ticker := time.NewTicker(a.cfg.Quotes.EvictInterval.Duration)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				evicted, err := store.EvictStale(ctx)
				if err != nil {
					a.logger.WarnContext(ctx, "stale eviction failed",
						slog.String("error", err.Error()),
					)
				} else if evicted > 0 {
					a.logger.DebugContext(ctx, "evicted stale quote batches",
						slog.Int("count", evicted),
					)
				}
			}
		}
	})

	// Arbitrage scanner.
	if arbSvc != nil {
		scanner := arbitrage.NewScanner(store, a.logger,
			arbitrage.WithHorizon(a.cfg.Arbitrage.ValidityHorizon.Duration),
		)

		g.Go(func() error {
			ticker := time.NewTicker(a.cfg.Arbitrage.ScanInterval.Duration)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					a.scanOnce(ctx, deps, scanner, arbSvc)
				}
			}
		})
	}
}

// scanOnce runs one arbitrage sweep over the configured symbols, falling
// back to every symbol with stored quotes.
func (a *App) scanOnce(ctx context.Context, deps *Dependencies, scanner *arbitrage.Scanner, arbSvc *arbitrage.Service) {
	symbols := a.cfg.Arbitrage.Symbols
	if len(symbols) == 0 {
		var err error
		symbols, err = deps.QuoteRepo.Symbols(ctx)
		if err != nil {
			a.logger.WarnContext(ctx, "list quote symbols failed",
				slog.String("error", err.Error()),
			)
			return
		}
	}

	for _, symbol := range symbols {
		for _, opp := range scanner.Scan(ctx, symbol) {
			if !arbSvc.Evaluate(ctx, opp) {
				continue
			}
			if err := arbSvc.Record(ctx, opp); err != nil {
				a.logger.WarnContext(ctx, "record opportunity failed",
					slog.String("opportunity_id", opp.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// startEngineLoops launches the trigger consumer and the dedup janitor.
// arbSvc may be nil; when present, completed execution PnL feeds its kill
// switch.
func (a *App) startEngineLoops(ctx context.Context, g *errgroup.Group, deps *Dependencies, engine *dce.Engine, arbSvc *arbitrage.Service) {
	if deps.SignalBus != nil {
		g.Go(func() error {
			ch, err := deps.SignalBus.Subscribe(ctx, a.cfg.Engine.TriggerChannel)
			if err != nil {
				return fmt.Errorf("app: subscribe triggers: %w", err)
			}
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case payload, ok := <-ch:
					if !ok {
						return nil
					}
					var ev triggerEvent
					if err := json.Unmarshal(payload, &ev); err != nil {
						a.logger.WarnContext(ctx, "malformed trigger event",
							slog.String("error", err.Error()),
						)
						continue
					}
					a.handleTrigger(ctx, deps, engine, arbSvc, ev)
				}
			}
		})
	} else {
		a.logger.Warn("no signal bus wired; trigger consumer disabled")
	}

	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				engine.Cleanup()
			}
		}
	})
}

// handleTrigger admits one trigger event. Rejections are expected operation,
// not errors.
func (a *App) handleTrigger(ctx context.Context, deps *Dependencies, engine *dce.Engine, arbSvc *arbitrage.Service, ev triggerEvent) {
	execID, err := engine.Trigger(ctx, ev.PlanID, ev.Trigger)
	if err != nil {
		var verr *domain.ValidationError
		switch {
		case errors.As(err, &verr):
			a.logger.InfoContext(ctx, "trigger rejected by constraints",
				slog.String("plan_id", ev.PlanID),
				slog.Any("reasons", verr.Reasons),
			)
		case errors.Is(err, domain.ErrPlanNotActive):
			a.logger.InfoContext(ctx, "trigger on inactive plan",
				slog.String("plan_id", ev.PlanID),
			)
		case errors.Is(err, domain.ErrLockHeld):
			a.logger.DebugContext(ctx, "trigger lock contended",
				slog.String("plan_id", ev.PlanID),
			)
		default:
			a.logger.ErrorContext(ctx, "trigger failed",
				slog.String("plan_id", ev.PlanID),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	a.logger.InfoContext(ctx, "trigger admitted",
		slog.String("plan_id", ev.PlanID),
		slog.String("execution_id", execID),
	)

	if arbSvc == nil {
		return
	}
	exec, err := deps.ExecutionStore.GetByID(ctx, execID)
	if err != nil {
		a.logger.WarnContext(ctx, "load execution for loss tracking failed",
			slog.String("execution_id", execID),
			slog.String("error", err.Error()),
		)
		return
	}
	if exec.Status == domain.ExecutionCompleted {
		arbSvc.RecordOutcome(ctx, exec.RealizedPnL)
	}
}

// startSnapshotLoop launches the periodic snapshot scheduler for configured
// owners. Each tick closes the window that just elapsed, creates a snapshot
// per owner, and verifies it in place.
func (a *App) startSnapshotLoop(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	owners := a.cfg.PnL.Owners
	if len(owners) == 0 {
		return
	}

	svc := pnl.NewService(deps.TradeStore, deps.SnapshotStore, deps.AuditStore, a.logger)
	interval := a.cfg.PnL.Interval.Duration

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case now := <-ticker.C:
				period := domain.Period{Start: now.Add(-interval).UTC(), End: now.UTC()}
				for _, owner := range owners {
					snap, err := svc.CreateForPeriod(ctx, owner, domain.SnapshotDaily, period)
					if err != nil {
						a.logger.WarnContext(ctx, "scheduled snapshot failed",
							slog.String("owner", owner),
							slog.String("error", err.Error()),
						)
						continue
					}
					if ok, err := svc.Verify(ctx, snap.ID); err != nil {
						a.logger.WarnContext(ctx, "snapshot verification errored",
							slog.String("snapshot_id", snap.ID),
							slog.String("error", err.Error()),
						)
					} else if !ok {
						a.logger.ErrorContext(ctx, "snapshot failed verification",
							slog.String("snapshot_id", snap.ID),
						)
					}
				}
			}
		}
	})
}

// startArchiveLoop launches the periodic cold storage export.
func (a *App) startArchiveLoop(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour

	g.Go(func() error {
		ticker := time.NewTicker(a.cfg.Archive.Interval.Duration)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case now := <-ticker.C:
				cutoff := now.Add(-retention)
				if n, err := deps.Archiver.ArchiveSnapshots(ctx, cutoff); err != nil {
					a.logger.WarnContext(ctx, "snapshot archive failed",
						slog.String("error", err.Error()),
					)
				} else if n > 0 {
					a.logger.InfoContext(ctx, "archived snapshots",
						slog.Int64("count", n),
					)
				}
				if n, err := deps.Archiver.ArchiveTrades(ctx, cutoff); err != nil {
					a.logger.WarnContext(ctx, "trade archive failed",
						slog.String("error", err.Error()),
					)
				} else if n > 0 {
					a.logger.InfoContext(ctx, "archived trades",
						slog.Int64("count", n),
					)
				}
				checked, mismatched, err := deps.Archiver.VerifyArchive(ctx)
				if err != nil {
					a.logger.WarnContext(ctx, "archive verification failed",
						slog.String("error", err.Error()),
					)
				} else if mismatched > 0 {
					a.logger.ErrorContext(ctx, "archive verification found mismatched roots",
						slog.Int64("checked", checked),
						slog.Int64("mismatched", mismatched),
					)
				}
			}
		}
	})
}
