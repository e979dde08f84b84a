package engine

import (
	"context"

	"trade_engine/internal/decision"
	"trade_engine/internal/executor"
	brokersvc "trade_engine/internal/modules/broker/service"
	"trade_engine/internal/modules/config"
	mdsvc "trade_engine/internal/modules/marketdata/service"
	"trade_engine/internal/monitor"
	"trade_engine/internal/notify"
	"trade_engine/internal/positions"
	"trade_engine/internal/risk"
	"trade_engine/internal/scanner"
	"trade_engine/internal/store"
	"trade_engine/pkg/db"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("engine",
		fx.Provide(
			func(tm *db.PgTxManager) *store.PositionStore { return store.NewPositionStore(tm) },
			func(tm *db.PgTxManager) *store.RiskStore { return store.NewRiskStore(tm) },
			func(ps *store.PositionStore) *positions.Registry { return positions.NewRegistry(ps) },
			func(md *mdsvc.Client, cfg *config.Config) *scanner.Scanner {
				return scanner.New(md, cfg.Scanner, cfg.Entry, cfg.GatewayTimeout)
			},
			func(md *mdsvc.Client, cfg *config.Config) *decision.Engine {
				return decision.New(md, cfg.Entry)
			},
			func(cfg *config.Config) *risk.Manager {
				return risk.NewManager(risk.NewState(), risk.NewLimits(cfg.Risk))
			},
			func(bk *brokersvc.Client, reg *positions.Registry, rm *risk.Manager) *executor.Executor {
				return executor.New(bk, reg, rm)
			},
			func(md *mdsvc.Client, reg *positions.Registry, de *decision.Engine, cfg *config.Config) *monitor.Monitor {
				return monitor.New(md, reg, de, cfg.Exit)
			},
			func(
				sc *scanner.Scanner,
				de *decision.Engine,
				rm *risk.Manager,
				ex *executor.Executor,
				mon *monitor.Monitor,
				reg *positions.Registry,
				bk *brokersvc.Client,
				notifier notify.Notifier,
				rs *store.RiskStore,
				cfg *config.Config,
			) *Orchestrator {
				return NewOrchestrator(sc, de, rm, ex, mon, reg, bk, notifier, rs, cfg)
			},
			NewScheduler,
		),
		fx.Invoke(
			func(
				lc fx.Lifecycle,
				md *mdsvc.Client,
				ps *store.PositionStore,
				rs *store.RiskStore,
				orch *Orchestrator,
				sched *Scheduler,
			) {
				streamCtx, stopStream := context.WithCancel(context.Background())
				lc.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						if err := ps.Init(ctx); err != nil {
							return err
						}
						if err := rs.Init(ctx); err != nil {
							return err
						}
						if err := orch.Bootstrap(ctx, ps); err != nil {
							return err
						}
						go md.StreamQuotes(streamCtx, orch.Watchlist())
						return sched.Start(streamCtx)
					},
					OnStop: func(ctx context.Context) error {
						sched.Stop()
						stopStream()
						return nil
					},
				})
			},
		),
	)
}
