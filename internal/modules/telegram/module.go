package telegram

import (
	"context"

	"trade_engine/internal/engine"
	"trade_engine/internal/modules/config"
	"trade_engine/internal/modules/telegram/service"
	"trade_engine/internal/notify"
	"trade_engine/pkg/logger"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("telegram",
		fx.Provide(
			// Telegram is optional: without a token the engine still runs
			// and notifications fall back to the log.
			func(cfg *config.Config) (*service.Telegram, error) {
				if cfg.Telegram.Token == "" {
					return nil, nil
				}
				return service.NewTelegram(cfg)
			},
			func(t *service.Telegram) notify.Notifier {
				if t == nil {
					logger.Info("[TELEGRAM] no token configured, notifications go to the log")
					return notify.NewLogNotifier()
				}
				return t
			},
		),
		fx.Invoke(
			func(lc fx.Lifecycle, t *service.Telegram, orch *engine.Orchestrator) {
				if t == nil {
					return
				}
				t.Bind(orch)
				lc.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						t.Start(context.Background())
						return nil
					},
					OnStop: func(ctx context.Context) error {
						t.Stop()
						return nil
					},
				})
			},
		),
	)
}
