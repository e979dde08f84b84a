package main

import (
	"context"
	"log"

	"trade_engine/internal/engine"
	"trade_engine/internal/modules/broker"
	"trade_engine/internal/modules/config"
	"trade_engine/internal/modules/marketdata"
	"trade_engine/internal/modules/postgres"
	"trade_engine/internal/modules/telegram"
	"trade_engine/pkg/logger"
	"trade_engine/pkg/tracing"

	"go.uber.org/fx"
)

const serviceName = "trade_engine"

func main() {
	logger.SetServiceName(serviceName)
	tracing.SetServiceName(serviceName)

	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		config.Module(),
		fx.Invoke(
			func(lc fx.Lifecycle, cfg *config.Config) error {
				if err := logger.Init(cfg.Debug); err != nil {
					return err
				}
				if cfg.Jaeger.Host == "" {
					return nil
				}
				_, closeTracer, err := tracing.InitTracer(tracing.Config{
					Host: cfg.Jaeger.Host,
					Port: cfg.Jaeger.Port,
				})
				if err != nil {
					return err
				}
				lc.Append(fx.Hook{
					OnStop: func(context.Context) error {
						closeTracer()
						return nil
					},
				})
				return nil
			},
		),
		postgres.Module(),
		marketdata.Module(),
		broker.Module(),
		telegram.Module(),
		engine.Module(),
	)
	if err := app.Err(); err != nil {
		log.Fatal(err)
	}
	app.Run()
}
