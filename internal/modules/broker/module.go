package broker

import (
	"trade_engine/internal/modules/config"
	"trade_engine/internal/modules/broker/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("broker",
		fx.Provide(
			func(cfg *config.Config) *service.Client {
				return service.NewClient(
					cfg.Broker.BaseURL,
					cfg.Broker.APIKey,
					cfg.Broker.APISecret,
					cfg.GatewayTimeout,
				)
			},
		),
	)
}
