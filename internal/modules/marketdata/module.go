package marketdata

import (
	"trade_engine/internal/modules/config"
	"trade_engine/internal/modules/marketdata/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("marketdata",
		fx.Provide(
			func(cfg *config.Config) *service.Client {
				return service.NewClient(
					cfg.MarketData.BaseURL,
					cfg.MarketData.StreamURL,
					cfg.MarketData.APIKey,
					cfg.GatewayTimeout,
				)
			},
		),
	)
}
