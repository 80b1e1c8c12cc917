package payment

import (
	"github.com/railzwaylabs/bullion/internal/config"
	"github.com/railzwaylabs/bullion/internal/payment/adapters"
	"github.com/railzwaylabs/bullion/internal/payment/adapters/mock"
	"github.com/railzwaylabs/bullion/internal/payment/adapters/xendit"
	"github.com/railzwaylabs/bullion/internal/payment/repository"
	"github.com/railzwaylabs/bullion/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config) *adapters.Registry {
		return adapters.NewRegistry(cfg.Payment,
			mock.NewFactory(),
			xendit.NewFactory(),
		)
	}),
	fx.Provide(service.New),
)
