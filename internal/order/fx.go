package order

import (
	"github.com/railzwaylabs/bullion/internal/order/repository"
	"github.com/railzwaylabs/bullion/internal/order/service"
	"go.uber.org/fx"
)

var Module = fx.Module("order.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
