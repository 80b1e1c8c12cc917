package rate

import (
	"github.com/railzwaylabs/bullion/internal/rate/cache"
	"github.com/railzwaylabs/bullion/internal/rate/repository"
	"github.com/railzwaylabs/bullion/internal/rate/service"
	"go.uber.org/fx"
)

var Module = fx.Module("rate.service",
	fx.Provide(repository.Provide),
	fx.Provide(cache.New),
	fx.Provide(service.New),
)
