package price

import (
	"github.com/railzwaylabs/bullion/internal/price/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("price.repository",
	fx.Provide(repository.Provide),
)
