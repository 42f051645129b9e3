package order

import (
	"github.com/loomworks/loomline/internal/order/repository"
	"github.com/loomworks/loomline/internal/order/service"
	"go.uber.org/fx"
)

var Module = fx.Module("order.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
