package tracking

import (
	"github.com/loomworks/loomline/internal/tracking/repository"
	"github.com/loomworks/loomline/internal/tracking/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tracking.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewMaterializer),
)
