package collection

import (
	"github.com/loomworks/loomline/internal/collection/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("collection.service",
	fx.Provide(repository.Provide),
)
