package sample

import (
	"github.com/loomworks/loomline/internal/sample/repository"
	"github.com/loomworks/loomline/internal/sample/service"
	"go.uber.org/fx"
)

var Module = fx.Module("sample.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
