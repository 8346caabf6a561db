package expiration

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/provwatch/internal/expiration/repository"
	"github.com/smallbiznis/provwatch/internal/expiration/service"
)

var Module = fx.Module("expiration.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
