package snapshot

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/provwatch/internal/snapshot/repository"
	"github.com/smallbiznis/provwatch/internal/snapshot/service"
)

var Module = fx.Module("snapshot.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
