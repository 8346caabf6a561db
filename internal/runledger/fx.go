package runledger

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/provwatch/internal/runledger/repository"
	"github.com/smallbiznis/provwatch/internal/runledger/service"
)

var Module = fx.Module("runledger.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
