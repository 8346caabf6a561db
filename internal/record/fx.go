package record

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/provwatch/internal/record/domain"
	"github.com/smallbiznis/provwatch/internal/record/source"
)

var Module = fx.Module("record",
	fx.Provide(
		fx.Annotate(
			source.NewHTTPSource,
			fx.As(new(domain.Source)),
		),
	),
)
