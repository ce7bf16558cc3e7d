package portone

import "go.uber.org/fx"

var Module = fx.Module("portone",
	fx.Provide(NewClient),
)
