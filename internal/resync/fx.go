package resync

import "go.uber.org/fx"

var Module = fx.Module("resync",
	fx.Provide(FromAppConfig),
	fx.Provide(New),
)
