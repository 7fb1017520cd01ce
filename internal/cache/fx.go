package cache

import (
	"context"
	"io"

	"go.uber.org/fx"
)

var Module = fx.Module("cache",
	fx.Provide(NewMembershipViewCache),
	fx.Invoke(closeOnStop),
)

func closeOnStop(lc fx.Lifecycle, views MembershipViewCache) {
	closer, ok := views.(io.Closer)
	if !ok {
		return
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return closer.Close()
		},
	})
}
