package main

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/lilasstudio/crmlink/internal/audit"
	"github.com/lilasstudio/crmlink/internal/cache"
	"github.com/lilasstudio/crmlink/internal/clock"
	"github.com/lilasstudio/crmlink/internal/config"
	"github.com/lilasstudio/crmlink/internal/crm"
	"github.com/lilasstudio/crmlink/internal/identity"
	"github.com/lilasstudio/crmlink/internal/mapping"
	"github.com/lilasstudio/crmlink/internal/matcher"
	"github.com/lilasstudio/crmlink/internal/migration"
	"github.com/lilasstudio/crmlink/internal/observability"
	"github.com/lilasstudio/crmlink/internal/pkgcache"
	"github.com/lilasstudio/crmlink/internal/profile"
	"github.com/lilasstudio/crmlink/internal/ratelimit"
	"github.com/lilasstudio/crmlink/internal/resync"
	"github.com/lilasstudio/crmlink/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Domain services required by the resync runner.
		audit.Module,
		cache.Module,
		ratelimit.Module,
		crm.Module,
		profile.Module,
		matcher.Module,
		mapping.Module,
		identity.Module,
		pkgcache.Module,
		resync.Module,

		fx.Invoke(StartResyncLoop),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}

func StartResyncLoop(lc fx.Lifecycle, cfg resync.Config, r *resync.Runner) {
	if !cfg.EnableTimerLoop {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go r.RunForever(context.Background())
			return nil
		},
	})
}
