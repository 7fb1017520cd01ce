package main

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/lilasstudio/crmlink/internal/clock"
	"github.com/lilasstudio/crmlink/internal/config"
	"github.com/lilasstudio/crmlink/internal/migration"
	"github.com/lilasstudio/crmlink/internal/observability"
	"github.com/lilasstudio/crmlink/internal/resync"
	"github.com/lilasstudio/crmlink/internal/server"
	"github.com/lilasstudio/crmlink/pkg/db"
	"go.uber.org/fx"
)

// crmlink runs the API and, when RESYNC_TIMER_ENABLED is set, the bulk
// resync loop in a single process. The apps/ binaries split the two roles
// for deployments that scale them independently.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		server.Module,

		fx.Invoke(StartResyncLoop),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
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
