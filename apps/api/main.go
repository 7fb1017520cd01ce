package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/lilasstudio/crmlink/internal/clock"
	"github.com/lilasstudio/crmlink/internal/config"
	"github.com/lilasstudio/crmlink/internal/migration"
	"github.com/lilasstudio/crmlink/internal/observability"
	"github.com/lilasstudio/crmlink/internal/server"
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

		server.Module,
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
