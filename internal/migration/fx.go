package migration

import (
	"strings"

	"github.com/lilasstudio/crmlink/internal/config"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// The embedded migrations target postgres. Sqlite is a test-only
		// dialect and gets its schema from AutoMigrate in the tests.
		if !strings.EqualFold(cfg.DBType, "postgres") {
			return nil
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
