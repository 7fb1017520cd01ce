package db

import (
	"context"
	"time"

	"github.com/lilasstudio/crmlink/internal/config"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormprometheus "gorm.io/plugin/prometheus"
)

var Module = fx.Module("db",
	fx.Provide(Open),
)

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
}

// Open builds the shared gorm handle with tracing, pool metrics, and
// connection pool limits applied.
func Open(lc fx.Lifecycle, p Params) (*gorm.DB, error) {
	dialector, err := Dialect(p.Config)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Use(otelgorm.NewPlugin()); err != nil {
		return nil, err
	}
	if p.Config.DBType != "sqlite" {
		if err := conn.Use(gormprometheus.New(gormprometheus.Config{
			DBName:          p.Config.DBName,
			RefreshInterval: 15,
		})); err != nil {
			p.Log.Warn("gorm prometheus plugin", zap.Error(err))
		}
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	if p.Config.DBMaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(p.Config.DBMaxIdleConn)
	}
	if p.Config.DBMaxOpenConn > 0 {
		sqlDB.SetMaxOpenConns(p.Config.DBMaxOpenConn)
	}
	if p.Config.DBConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(p.Config.DBConnMaxLifetime) * time.Second)
	}
	if p.Config.DBConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(time.Duration(p.Config.DBConnMaxIdleTime) * time.Second)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return sqlDB.Close()
		},
	})

	return conn, nil
}
