package migration

import (
	"github.com/smallbiznis/orderpricing/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Module applies the embedded postgres schema on startup. Other dialects
// are left to the caller (tests use gorm AutoMigrate on sqlite).
var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.DBAutoMigrate || cfg.DBType != "postgres" {
			return nil
		}
		if _, err := LatestMigrationVersion(); err != nil {
			return err
		}
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB, log.Named("migration"))
	}),
)
