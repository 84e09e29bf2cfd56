package tariff

import (
	"fmt"

	"github.com/smallbiznis/orderpricing/internal/config"
	tariffdomain "github.com/smallbiznis/orderpricing/internal/tariff/domain"
	"github.com/smallbiznis/orderpricing/internal/tariff/repository"
	"github.com/smallbiznis/orderpricing/internal/tariff/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("tariff.service",
	fx.Provide(NewRepository),
	fx.Provide(service.NewService),
)

// NewRepository picks the schedule store named by TARIFF_SOURCE.
func NewRepository(cfg config.Config, db *gorm.DB, log *zap.Logger) (tariffdomain.Repository, error) {
	switch cfg.Tariffs.Source {
	case config.TariffSourceFile:
		if cfg.Tariffs.File == "" {
			return nil, fmt.Errorf("TARIFF_FILE is required when TARIFF_SOURCE=%s", config.TariffSourceFile)
		}
		return repository.NewFileStore(cfg.Tariffs.File, true, log)
	case config.TariffSourceDB, "":
		return repository.NewDBStore(db), nil
	default:
		return nil, fmt.Errorf("unsupported tariff source %q", cfg.Tariffs.Source)
	}
}
