package main

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orderpricing/internal/config"
	"github.com/smallbiznis/orderpricing/internal/engine"
	"github.com/smallbiznis/orderpricing/internal/migration"
	"github.com/smallbiznis/orderpricing/internal/observability"
	"github.com/smallbiznis/orderpricing/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	fx.New(
		config.Module,
		observability.Module,
		fx.Provide(newIDNode),
		db.Module,
		migration.Module,
		engine.Module,
		fx.Invoke(announce),
	).Run()
}

// newIDNode builds the snowflake node shared by every service. Each running
// instance needs its own SNOWFLAKE_NODE_ID.
func newIDNode(cfg config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", cfg.NodeID, err)
	}
	return node, nil
}

func announce(_ *engine.Engine, cfg config.Config, log *zap.Logger) {
	log.Info("order pricing engine ready",
		zap.String("environment", cfg.Environment),
		zap.Int64("node_id", cfg.NodeID),
		zap.String("tariff_source", cfg.Tariffs.Source),
	)
}
