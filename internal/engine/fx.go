package engine

import (
	"github.com/smallbiznis/orderpricing/internal/checkout"
	"github.com/smallbiznis/orderpricing/internal/clock"
	"github.com/smallbiznis/orderpricing/internal/events"
	"github.com/smallbiznis/orderpricing/internal/order"
	"github.com/smallbiznis/orderpricing/internal/payout"
	"github.com/smallbiznis/orderpricing/internal/reconcile"
	"github.com/smallbiznis/orderpricing/internal/redis"
	"github.com/smallbiznis/orderpricing/internal/tariff"
	"go.uber.org/fx"
)

// Module wires the domain services. The host supplies config, logging,
// the database handle and the snowflake node.
var Module = fx.Module("engine",
	clock.Module,
	redis.Module,
	events.Module,
	tariff.Module,
	reconcile.Module,
	order.Module,
	checkout.Module,
	payout.Module,
	fx.Provide(New),
)
