package payout

import (
	"github.com/smallbiznis/orderpricing/internal/payout/repository"
	"github.com/smallbiznis/orderpricing/internal/payout/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payout.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
