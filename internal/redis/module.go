package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/orderpricing/internal/config"
	"github.com/smallbiznis/orderpricing/pkg/lock"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("redis",
	fx.Provide(NewClient),
	fx.Provide(NewLocker),
)

// NewClient connects to redis when REDIS_ADDR is set. It returns a nil
// client otherwise; payout closing then relies on database isolation alone.
func NewClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*redis.Client, error) {
	if cfg.Redis.Addr == "" {
		log.Info("redis disabled, payout locks use database isolation only")
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

// NewLocker adapts the optional client to lock.Locker. A nil result means
// no cross-process lock is configured.
func NewLocker(client *redis.Client) lock.Locker {
	if client == nil {
		return nil
	}
	return lock.NewRedisLocker(client)
}
