package events

import (
	"context"
	"time"

	"github.com/smallbiznis/orderpricing/internal/clock"
	"github.com/smallbiznis/orderpricing/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const pollInterval = 5 * time.Second

var Module = fx.Module("events",
	fx.Provide(NewOutbox),
	fx.Provide(newSink),
	fx.Invoke(runRelay),
)

// newSink connects to RabbitMQ when AMQP_URL is set. Without it events stay
// in the outbox table for another process to relay.
func newSink(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (Sink, error) {
	if cfg.AMQP.URL == "" {
		log.Info("amqp disabled, events remain in outbox")
		return nil, nil
	}
	sink, err := NewAMQPSink(cfg.AMQP)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return sink.Close()
		},
	})
	return sink, nil
}

func runRelay(lc fx.Lifecycle, db *gorm.DB, sink Sink, clk clock.Clock, log *zap.Logger) {
	if sink == nil {
		return
	}
	relay := NewRelay(db, sink, clk, log)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				ticker := time.NewTicker(pollInterval)
				defer ticker.Stop()

				for {
					if _, err := relay.ProcessPending(ctx); err != nil && ctx.Err() == nil {
						relay.log.Error("outbox relay failed", zap.Error(err))
					}
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			<-done
			return nil
		},
	})
}
