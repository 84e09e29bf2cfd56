package events

import (
	"context"
	"time"

	"github.com/smallbiznis/orderpricing/internal/clock"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	batchSize   = 50
	maxAttempts = 20
)

// Relay moves unpublished outbox rows to the sink. Delivery is at least
// once: a crash between Deliver and the published mark resends the row.
type Relay struct {
	db    *gorm.DB
	sink  Sink
	clock clock.Clock
	log   *zap.Logger
}

func NewRelay(db *gorm.DB, sink Sink, clk clock.Clock, log *zap.Logger) *Relay {
	return &Relay{
		db:    db,
		sink:  sink,
		clock: clk,
		log:   log.Named("events.relay"),
	}
}

// ProcessPending delivers one batch and returns how many rows were published.
func (r *Relay) ProcessPending(ctx context.Context) (int, error) {
	var pending []Event
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, topic, event_key, payload, published, published_at, attempts, last_error, created_at
		 FROM outbox_events
		 WHERE published = false AND attempts < ?
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`,
		maxAttempts,
		batchSize,
	).Scan(&pending).Error
	if err != nil {
		return 0, err
	}

	published := 0
	for _, event := range pending {
		if err := r.sink.Deliver(ctx, event); err != nil {
			r.log.Warn("event delivery failed",
				zap.String("topic", event.Topic),
				zap.String("event_id", event.ID.String()),
				zap.Int("attempts", event.Attempts+1),
				zap.Error(err),
			)
			if markErr := r.markFailed(ctx, event, err); markErr != nil {
				return published, markErr
			}
			continue
		}
		if err := r.markPublished(ctx, event, r.clock.Now(ctx).UTC()); err != nil {
			return published, err
		}
		published++
	}
	return published, nil
}

func (r *Relay) markPublished(ctx context.Context, event Event, now time.Time) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE outbox_events SET published = true, published_at = ?, attempts = attempts + 1 WHERE id = ?`,
		now,
		event.ID,
	).Error
}

func (r *Relay) markFailed(ctx context.Context, event Event, cause error) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE outbox_events SET attempts = attempts + 1, last_error = ? WHERE id = ?`,
		cause.Error(),
		event.ID,
	).Error
}
