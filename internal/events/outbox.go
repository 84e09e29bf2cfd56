package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orderpricing/internal/clock"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	TopicOrderPlaced            = "order.placed"
	TopicPayoutBatchClosed      = "payout.batch_closed"
	TopicPayoutBatchCompensated = "payout.batch_compensated"
)

var ErrEmptyTopic = errors.New("empty_event_topic")

// Event is one outbox row. Rows are written in the same transaction as the
// state change they describe and relayed to the broker afterwards.
type Event struct {
	ID          snowflake.ID   `gorm:"primaryKey" json:"id"`
	Topic       string         `gorm:"not null;index" json:"topic"`
	Key         string         `gorm:"column:event_key;not null" json:"key"`
	Payload     datatypes.JSON `gorm:"type:jsonb;not null" json:"payload"`
	Published   bool           `gorm:"not null;default:false;index" json:"published"`
	PublishedAt *time.Time     `json:"published_at,omitempty"`
	Attempts    int            `gorm:"not null;default:0" json:"attempts"`
	LastError   string         `gorm:"column:last_error" json:"last_error,omitempty"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
}

func (Event) TableName() string { return "outbox_events" }

// Outbox appends events inside a caller-owned transaction.
type Outbox interface {
	Append(ctx context.Context, tx *gorm.DB, topic, key string, payload any) error
}

type outbox struct {
	genID *snowflake.Node
	clock clock.Clock
}

func NewOutbox(genID *snowflake.Node, clk clock.Clock) Outbox {
	return &outbox{genID: genID, clock: clk}
}

func (o *outbox) Append(ctx context.Context, tx *gorm.DB, topic, key string, payload any) error {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return ErrEmptyTopic
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return tx.WithContext(ctx).Exec(
		`INSERT INTO outbox_events (id, topic, event_key, payload, published, attempts, created_at)
		 VALUES (?, ?, ?, ?, false, 0, ?)`,
		o.genID.Generate(),
		topic,
		key,
		datatypes.JSON(body),
		o.clock.Now(ctx).UTC(),
	).Error
}
