package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/smallbiznis/orderpricing/internal/order/domain"
	"github.com/smallbiznis/orderpricing/pkg/db/pagination"
	"gorm.io/gorm"
)

// OrderQuery selects orders a payout may consider.
type OrderQuery struct {
	Period        Period
	OwnerID       string
	DeliveredOnly bool
	OrderIDs      []snowflake.ID
}

type BatchKey struct {
	OwnerID       string
	PeriodFrom    time.Time
	PeriodTo      time.Time
	DeliveredOnly bool
}

type BatchFilter struct {
	OwnerID string
	Kind    Kind
}

type Repository interface {
	ListOrders(ctx context.Context, db *gorm.DB, q OrderQuery) ([]orderdomain.Order, error)
	// ActiveClaims returns the batch holding each unreleased claim. An empty
	// ownerID matches every owner.
	ActiveClaims(ctx context.Context, db *gorm.DB, ownerID string, orderIDs []snowflake.ID) (map[ClaimKey]snowflake.ID, error)
	InsertBatch(ctx context.Context, db *gorm.DB, batch *Batch) error
	InsertClaims(ctx context.Context, db *gorm.DB, claims []Claim) error
	FindBatch(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Batch, error)
	FindLatestBatch(ctx context.Context, db *gorm.DB, key BatchKey) (*Batch, error)
	ListBatches(ctx context.Context, db *gorm.DB, filter BatchFilter, page pagination.Pagination) ([]*Batch, error)
	MarkCompensated(ctx context.Context, db *gorm.DB, batchID, compensatedBy snowflake.ID) error
	ReleaseClaims(ctx context.Context, db *gorm.DB, batchID, releasedBy snowflake.ID) (int64, error)
}

type ClaimKey struct {
	OwnerID string
	OrderID snowflake.ID
}
