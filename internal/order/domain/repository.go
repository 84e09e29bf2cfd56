package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orderpricing/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	CustomerID string
	SellerID   string
	Status     Status
	PlacedFrom *time.Time
	PlacedTo   *time.Time
}

// Repository is the order store. Every method takes the handle to run on so
// callers can compose writes inside one transaction.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order, items []Item) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	ListItems(ctx context.Context, db *gorm.DB, orderIDs ...snowflake.ID) ([]Item, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Pagination) ([]*Order, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, at time.Time) error
}
