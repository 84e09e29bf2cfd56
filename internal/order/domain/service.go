package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orderpricing/pkg/db/pagination"
)

type ListRequest struct {
	PageToken  string
	PageSize   int32
	CustomerID string
	SellerID   string
	Status     Status
	PlacedFrom *time.Time
	PlacedTo   *time.Time
}

type ListResponse struct {
	pagination.PageInfo
	Orders []View `json:"orders"`
}

// Service is the read side shared by the customer order page and the admin
// list and detail views. Totals always come from the reconciler.
type Service interface {
	Get(ctx context.Context, id snowflake.ID) (View, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	MarkShipped(ctx context.Context, id snowflake.ID) error
	MarkDelivered(ctx context.Context, id snowflake.ID) error
	Cancel(ctx context.Context, id snowflake.ID) error
}

var (
	ErrInvalidID         = errors.New("invalid_id")
	ErrNotFound          = errors.New("order_not_found")
	ErrInvalidTransition = errors.New("invalid_status_transition")
	ErrEmptyOrder        = errors.New("empty_order")
	ErrInvalidPageToken  = errors.New("invalid_page_token")
)

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPlaced:
		return to == StatusShipped || to == StatusDelivered || to == StatusCancelled
	case StatusShipped:
		return to == StatusDelivered
	default:
		return false
	}
}
