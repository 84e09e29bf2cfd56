package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orderpricing/pkg/db/pagination"
)

type CloseBatchRequest struct {
	OwnerID       string
	Period        Period
	DeliveredOnly bool
	Note          string
	// ForceOrderIDs must all be eligible; one already claimed elsewhere
	// fails the close with *OverlapError instead of being skipped.
	ForceOrderIDs []snowflake.ID
}

type ListBatchesRequest struct {
	OwnerID   string
	Kind      Kind
	PageToken string
	PageSize  int32
}

type ListBatchesResponse struct {
	pagination.PageInfo
	Batches []Batch `json:"batches"`
}

type Service interface {
	Aggregate(ctx context.Context, period Period, filter Filter) (Report, error)
	CloseBatch(ctx context.Context, req CloseBatchRequest) (*Batch, error)
	CompensateBatch(ctx context.Context, batchID snowflake.ID, note string) (*Batch, error)
	GetBatch(ctx context.Context, batchID snowflake.ID) (*Batch, error)
	ListBatches(ctx context.Context, req ListBatchesRequest) (ListBatchesResponse, error)
	Statement(ctx context.Context, batchID snowflake.ID) ([]byte, error)
}
