package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidPeriod       = errors.New("invalid_payout_period")
	ErrInvalidOwner        = errors.New("invalid_owner")
	ErrNothingToClose      = errors.New("nothing_to_close")
	ErrOverlappingBatch    = errors.New("overlapping_batch")
	ErrBatchNotFound       = errors.New("payout_batch_not_found")
	ErrAlreadyCompensated  = errors.New("batch_already_compensated")
	ErrNotCompensable      = errors.New("batch_not_compensable")
	ErrBatchLocked         = errors.New("payout_batch_locked")
	ErrForcedOrderRejected = errors.New("forced_order_rejected")
	ErrInvalidPageToken    = errors.New("invalid_page_token")
)

// OverlapError lists force-included orders that another batch already claims.
type OverlapError struct {
	OwnerID  string
	OrderIDs []snowflake.ID
}

func (e *OverlapError) Error() string {
	ids := make([]string, 0, len(e.OrderIDs))
	for _, id := range e.OrderIDs {
		ids = append(ids, id.String())
	}
	return fmt.Sprintf("%s: owner=%s orders=%s", ErrOverlappingBatch, e.OwnerID, strings.Join(ids, ","))
}

func (e *OverlapError) Unwrap() error { return ErrOverlappingBatch }

// ForcedOrderError is a force-included order that is not eligible for
// reasons other than an existing claim.
type ForcedOrderError struct {
	OrderID snowflake.ID
	Reason  string
}

func (e *ForcedOrderError) Error() string {
	return fmt.Sprintf("%s: order=%s: %s", ErrForcedOrderRejected, e.OrderID, e.Reason)
}

func (e *ForcedOrderError) Unwrap() error { return ErrForcedOrderRejected }
