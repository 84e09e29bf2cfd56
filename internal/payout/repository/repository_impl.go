package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/smallbiznis/orderpricing/internal/order/domain"
	"github.com/smallbiznis/orderpricing/internal/payout/domain"
	"github.com/smallbiznis/orderpricing/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) ListOrders(ctx context.Context, db *gorm.DB, q domain.OrderQuery) ([]orderdomain.Order, error) {
	var (
		where = []string{"placed_at >= ?", "placed_at < ?", "status <> ?"}
		args  = []any{q.Period.From.UTC(), q.Period.To.UTC(), orderdomain.StatusCancelled}
	)
	if q.DeliveredOnly {
		where = append(where, "status = ?")
		args = append(args, orderdomain.StatusDelivered)
	}
	if q.OwnerID != "" {
		where = append(where, "id IN (SELECT order_id FROM order_items WHERE seller_id = ?)")
		args = append(args, q.OwnerID)
	}
	if len(q.OrderIDs) > 0 {
		where = append(where, "id IN ?")
		args = append(args, q.OrderIDs)
	}

	var orders []orderdomain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT id, customer_id, status, shipping_mode, destination, pricing, placed_at, delivered_at, created_at, updated_at
		 FROM orders
		 WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY placed_at ASC, id ASC`,
		args...,
	).Scan(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

type claimRow struct {
	OwnerID string
	OrderID snowflake.ID
	BatchID snowflake.ID
}

func (r *repo) ActiveClaims(ctx context.Context, db *gorm.DB, ownerID string, orderIDs []snowflake.ID) (map[domain.ClaimKey]snowflake.ID, error) {
	out := map[domain.ClaimKey]snowflake.ID{}
	if len(orderIDs) == 0 {
		return out, nil
	}

	stmt := db.WithContext(ctx).
		Table("payout_claims").
		Select("owner_id, order_id, batch_id").
		Where("released_by_batch_id IS NULL").
		Where("order_id IN ?", orderIDs)
	if ownerID != "" {
		stmt = stmt.Where("owner_id = ?", ownerID)
	}

	var rows []claimRow
	if err := stmt.Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[domain.ClaimKey{OwnerID: row.OwnerID, OrderID: row.OrderID}] = row.BatchID
	}
	return out, nil
}

func (r *repo) InsertBatch(ctx context.Context, db *gorm.DB, batch *domain.Batch) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payout_batches (id, owner_id, kind, period_from, period_to, delivered_only, order_ids, order_count, item_count,
		   base_cents, shipping_owner_cents, margin_cents, tax_cents, gateway_fee_cents, amount_to_owner_cents,
		   note, compensates_batch_id, compensated_by_batch_id, closed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		batch.ID,
		batch.OwnerID,
		batch.Kind,
		batch.PeriodFrom,
		batch.PeriodTo,
		batch.DeliveredOnly,
		batch.OrderIDs,
		batch.OrderCount,
		batch.ItemCount,
		batch.BaseCents,
		batch.ShippingOwnerCents,
		batch.MarginCents,
		batch.TaxCents,
		batch.GatewayFeeCents,
		batch.AmountToOwnerCents,
		batch.Note,
		batch.CompensatesBatchID,
		batch.CompensatedByBatchID,
		batch.ClosedAt,
	).Error
}

func (r *repo) InsertClaims(ctx context.Context, db *gorm.DB, claims []domain.Claim) error {
	if len(claims) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&claims).Error
}

const batchColumns = `id, owner_id, kind, period_from, period_to, delivered_only, order_ids, order_count, item_count,
	base_cents, shipping_owner_cents, margin_cents, tax_cents, gateway_fee_cents, amount_to_owner_cents,
	note, compensates_batch_id, compensated_by_batch_id, closed_at`

func (r *repo) FindBatch(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Batch, error) {
	var batch domain.Batch
	err := db.WithContext(ctx).Raw(
		`SELECT `+batchColumns+` FROM payout_batches WHERE id = ?`,
		id,
	).Scan(&batch).Error
	if err != nil {
		return nil, err
	}
	if batch.ID == 0 {
		return nil, nil
	}
	return &batch, nil
}

// FindLatestBatch returns the newest uncompensated payout batch for key.
func (r *repo) FindLatestBatch(ctx context.Context, db *gorm.DB, key domain.BatchKey) (*domain.Batch, error) {
	var batch domain.Batch
	err := db.WithContext(ctx).Raw(
		`SELECT `+batchColumns+` FROM payout_batches
		 WHERE owner_id = ? AND kind = ? AND period_from = ? AND period_to = ? AND delivered_only = ?
		   AND compensated_by_batch_id IS NULL
		 ORDER BY closed_at DESC, id DESC
		 LIMIT 1`,
		key.OwnerID,
		domain.KindPayout,
		key.PeriodFrom.UTC(),
		key.PeriodTo.UTC(),
		key.DeliveredOnly,
	).Scan(&batch).Error
	if err != nil {
		return nil, err
	}
	if batch.ID == 0 {
		return nil, nil
	}
	return &batch, nil
}

func (r *repo) ListBatches(ctx context.Context, db *gorm.DB, filter domain.BatchFilter, page pagination.Pagination) ([]*domain.Batch, error) {
	var batches []*domain.Batch
	stmt := db.WithContext(ctx).Model(&domain.Batch{})
	if filter.OwnerID != "" {
		stmt = stmt.Where("owner_id = ?", filter.OwnerID)
	}
	if filter.Kind != "" {
		stmt = stmt.Where("kind = ?", filter.Kind)
	}
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, domain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, domain.ErrInvalidPageToken
		}
		closedAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return nil, domain.ErrInvalidPageToken
		}
		closedAt = closedAt.UTC()
		stmt = stmt.Where("(closed_at < ? OR (closed_at = ? AND id < ?))", closedAt, closedAt, id)
	}
	err := stmt.
		Order("closed_at desc, id desc").
		Limit(page.Limit() + 1).
		Find(&batches).Error
	if err != nil {
		return nil, err
	}
	return batches, nil
}

func (r *repo) MarkCompensated(ctx context.Context, db *gorm.DB, batchID, compensatedBy snowflake.ID) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE payout_batches SET compensated_by_batch_id = ?
		 WHERE id = ? AND kind = ? AND compensated_by_batch_id IS NULL`,
		compensatedBy,
		batchID,
		domain.KindPayout,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrAlreadyCompensated
	}
	return nil
}

func (r *repo) ReleaseClaims(ctx context.Context, db *gorm.DB, batchID, releasedBy snowflake.ID) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payout_claims SET released_by_batch_id = ?
		 WHERE batch_id = ? AND released_by_batch_id IS NULL`,
		releasedBy,
		batchID,
	)
	return res.RowsAffected, res.Error
}
