package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orderpricing/internal/order/domain"
	"github.com/smallbiznis/orderpricing/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *domain.Order, items []domain.Item) error {
	if order == nil || len(items) == 0 {
		return domain.ErrEmptyOrder
	}
	err := db.WithContext(ctx).Exec(
		`INSERT INTO orders (id, customer_id, status, shipping_mode, destination, pricing, placed_at, delivered_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.CustomerID,
		order.Status,
		order.ShippingMode,
		order.Destination,
		order.Pricing,
		order.PlacedAt,
		order.DeliveredAt,
		order.CreatedAt,
		order.UpdatedAt,
	).Error
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Create(&items).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	var order domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT id, customer_id, status, shipping_mode, destination, pricing, placed_at, delivered_at, created_at, updated_at
		 FROM orders WHERE id = ?`,
		id,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, orderIDs ...snowflake.ID) ([]domain.Item, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	var items []domain.Item
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, seller_id, product_id, quantity, unit_price_cents, base_price_cents, tax_cents, weight_lbs
		 FROM order_items WHERE order_id IN ?
		 ORDER BY order_id, id`,
		orderIDs,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// List pages through orders newest first. The page token is the cursor of
// the last row of the previous page.
func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter, page pagination.Pagination) ([]*domain.Order, error) {
	var orders []*domain.Order
	stmt := db.WithContext(ctx).Model(&domain.Order{})
	if filter.CustomerID != "" {
		stmt = stmt.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.SellerID != "" {
		stmt = stmt.Where("id IN (SELECT order_id FROM order_items WHERE seller_id = ?)", filter.SellerID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.PlacedFrom != nil {
		stmt = stmt.Where("placed_at >= ?", filter.PlacedFrom.UTC())
	}
	if filter.PlacedTo != nil {
		stmt = stmt.Where("placed_at < ?", filter.PlacedTo.UTC())
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
		placedAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return nil, domain.ErrInvalidPageToken
		}
		placedAt = placedAt.UTC()
		stmt = stmt.Where("(placed_at < ? OR (placed_at = ? AND id < ?))", placedAt, placedAt, id)
	}

	err := stmt.
		Order("placed_at desc, id desc").
		Limit(page.Limit() + 1).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.Status, at time.Time) error {
	var res *gorm.DB
	if status == domain.StatusDelivered {
		res = db.WithContext(ctx).Exec(
			`UPDATE orders SET status = ?, delivered_at = ?, updated_at = ? WHERE id = ?`,
			status, at, at, id,
		)
	} else {
		res = db.WithContext(ctx).Exec(
			`UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`,
			status, at, id,
		)
	}
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
