package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/orderpricing/internal/reconcile"
	"github.com/smallbiznis/orderpricing/pkg/money"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPlaced    Status = "placed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// Order is the stored order header. Pricing holds the metadata document the
// order was written with; older rows carry decimal or loose legacy fields.
type Order struct {
	ID           snowflake.ID   `gorm:"primaryKey" json:"id"`
	CustomerID   string         `gorm:"not null;index" json:"customer_id"`
	Status       Status         `gorm:"not null" json:"status"`
	ShippingMode string         `gorm:"column:shipping_mode" json:"shipping_mode,omitempty"`
	Destination  datatypes.JSON `gorm:"type:jsonb" json:"destination,omitempty"`
	Pricing      datatypes.JSON `gorm:"type:jsonb" json:"pricing,omitempty"`
	PlacedAt     time.Time      `gorm:"not null;index" json:"placed_at"`
	DeliveredAt  *time.Time     `json:"delivered_at,omitempty"`
	CreatedAt    time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

// Item is one order line. UnitPriceCents is the customer sell price per
// unit; BasePriceCents is what the seller is owed per unit.
type Item struct {
	ID             snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrderID        snowflake.ID    `gorm:"not null;index" json:"order_id"`
	SellerID       string          `gorm:"not null;index" json:"seller_id"`
	ProductID      string          `json:"product_id"`
	Quantity       int64           `gorm:"not null" json:"quantity"`
	UnitPriceCents money.Cents     `gorm:"not null" json:"unit_price_cents"`
	BasePriceCents money.Cents     `gorm:"not null;default:0" json:"base_price_cents"`
	TaxCents       money.Cents     `gorm:"not null;default:0" json:"tax_cents"`
	WeightLbs      decimal.Decimal `gorm:"type:numeric(12,3);not null;default:0" json:"weight_lbs"`
}

func (Item) TableName() string { return "order_items" }

// ReconcileItems projects stored lines onto the reconciler's input.
func ReconcileItems(items []Item) []reconcile.Item {
	out := make([]reconcile.Item, 0, len(items))
	for _, it := range items {
		out = append(out, reconcile.Item{
			SellerID:       it.SellerID,
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
		})
	}
	return out
}

// Record decodes the order's stored pricing together with its lines.
func (o Order) Record(items []Item) (reconcile.Record, error) {
	return reconcile.Decode(o.ID.String(), o.Pricing, ReconcileItems(items))
}

// View is an order as every display surface sees it.
type View struct {
	Order  Order                     `json:"order"`
	Items  []Item                    `json:"items"`
	Totals reconcile.CanonicalTotals `json:"totals"`
}
