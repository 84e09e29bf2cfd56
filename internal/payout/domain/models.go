package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orderpricing/pkg/money"
	"gorm.io/datatypes"
)

type Kind string

const (
	KindPayout       Kind = "payout"
	KindCompensation Kind = "compensation"
)

// Exclusion reasons reported for orders left out of a report or batch.
const (
	ExcludedAlreadyPaid = "already_paid"
	ExcludedDiscrepancy = "pricing_discrepancy"
)

// Period is the half-open interval [From, To) matched against placed_at.
type Period struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (p Period) Validate() error {
	if p.From.IsZero() || p.To.IsZero() || !p.From.Before(p.To) {
		return ErrInvalidPeriod
	}
	return nil
}

func (p Period) UTC() Period {
	return Period{From: p.From.UTC(), To: p.To.UTC()}
}

type Filter struct {
	OwnerID       string
	DeliveredOnly bool
	// IncludeAlreadyPaid is for reporting; CloseBatch never honors it.
	IncludeAlreadyPaid bool
}

// Amounts are the money columns shared by report rows and batches.
type Amounts struct {
	BaseCents          money.Cents `json:"base_cents"`
	ShippingOwnerCents money.Cents `json:"shipping_owner_cents"`
	MarginCents        money.Cents `json:"margin_cents"`
	TaxCents           money.Cents `json:"tax_cents"`
	GatewayFeeCents    money.Cents `json:"gateway_fee_cents"`
	AmountToOwnerCents money.Cents `json:"amount_to_owner_cents"`
}

// Add returns the component-wise sum.
func (a Amounts) Add(o Amounts) (Amounts, error) {
	var (
		out Amounts
		err error
	)
	if out.BaseCents, err = a.BaseCents.Add(o.BaseCents); err != nil {
		return Amounts{}, err
	}
	if out.ShippingOwnerCents, err = a.ShippingOwnerCents.Add(o.ShippingOwnerCents); err != nil {
		return Amounts{}, err
	}
	if out.MarginCents, err = a.MarginCents.Add(o.MarginCents); err != nil {
		return Amounts{}, err
	}
	if out.TaxCents, err = a.TaxCents.Add(o.TaxCents); err != nil {
		return Amounts{}, err
	}
	if out.GatewayFeeCents, err = a.GatewayFeeCents.Add(o.GatewayFeeCents); err != nil {
		return Amounts{}, err
	}
	if out.AmountToOwnerCents, err = a.AmountToOwnerCents.Add(o.AmountToOwnerCents); err != nil {
		return Amounts{}, err
	}
	return out, nil
}

// Negate flips every component; compensating batches carry negated amounts.
func (a Amounts) Negate() Amounts {
	return Amounts{
		BaseCents:          -a.BaseCents,
		ShippingOwnerCents: -a.ShippingOwnerCents,
		MarginCents:        -a.MarginCents,
		TaxCents:           -a.TaxCents,
		GatewayFeeCents:    -a.GatewayFeeCents,
		AmountToOwnerCents: -a.AmountToOwnerCents,
	}
}

// OwnerShare is one order's contribution to one owner.
type OwnerShare struct {
	OrderID   snowflake.ID `json:"order_id"`
	OwnerID   string       `json:"owner_id"`
	ItemCount int64        `json:"item_count"`
	Amounts
}

// OwnerRow aggregates every share for one owner.
type OwnerRow struct {
	OwnerID    string         `json:"owner_id"`
	OrderCount int            `json:"order_count"`
	ItemCount  int64          `json:"item_count"`
	OrderIDs   []snowflake.ID `json:"order_ids"`
	Amounts
}

type ExcludedOrder struct {
	OrderID snowflake.ID `json:"order_id"`
	OwnerID string       `json:"owner_id"`
	Reason  string       `json:"reason"`
}

type Report struct {
	Period   Period          `json:"period"`
	Filter   Filter          `json:"filter"`
	Rows     []OwnerRow      `json:"rows"`
	Totals   OwnerRow        `json:"totals"`
	Excluded []ExcludedOrder `json:"excluded,omitempty"`
}

// Batch is an append-only payout record. A closed batch is never edited
// except to point at the compensation that reversed it.
type Batch struct {
	ID                   snowflake.ID   `gorm:"primaryKey" json:"id"`
	OwnerID              string         `gorm:"not null;index" json:"owner_id"`
	Kind                 Kind           `gorm:"not null" json:"kind"`
	PeriodFrom           time.Time      `gorm:"not null" json:"period_from"`
	PeriodTo             time.Time      `gorm:"not null" json:"period_to"`
	DeliveredOnly        bool           `gorm:"not null" json:"delivered_only"`
	OrderIDs             datatypes.JSON `gorm:"type:jsonb;not null" json:"order_ids"`
	OrderCount           int            `gorm:"not null" json:"order_count"`
	ItemCount            int64          `gorm:"not null" json:"item_count"`
	BaseCents            money.Cents    `gorm:"not null" json:"base_cents"`
	ShippingOwnerCents   money.Cents    `gorm:"not null" json:"shipping_owner_cents"`
	MarginCents          money.Cents    `gorm:"not null" json:"margin_cents"`
	TaxCents             money.Cents    `gorm:"not null" json:"tax_cents"`
	GatewayFeeCents      money.Cents    `gorm:"not null" json:"gateway_fee_cents"`
	AmountToOwnerCents   money.Cents    `gorm:"not null" json:"amount_to_owner_cents"`
	Note                 string         `json:"note,omitempty"`
	CompensatesBatchID   *snowflake.ID  `json:"compensates_batch_id,omitempty"`
	CompensatedByBatchID *snowflake.ID  `json:"compensated_by_batch_id,omitempty"`
	ClosedAt             time.Time      `gorm:"not null;index" json:"closed_at"`
}

func (Batch) TableName() string { return "payout_batches" }

func (b Batch) Period() Period { return Period{From: b.PeriodFrom, To: b.PeriodTo} }

func (b Batch) Amounts() Amounts {
	return Amounts{
		BaseCents:          b.BaseCents,
		ShippingOwnerCents: b.ShippingOwnerCents,
		MarginCents:        b.MarginCents,
		TaxCents:           b.TaxCents,
		GatewayFeeCents:    b.GatewayFeeCents,
		AmountToOwnerCents: b.AmountToOwnerCents,
	}
}

func (b *Batch) SetAmounts(a Amounts) {
	b.BaseCents = a.BaseCents
	b.ShippingOwnerCents = a.ShippingOwnerCents
	b.MarginCents = a.MarginCents
	b.TaxCents = a.TaxCents
	b.GatewayFeeCents = a.GatewayFeeCents
	b.AmountToOwnerCents = a.AmountToOwnerCents
}

// Claim is the "paid to owner" mark. At most one unreleased claim exists per
// (owner, order); a compensation releases its batch's claims.
type Claim struct {
	ID                snowflake.ID  `gorm:"primaryKey" json:"id"`
	BatchID           snowflake.ID  `gorm:"not null;index" json:"batch_id"`
	OwnerID           string        `gorm:"not null;uniqueIndex:idx_payout_claims_active,where:released_by_batch_id IS NULL" json:"owner_id"`
	OrderID           snowflake.ID  `gorm:"not null;uniqueIndex:idx_payout_claims_active,where:released_by_batch_id IS NULL" json:"order_id"`
	ReleasedByBatchID *snowflake.ID `json:"released_by_batch_id,omitempty"`
	CreatedAt         time.Time     `gorm:"not null" json:"created_at"`
}

func (Claim) TableName() string { return "payout_claims" }
