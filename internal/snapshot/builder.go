package snapshot

import (
	"fmt"

	"github.com/smallbiznis/orderpricing/pkg/money"
)

// Builder accumulates cart lines and per-seller shipping. The first error
// sticks and is returned by Build.
type Builder struct {
	subtotal  money.Cents
	tax       money.Cents
	perSeller map[string]money.Cents
	err       error
}

func NewBuilder() *Builder {
	return &Builder{perSeller: map[string]money.Cents{}}
}

// AddLine adds an extended line (unit price and tax already multiplied by quantity).
func (b *Builder) AddLine(subtotal, tax money.Cents) *Builder {
	if b.err != nil {
		return b
	}
	if b.subtotal, b.err = b.subtotal.Add(subtotal); b.err != nil {
		return b
	}
	b.tax, b.err = b.tax.Add(tax)
	return b
}

// SetSellerShipping records a seller's resolved shipping fee. Each seller is
// set once.
func (b *Builder) SetSellerShipping(sellerID string, fee money.Cents) *Builder {
	if b.err != nil {
		return b
	}
	if _, dup := b.perSeller[sellerID]; dup {
		b.err = fmt.Errorf("shipping for seller %s already set", sellerID)
		return b
	}
	b.perSeller[sellerID] = fee
	return b
}

// Build computes the card fee at cardFeePct and returns the snapshot.
func (b *Builder) Build(cardFeePct money.Percent) (PricingSnapshot, error) {
	if b.err != nil {
		return PricingSnapshot{}, b.err
	}
	return New(Components{
		SubtotalCents:          b.subtotal,
		TaxCents:               b.tax,
		PerSellerShippingCents: b.perSeller,
		CardFeePct:             cardFeePct,
	})
}
