// Package snapshot holds the immutable pricing record written once per order
// at checkout.
package snapshot

import (
	"github.com/smallbiznis/orderpricing/pkg/money"
)

// Components are the inputs a snapshot is derived from. The totals and the
// card fee are always computed, never supplied.
type Components struct {
	SubtotalCents          money.Cents
	TaxCents               money.Cents
	PerSellerShippingCents map[string]money.Cents
	CardFeePct             money.Percent
}

// PricingSnapshot is read-only once built. The zero value is not a valid
// snapshot; use New, Builder or Decode.
type PricingSnapshot struct {
	t Totals
}

// New derives shipping, totals and card fee from c and checks the result.
func New(c Components) (PricingSnapshot, error) {
	var shipping money.Cents
	for _, fee := range c.PerSellerShippingCents {
		var err error
		if shipping, err = shipping.Add(fee); err != nil {
			return PricingSnapshot{}, err
		}
	}

	without, err := money.Sum(c.SubtotalCents, c.TaxCents, shipping)
	if err != nil {
		return PricingSnapshot{}, err
	}
	fee, err := money.ApplyPercent(without, c.CardFeePct)
	if err != nil {
		return PricingSnapshot{}, err
	}
	with, err := without.Add(fee)
	if err != nil {
		return PricingSnapshot{}, err
	}

	perSeller := copyShipping(c.PerSellerShippingCents)
	if perSeller == nil {
		perSeller = map[string]money.Cents{}
	}

	return FromTotals(Totals{
		SubtotalCents:          c.SubtotalCents,
		TaxCents:               c.TaxCents,
		ShippingCents:          shipping,
		CardFeePct:             c.CardFeePct,
		CardFeeCents:           fee,
		TotalWithoutFeeCents:   without,
		TotalWithFeeCents:      with,
		PerSellerShippingCents: perSeller,
	})
}

// FromTotals wraps already-computed totals after checking their invariants.
func FromTotals(t Totals) (PricingSnapshot, error) {
	if err := t.Check(); err != nil {
		return PricingSnapshot{}, err
	}
	return PricingSnapshot{t: t.Clone()}, nil
}

func (s PricingSnapshot) SubtotalCents() money.Cents        { return s.t.SubtotalCents }
func (s PricingSnapshot) TaxCents() money.Cents             { return s.t.TaxCents }
func (s PricingSnapshot) ShippingCents() money.Cents        { return s.t.ShippingCents }
func (s PricingSnapshot) CardFeePct() money.Percent         { return s.t.CardFeePct }
func (s PricingSnapshot) CardFeeCents() money.Cents         { return s.t.CardFeeCents }
func (s PricingSnapshot) TotalWithoutFeeCents() money.Cents { return s.t.TotalWithoutFeeCents }
func (s PricingSnapshot) TotalWithFeeCents() money.Cents    { return s.t.TotalWithFeeCents }

// SellerShippingCents returns one seller's shipping share.
func (s PricingSnapshot) SellerShippingCents(sellerID string) (money.Cents, bool) {
	fee, ok := s.t.PerSellerShippingCents[sellerID]
	return fee, ok
}

// Totals returns a detached copy of every field.
func (s PricingSnapshot) Totals() Totals {
	return s.t.Clone()
}
