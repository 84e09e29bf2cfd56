package snapshot

import (
	"errors"
	"fmt"

	"github.com/smallbiznis/orderpricing/pkg/money"
)

var (
	ErrInvariantViolation = errors.New("pricing_invariant_violation")
	ErrNegativeComponent  = errors.New("negative_pricing_component")
)

// InvariantError names the total that disagrees with its own components.
type InvariantError struct {
	Field string
	Want  money.Cents
	Got   money.Cents
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: %s want %d got %d", ErrInvariantViolation, e.Field, e.Want, e.Got)
}

func (e *InvariantError) Unwrap() error { return ErrInvariantViolation }

// Totals is the plain value shape shared by snapshots and reconciled totals.
type Totals struct {
	SubtotalCents          money.Cents
	TaxCents               money.Cents
	ShippingCents          money.Cents
	CardFeePct             money.Percent
	CardFeeCents           money.Cents
	TotalWithoutFeeCents   money.Cents
	TotalWithFeeCents      money.Cents
	PerSellerShippingCents map[string]money.Cents
}

// Check verifies
//
//	total_without_fee == subtotal + tax + shipping
//	total_with_fee    == total_without_fee + card_fee
//
// and, when a per-seller breakdown is present, that it sums to shipping.
func (t Totals) Check() error {
	for name, v := range map[string]money.Cents{
		"subtotal_cents": t.SubtotalCents,
		"tax_cents":      t.TaxCents,
		"shipping_cents": t.ShippingCents,
		"card_fee_cents": t.CardFeeCents,
	} {
		if v < 0 {
			return fmt.Errorf("%w: %s=%d", ErrNegativeComponent, name, v)
		}
	}
	if t.CardFeePct < 0 {
		return fmt.Errorf("%w: card_fee_pct=%s", ErrNegativeComponent, t.CardFeePct)
	}

	without, err := money.Sum(t.SubtotalCents, t.TaxCents, t.ShippingCents)
	if err != nil {
		return err
	}
	if without != t.TotalWithoutFeeCents {
		return &InvariantError{Field: "total_without_fee_cents", Want: without, Got: t.TotalWithoutFeeCents}
	}
	with, err := without.Add(t.CardFeeCents)
	if err != nil {
		return err
	}
	if with != t.TotalWithFeeCents {
		return &InvariantError{Field: "total_with_fee_cents", Want: with, Got: t.TotalWithFeeCents}
	}

	if len(t.PerSellerShippingCents) > 0 {
		var sum money.Cents
		for seller, fee := range t.PerSellerShippingCents {
			if fee < 0 {
				return fmt.Errorf("%w: per_seller_shipping_cents[%s]=%d", ErrNegativeComponent, seller, fee)
			}
			if sum, err = sum.Add(fee); err != nil {
				return err
			}
		}
		if sum != t.ShippingCents {
			return &InvariantError{Field: "per_seller_shipping_cents", Want: t.ShippingCents, Got: sum}
		}
	}
	return nil
}

// Clone returns a copy that shares no map with t.
func (t Totals) Clone() Totals {
	out := t
	out.PerSellerShippingCents = copyShipping(t.PerSellerShippingCents)
	return out
}

func copyShipping(in map[string]money.Cents) map[string]money.Cents {
	if in == nil {
		return nil
	}
	out := make(map[string]money.Cents, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
