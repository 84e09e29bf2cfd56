package reconcile

import (
	"errors"
	"fmt"
	"sort"

	"github.com/smallbiznis/orderpricing/internal/snapshot"
	"github.com/smallbiznis/orderpricing/pkg/money"
)

var (
	ErrInvariantViolation = errors.New("reconcile_invariant_violation")
	ErrMalformedRecord    = errors.New("malformed_pricing_record")
	ErrMissingPricingData = errors.New("missing_pricing_data")
)

// Source records which precedence branch produced a CanonicalTotals.
type Source string

const (
	SourceSnapshot        Source = "snapshot"
	SourceLegacyFields    Source = "legacy_fields"
	SourceDerivedFallback Source = "derived_fallback"
)

// InvariantError is a stored record whose totals disagree with its own
// components.
type InvariantError struct {
	OrderID string
	Shape   Shape
	Field   string
	Want    money.Cents
	Got     money.Cents
	Detail  string
}

func (e *InvariantError) Error() string {
	msg := fmt.Sprintf("%s: order=%s shape=%s", ErrInvariantViolation, e.OrderID, e.Shape)
	if e.Field != "" {
		msg += fmt.Sprintf(" %s want %d got %d", e.Field, e.Want, e.Got)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *InvariantError) Unwrap() error { return ErrInvariantViolation }

// Discrepancy is attached to display-mode results that could not use the
// record's own pricing.
type Discrepancy struct {
	Shape  Shape  `json:"shape"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// CanonicalTotals is the one authoritative set of totals for an order.
type CanonicalTotals struct {
	SubtotalCents          money.Cents            `json:"subtotal_cents"`
	TaxCents               money.Cents            `json:"tax_cents"`
	ShippingCents          money.Cents            `json:"shipping_cents"`
	CardFeePct             money.Percent          `json:"card_fee_pct"`
	CardFeeCents           money.Cents            `json:"card_fee_cents"`
	TotalWithoutFeeCents   money.Cents            `json:"total_without_fee_cents"`
	TotalWithFeeCents      money.Cents            `json:"total_with_fee_cents"`
	PerSellerShippingCents map[string]money.Cents `json:"per_seller_shipping_cents"`
	Source                 Source                 `json:"source"`
	Discrepancy            *Discrepancy           `json:"discrepancy,omitempty"`
}

func (c CanonicalTotals) Totals() snapshot.Totals {
	return snapshot.Totals{
		SubtotalCents:          c.SubtotalCents,
		TaxCents:               c.TaxCents,
		ShippingCents:          c.ShippingCents,
		CardFeePct:             c.CardFeePct,
		CardFeeCents:           c.CardFeeCents,
		TotalWithoutFeeCents:   c.TotalWithoutFeeCents,
		TotalWithFeeCents:      c.TotalWithFeeCents,
		PerSellerShippingCents: c.PerSellerShippingCents,
	}.Clone()
}

// Authoritative reports whether the totals come from a stored snapshot
// rather than a reconstruction.
func (c CanonicalTotals) Authoritative() bool {
	return c.Source != SourceDerivedFallback && c.Discrepancy == nil
}

// Reconcile resolves rec strictly: an inconsistent record is an error.
// fallbackPct is only used when the record carries no pricing snapshot.
func Reconcile(rec Record, fallbackPct money.Percent) (CanonicalTotals, error) {
	switch rec.Shape {
	case ShapeCents:
		if rec.Cents == nil {
			return CanonicalTotals{}, fmt.Errorf("%w: cents shape without fields", ErrMalformedRecord)
		}
		return fromCents(rec, *rec.Cents, SourceSnapshot)
	case ShapeDecimal:
		if rec.Decimal == nil {
			return CanonicalTotals{}, fmt.Errorf("%w: decimal shape without fields", ErrMalformedRecord)
		}
		cents, err := decimalToCents(*rec.Decimal)
		if err != nil {
			return CanonicalTotals{}, err
		}
		return fromCents(rec, cents, SourceLegacyFields)
	case ShapeLegacy:
		if !rec.HasPricingData() {
			return CanonicalTotals{}, fmt.Errorf("%w: order=%s", ErrMissingPricingData, rec.OrderID)
		}
		tax, shipping, err := legacyComponents(rec.Legacy)
		if err != nil {
			return CanonicalTotals{}, err
		}
		return derive(rec, tax, shipping, fallbackPct)
	default:
		return CanonicalTotals{}, fmt.Errorf("%w: unknown shape %q", ErrMalformedRecord, rec.Shape)
	}
}

func fromCents(rec Record, f CentsFields, source Source) (CanonicalTotals, error) {
	subtotal, err := optionalCents(f.SubtotalCents, "subtotal_cents", nil)
	if err != nil {
		return CanonicalTotals{}, err
	}
	if !f.SubtotalCents.Set {
		if subtotal, err = itemsSubtotal(rec.Items); err != nil {
			return CanonicalTotals{}, err
		}
	}
	tax, err := optionalCents(f.TaxCents, "tax_cents", nil)
	if err != nil {
		return CanonicalTotals{}, err
	}
	shipping, err := optionalCents(f.ShippingCents, "shipping_cents", func() (money.Cents, error) {
		return sumShipping(f.PerSellerShippingCents)
	})
	if err != nil {
		return CanonicalTotals{}, err
	}

	computedWithout, err := money.Sum(subtotal, tax, shipping)
	if err != nil {
		return CanonicalTotals{}, err
	}
	without, err := optionalCents(f.TotalWithoutFeeCents, "total_without_fee_cents", func() (money.Cents, error) {
		return computedWithout, nil
	})
	if err != nil {
		return CanonicalTotals{}, err
	}

	pct := money.Percent(0)
	if f.CardFeePct.Set {
		if pct, err = money.PercentFromDecimal(f.CardFeePct.Value); err != nil {
			return CanonicalTotals{}, fmt.Errorf("%w: card_fee_pct: %v", ErrMalformedRecord, err)
		}
	}

	declaredWith := f.TotalWithCardCents
	if !declaredWith.Set {
		declaredWith = f.TotalWithFeeCents
	}

	var fee money.Cents
	switch {
	case f.CardFeeCents.Set:
		if fee, err = f.CardFeeCents.cents("card_fee_cents"); err != nil {
			return CanonicalTotals{}, err
		}
	case f.CardFeePct.Set:
		if fee, err = money.ApplyPercent(without, pct); err != nil {
			return CanonicalTotals{}, err
		}
	case declaredWith.Set:
		with, err := declaredWith.cents("total_with_card_cents")
		if err != nil {
			return CanonicalTotals{}, err
		}
		fee = with - without
	}

	with, err := optionalCents(declaredWith, "total_with_card_cents", func() (money.Cents, error) {
		return without.Add(fee)
	})
	if err != nil {
		return CanonicalTotals{}, err
	}

	perSeller := f.PerSellerShippingCents
	if len(perSeller) == 0 {
		if perSeller, err = allocateShipping(shipping, rec.Items); err != nil {
			return CanonicalTotals{}, err
		}
	}

	out := CanonicalTotals{
		SubtotalCents:          subtotal,
		TaxCents:               tax,
		ShippingCents:          shipping,
		CardFeePct:             pct,
		CardFeeCents:           fee,
		TotalWithoutFeeCents:   without,
		TotalWithFeeCents:      with,
		PerSellerShippingCents: copyMap(perSeller),
		Source:                 source,
	}
	if err := out.Totals().Check(); err != nil {
		return CanonicalTotals{}, asInvariantError(rec, err)
	}
	return out, nil
}

func decimalToCents(d DecimalFields) (CentsFields, error) {
	var out CentsFields
	conv := []struct {
		in  Amount
		out *Amount
	}{
		{d.Subtotal, &out.SubtotalCents},
		{d.Tax, &out.TaxCents},
		{d.Shipping, &out.ShippingCents},
		{d.CardFee, &out.CardFeeCents},
		{d.Total, &out.TotalWithoutFeeCents},
		{d.TotalWithCard, &out.TotalWithCardCents},
	}
	for _, c := range conv {
		if !c.in.Set {
			continue
		}
		cents, err := c.in.currency()
		if err != nil {
			return CentsFields{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
		}
		*c.out = AmountOf(cents.Decimal().Shift(2))
	}
	out.CardFeePct = d.CardFeePct
	return out, nil
}

func legacyComponents(l LegacyFields) (tax, shipping money.Cents, err error) {
	if l.Tax.Set {
		if tax, err = l.Tax.currency(); err != nil {
			return 0, 0, fmt.Errorf("%w: tax: %v", ErrMalformedRecord, err)
		}
	}
	if l.Shipping.Set {
		if shipping, err = l.Shipping.currency(); err != nil {
			return 0, 0, fmt.Errorf("%w: shipping: %v", ErrMalformedRecord, err)
		}
	}
	return tax, shipping, nil
}

// derive rebuilds totals from line items plus whatever tax and shipping are
// known, charging the card fee at pct.
func derive(rec Record, tax, shipping money.Cents, pct money.Percent) (CanonicalTotals, error) {
	subtotal, err := itemsSubtotal(rec.Items)
	if err != nil {
		return CanonicalTotals{}, err
	}
	without, err := money.Sum(subtotal, tax, shipping)
	if err != nil {
		return CanonicalTotals{}, err
	}
	fee, err := money.ApplyPercent(without, pct)
	if err != nil {
		return CanonicalTotals{}, err
	}
	with, err := without.Add(fee)
	if err != nil {
		return CanonicalTotals{}, err
	}
	perSeller, err := allocateShipping(shipping, rec.Items)
	if err != nil {
		return CanonicalTotals{}, err
	}

	out := CanonicalTotals{
		SubtotalCents:          subtotal,
		TaxCents:               tax,
		ShippingCents:          shipping,
		CardFeePct:             pct,
		CardFeeCents:           fee,
		TotalWithoutFeeCents:   without,
		TotalWithFeeCents:      with,
		PerSellerShippingCents: perSeller,
		Source:                 SourceDerivedFallback,
	}
	if err := out.Totals().Check(); err != nil {
		return CanonicalTotals{}, asInvariantError(rec, err)
	}
	return out, nil
}

func optionalCents(a Amount, field string, otherwise func() (money.Cents, error)) (money.Cents, error) {
	if a.Set {
		return a.cents(field)
	}
	if otherwise == nil {
		return 0, nil
	}
	return otherwise()
}

func itemsSubtotal(items []Item) (money.Cents, error) {
	var total money.Cents
	for _, it := range items {
		if it.Quantity < 0 || it.UnitPriceCents < 0 {
			return 0, fmt.Errorf("%w: negative line for seller %s", ErrMalformedRecord, it.SellerID)
		}
		line, err := it.UnitPriceCents.Mul(it.Quantity)
		if err != nil {
			return 0, err
		}
		if total, err = total.Add(line); err != nil {
			return 0, err
		}
	}
	return total, nil
}

func sumShipping(perSeller map[string]money.Cents) (money.Cents, error) {
	var total money.Cents
	for _, fee := range perSeller {
		var err error
		if total, err = total.Add(fee); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// allocateShipping splits shipping across sellers by their share of the
// items subtotal. Sellers are ordered by id so the split is deterministic.
func allocateShipping(shipping money.Cents, items []Item) (map[string]money.Cents, error) {
	bySeller := map[string]money.Cents{}
	for _, it := range items {
		line, err := it.UnitPriceCents.Mul(it.Quantity)
		if err != nil {
			return nil, err
		}
		if bySeller[it.SellerID], err = bySeller[it.SellerID].Add(line); err != nil {
			return nil, err
		}
	}
	out := make(map[string]money.Cents, len(bySeller))
	if len(bySeller) == 0 {
		return out, nil
	}

	sellers := make([]string, 0, len(bySeller))
	for id := range bySeller {
		sellers = append(sellers, id)
	}
	sort.Strings(sellers)
	weights := make([]money.Cents, len(sellers))
	for i, id := range sellers {
		weights[i] = bySeller[id]
	}
	for i, share := range money.Allocate(shipping, weights) {
		out[sellers[i]] = share
	}
	return out, nil
}

func asInvariantError(rec Record, err error) error {
	var si *snapshot.InvariantError
	if errors.As(err, &si) {
		return &InvariantError{OrderID: rec.OrderID, Shape: rec.Shape, Field: si.Field, Want: si.Want, Got: si.Got}
	}
	if errors.Is(err, snapshot.ErrNegativeComponent) {
		return &InvariantError{OrderID: rec.OrderID, Shape: rec.Shape, Detail: err.Error()}
	}
	return err
}

func copyMap(in map[string]money.Cents) map[string]money.Cents {
	out := make(map[string]money.Cents, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
