// Package reconcile turns any stored order pricing, in whichever historical
// shape it was written, into one canonical set of totals.
package reconcile

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/orderpricing/pkg/money"
)

// Shape identifies which stored layout a record was decoded from.
type Shape string

const (
	// ShapeCents is {"pricing_cents": {...integer cents...}}.
	ShapeCents Shape = "cents"
	// ShapeDecimal is {"pricing": {"total": .., "card_fee": .., ...}} in currency units.
	ShapeDecimal Shape = "decimal"
	// ShapeLegacy is anything else: loose subtotal/tax/shipping fields, or nothing.
	ShapeLegacy Shape = "legacy"
)

// Item is one stored order line.
type Item struct {
	SellerID       string
	Quantity       int64
	UnitPriceCents money.Cents
}

// Amount is an optional stored number. It accepts JSON numbers and numeric
// strings; null and "" leave it unset.
type Amount struct {
	Value decimal.Decimal
	Set   bool
}

func AmountOf(d decimal.Decimal) Amount { return Amount{Value: d, Set: true} }

func (a *Amount) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte(`""`)) {
		*a = Amount{}
		return nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(trimmed); err != nil {
		return err
	}
	*a = Amount{Value: d, Set: true}
	return nil
}

// cents reads the amount as integer cents. Fractional cents are malformed.
func (a Amount) cents(field string) (money.Cents, error) {
	if !a.Value.Equal(a.Value.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s=%s is not whole cents", ErrMalformedRecord, field, a.Value)
	}
	return money.FromDecimal(a.Value)
}

// currency reads the amount as currency units, rounding half up to cents.
func (a Amount) currency() (money.Cents, error) {
	return money.FromDecimal(a.Value)
}

// CentsFields is the cents-snapshot shape. Any field may be absent in old rows.
type CentsFields struct {
	SubtotalCents          Amount                 `json:"subtotal_cents"`
	TaxCents               Amount                 `json:"tax_cents"`
	ShippingCents          Amount                 `json:"shipping_cents"`
	CardFeePct             Amount                 `json:"card_fee_pct"`
	CardFeeCents           Amount                 `json:"card_fee_cents"`
	TotalWithoutFeeCents   Amount                 `json:"total_without_fee_cents"`
	TotalWithCardCents     Amount                 `json:"total_with_card_cents"`
	TotalWithFeeCents      Amount                 `json:"total_with_fee_cents"`
	PerSellerShippingCents map[string]money.Cents `json:"per_seller_shipping_cents"`
}

// DecimalFields is the decimal-snapshot shape, values in currency units.
// Total is the amount before the card fee.
type DecimalFields struct {
	Subtotal      Amount `json:"subtotal"`
	Tax           Amount `json:"tax"`
	Shipping      Amount `json:"shipping"`
	CardFeePct    Amount `json:"card_fee_pct"`
	CardFee       Amount `json:"card_fee"`
	Total         Amount `json:"total"`
	TotalWithCard Amount `json:"total_with_card"`
}

// LegacyFields are loose partial fields, in currency units.
type LegacyFields struct {
	Subtotal Amount `json:"subtotal"`
	Tax      Amount `json:"tax"`
	Shipping Amount `json:"shipping"`
}

// Record is a stored order resolved to exactly one shape. Only the field
// matching Shape is populated, except Legacy which always carries whatever
// loose fields were found.
type Record struct {
	OrderID string
	Shape   Shape
	Cents   *CentsFields
	Decimal *DecimalFields
	Legacy  LegacyFields
	Items   []Item
}

// HasPricingData reports whether anything at all can be derived from the record.
func (r Record) HasPricingData() bool {
	if r.Shape != ShapeLegacy || len(r.Items) > 0 {
		return true
	}
	return r.Legacy.Subtotal.Set || r.Legacy.Tax.Set || r.Legacy.Shipping.Set
}

type metadataEnvelope struct {
	PricingCents json.RawMessage `json:"pricing_cents"`
	Pricing      json.RawMessage `json:"pricing"`
	LegacyFields
}

// Decode resolves stored pricing metadata into a Record. The first matching
// shape wins: cents snapshot, then decimal snapshot, then loose fields.
func Decode(orderID string, metadata []byte, items []Item) (Record, error) {
	rec := Record{OrderID: orderID, Shape: ShapeLegacy, Items: items}

	trimmed := bytes.TrimSpace(metadata)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return rec, nil
	}

	var env metadataEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return rec, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	rec.Legacy = env.LegacyFields

	if isObject(env.PricingCents) {
		var cents CentsFields
		if err := json.Unmarshal(env.PricingCents, &cents); err != nil {
			return rec, fmt.Errorf("%w: pricing_cents: %v", ErrMalformedRecord, err)
		}
		rec.Shape = ShapeCents
		rec.Cents = &cents
		return rec, nil
	}

	if isObject(env.Pricing) {
		var dec DecimalFields
		if err := json.Unmarshal(env.Pricing, &dec); err != nil {
			return rec, fmt.Errorf("%w: pricing: %v", ErrMalformedRecord, err)
		}
		if dec.Total.Set && dec.CardFee.Set {
			rec.Shape = ShapeDecimal
			rec.Decimal = &dec
			return rec, nil
		}
		// A partial pricing object only contributes loose fields.
		rec.Legacy = mergeLegacy(rec.Legacy, LegacyFields{Subtotal: dec.Subtotal, Tax: dec.Tax, Shipping: dec.Shipping})
	}

	return rec, nil
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// mergeLegacy keeps top-level fields and fills gaps from extra.
func mergeLegacy(top, extra LegacyFields) LegacyFields {
	if !top.Subtotal.Set {
		top.Subtotal = extra.Subtotal
	}
	if !top.Tax.Set {
		top.Tax = extra.Tax
	}
	if !top.Shipping.Set {
		top.Shipping = extra.Shipping
	}
	return top
}
