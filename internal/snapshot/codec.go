package snapshot

import (
	"encoding/json"
	"fmt"

	"github.com/smallbiznis/orderpricing/pkg/money"
)

// Document is the stored cents shape, kept under the "pricing_cents" key of
// an order's pricing metadata.
type Document struct {
	SubtotalCents          money.Cents            `json:"subtotal_cents"`
	TaxCents               money.Cents            `json:"tax_cents"`
	ShippingCents          money.Cents            `json:"shipping_cents"`
	CardFeePct             money.Percent          `json:"card_fee_pct"`
	CardFeeCents           money.Cents            `json:"card_fee_cents"`
	TotalWithoutFeeCents   money.Cents            `json:"total_without_fee_cents"`
	TotalWithCardCents     money.Cents            `json:"total_with_card_cents"`
	PerSellerShippingCents map[string]money.Cents `json:"per_seller_shipping_cents"`
}

// MetadataKey is the key the cents document is stored under.
const MetadataKey = "pricing_cents"

func (s PricingSnapshot) Document() Document {
	t := s.t.Clone()
	if t.PerSellerShippingCents == nil {
		t.PerSellerShippingCents = map[string]money.Cents{}
	}
	return Document{
		SubtotalCents:          t.SubtotalCents,
		TaxCents:               t.TaxCents,
		ShippingCents:          t.ShippingCents,
		CardFeePct:             t.CardFeePct,
		CardFeeCents:           t.CardFeeCents,
		TotalWithoutFeeCents:   t.TotalWithoutFeeCents,
		TotalWithCardCents:     t.TotalWithFeeCents,
		PerSellerShippingCents: t.PerSellerShippingCents,
	}
}

// Encode serializes the snapshot as its cents document. Map keys are sorted
// by encoding/json, so equal snapshots encode to identical bytes.
func Encode(s PricingSnapshot) ([]byte, error) {
	return json.Marshal(s.Document())
}

// EncodeMetadata wraps the document as {"pricing_cents": ...}.
func EncodeMetadata(s PricingSnapshot) ([]byte, error) {
	return json.Marshal(map[string]Document{MetadataKey: s.Document()})
}

// Decode parses a cents document and re-checks its invariants.
func Decode(data []byte) (PricingSnapshot, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return PricingSnapshot{}, fmt.Errorf("decode pricing snapshot: %w", err)
	}
	return doc.Snapshot()
}

// Snapshot validates the document and returns the snapshot it describes.
func (d Document) Snapshot() (PricingSnapshot, error) {
	return FromTotals(Totals{
		SubtotalCents:          d.SubtotalCents,
		TaxCents:               d.TaxCents,
		ShippingCents:          d.ShippingCents,
		CardFeePct:             d.CardFeePct,
		CardFeeCents:           d.CardFeeCents,
		TotalWithoutFeeCents:   d.TotalWithoutFeeCents,
		TotalWithFeeCents:      d.TotalWithCardCents,
		PerSellerShippingCents: d.PerSellerShippingCents,
	})
}

func (s PricingSnapshot) MarshalJSON() ([]byte, error) {
	return Encode(s)
}

func (s *PricingSnapshot) UnmarshalJSON(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	*s = decoded
	return nil
}
