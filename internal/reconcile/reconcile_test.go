package reconcile

import (
	"encoding/json"
	"testing"

	"github.com/smallbiznis/orderpricing/internal/snapshot"
	"github.com/smallbiznis/orderpricing/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var threePct = money.PercentFromInt(3)

func legacyItems() []Item {
	return []Item{
		{SellerID: "s1", Quantity: 2, UnitPriceCents: 1000},
		{SellerID: "s2", Quantity: 1, UnitPriceCents: 2500},
	}
}

func TestLegacyFieldsFallback(t *testing.T) {
	rec, err := Decode("1001", []byte(`{"subtotal":"45.00","tax":"3.60"}`), legacyItems())
	require.NoError(t, err)
	assert.Equal(t, ShapeLegacy, rec.Shape)

	got, err := Reconcile(rec, threePct)
	require.NoError(t, err)
	assert.Equal(t, SourceDerivedFallback, got.Source)
	assert.Equal(t, money.Cents(4500), got.SubtotalCents)
	assert.Equal(t, money.Cents(360), got.TaxCents)
	assert.Equal(t, money.Cents(0), got.ShippingCents)
	assert.Equal(t, money.Cents(4860), got.TotalWithoutFeeCents)
	assert.Equal(t, money.Cents(146), got.CardFeeCents)
	assert.Equal(t, money.Cents(5006), got.TotalWithFeeCents)
	assert.Equal(t, threePct, got.CardFeePct)
}

func TestFallbackUsesInjectedPercentage(t *testing.T) {
	rec, err := Decode("1001", []byte(`{"subtotal":"45.00","tax":"3.60"}`), legacyItems())
	require.NoError(t, err)

	got, err := Reconcile(rec, money.Percent(500))
	require.NoError(t, err)
	assert.Equal(t, money.Cents(243), got.CardFeeCents)
	assert.Equal(t, money.Cents(5103), got.TotalWithFeeCents)
}

func TestFallbackAllocatesShippingBySellerSubtotal(t *testing.T) {
	rec, err := Decode("1", []byte(`{"shipping": 10.00}`), legacyItems())
	require.NoError(t, err)

	got, err := Reconcile(rec, threePct)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(1000), got.ShippingCents)
	assert.Equal(t, map[string]money.Cents{"s1": 444, "s2": 556}, got.PerSellerShippingCents)
}

func TestCentsSnapshotRoundTrip(t *testing.T) {
	s, err := snapshot.New(snapshot.Components{
		SubtotalCents:          4500,
		TaxCents:               360,
		PerSellerShippingCents: map[string]money.Cents{"s1": 800, "s2": 1100},
		CardFeePct:             money.Percent(290),
	})
	require.NoError(t, err)
	metadata, err := snapshot.EncodeMetadata(s)
	require.NoError(t, err)

	rec, err := Decode("7", metadata, legacyItems())
	require.NoError(t, err)
	require.Equal(t, ShapeCents, rec.Shape)

	got, err := Reconcile(rec, threePct)
	require.NoError(t, err)
	assert.Equal(t, SourceSnapshot, got.Source)
	assert.Equal(t, s.Totals(), got.Totals())
}

func TestReconcileIsIdempotent(t *testing.T) {
	inputs := [][]byte{
		[]byte(`{"pricing_cents":{"subtotal_cents":4500,"tax_cents":360,"shipping_cents":1900,"card_fee_cents":203,"card_fee_pct":3,"total_without_fee_cents":6760,"total_with_card_cents":6963,"per_seller_shipping_cents":{"s2":1100,"s1":800}}}`),
		[]byte(`{"pricing":{"subtotal":"45.00","tax":"3.60","shipping":"19.00","card_fee":"2.03","total":"67.60"}}`),
		[]byte(`{"subtotal":"45.00","tax":"3.60","shipping":"7.25"}`),
	}
	for _, in := range inputs {
		rec, err := Decode("9", in, legacyItems())
		require.NoError(t, err)

		first, err := Reconcile(rec, threePct)
		require.NoError(t, err)
		second, err := Reconcile(rec, threePct)
		require.NoError(t, err)

		a, err := json.Marshal(first)
		require.NoError(t, err)
		b, err := json.Marshal(second)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestDecimalSnapshot(t *testing.T) {
	rec, err := Decode("3", []byte(`{"pricing":{"subtotal":45,"tax":"3.60","shipping":"19.00","card_fee":"2.03","total":"67.60","card_fee_pct":"3"}}`), legacyItems())
	require.NoError(t, err)
	require.Equal(t, ShapeDecimal, rec.Shape)

	got, err := Reconcile(rec, money.Percent(0))
	require.NoError(t, err)
	assert.Equal(t, SourceLegacyFields, got.Source)
	assert.Equal(t, money.Cents(4500), got.SubtotalCents)
	assert.Equal(t, money.Cents(1900), got.ShippingCents)
	assert.Equal(t, money.Cents(6760), got.TotalWithoutFeeCents)
	assert.Equal(t, money.Cents(203), got.CardFeeCents)
	assert.Equal(t, money.Cents(6963), got.TotalWithFeeCents)
	assert.Equal(t, threePct, got.CardFeePct)
}

func TestDecimalSnapshotRoundsHalfUp(t *testing.T) {
	rec, err := Decode("3", []byte(`{"pricing":{"subtotal":"10.005","tax":"0","card_fee":"0.304","total":"10.005"}}`), nil)
	require.NoError(t, err)

	got, err := Reconcile(rec, 0)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(1001), got.SubtotalCents)
	assert.Equal(t, money.Cents(1001), got.TotalWithoutFeeCents)
	assert.Equal(t, money.Cents(30), got.CardFeeCents)
	assert.Equal(t, money.Cents(1031), got.TotalWithFeeCents)
}

func TestPartialPricingObjectIsLegacy(t *testing.T) {
	rec, err := Decode("4", []byte(`{"pricing":{"tax":"3.60","card_fee":"1.00"}}`), legacyItems())
	require.NoError(t, err)
	assert.Equal(t, ShapeLegacy, rec.Shape)

	got, err := Reconcile(rec, threePct)
	require.NoError(t, err)
	assert.Equal(t, SourceDerivedFallback, got.Source)
	assert.Equal(t, money.Cents(360), got.TaxCents)
}

func TestCentsShapeTakesPrecedence(t *testing.T) {
	rec, err := Decode("5", []byte(`{
		"pricing_cents":{"subtotal_cents":4500,"tax_cents":0,"shipping_cents":0,"card_fee_cents":0,"total_without_fee_cents":4500,"total_with_card_cents":4500},
		"pricing":{"total":"99.00","card_fee":"1.00"},
		"subtotal":"1.00"
	}`), legacyItems())
	require.NoError(t, err)
	assert.Equal(t, ShapeCents, rec.Shape)

	got, err := Reconcile(rec, threePct)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(4500), got.TotalWithFeeCents)
}

func TestCentsShapeDerivesMissingFields(t *testing.T) {
	rec, err := Decode("6", []byte(`{"pricing_cents":{"tax_cents":360,"card_fee_pct":3}}`), legacyItems())
	require.NoError(t, err)

	got, err := Reconcile(rec, money.Percent(0))
	require.NoError(t, err)
	assert.Equal(t, money.Cents(4500), got.SubtotalCents)
	assert.Equal(t, money.Cents(4860), got.TotalWithoutFeeCents)
	assert.Equal(t, money.Cents(146), got.CardFeeCents)
	assert.Equal(t, money.Cents(5006), got.TotalWithFeeCents)
}

func TestCentsShapeInfersFeeFromDeclaredTotal(t *testing.T) {
	rec, err := Decode("6", []byte(`{"pricing_cents":{"subtotal_cents":1000,"total_with_card_cents":1030}}`), nil)
	require.NoError(t, err)

	got, err := Reconcile(rec, 0)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(30), got.CardFeeCents)
}

func TestInvariantViolationIsHardError(t *testing.T) {
	rec, err := Decode("8", []byte(`{"pricing_cents":{"subtotal_cents":4500,"tax_cents":360,"shipping_cents":0,"card_fee_cents":146,"total_without_fee_cents":4860,"total_with_card_cents":9999}}`), legacyItems())
	require.NoError(t, err)

	_, err = Reconcile(rec, threePct)
	require.ErrorIs(t, err, ErrInvariantViolation)
	var ie *InvariantError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "8", ie.OrderID)
	assert.Equal(t, ShapeCents, ie.Shape)
	assert.Equal(t, "total_with_fee_cents", ie.Field)
	assert.Equal(t, money.Cents(5006), ie.Want)
	assert.Equal(t, money.Cents(9999), ie.Got)
}

func TestPerSellerMismatchIsViolation(t *testing.T) {
	rec, err := Decode("8", []byte(`{"pricing_cents":{"subtotal_cents":100,"shipping_cents":50,"card_fee_cents":0,"per_seller_shipping_cents":{"s1":10}}}`), nil)
	require.NoError(t, err)

	_, err = Reconcile(rec, threePct)
	assert.ErrorIs(t, err, ErrInvariantViolation)
}

func TestFractionalCentsAreMalformed(t *testing.T) {
	rec, err := Decode("8", []byte(`{"pricing_cents":{"subtotal_cents":100.5}}`), nil)
	require.NoError(t, err)

	_, err = Reconcile(rec, threePct)
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestMissingPricingData(t *testing.T) {
	for _, metadata := range [][]byte{nil, []byte("null"), []byte(`{}`), []byte(`{"note":"gift"}`)} {
		rec, err := Decode("10", metadata, nil)
		require.NoError(t, err)
		_, err = Reconcile(rec, threePct)
		assert.ErrorIs(t, err, ErrMissingPricingData)
	}
}

func TestDecodeMalformedJSON(t *testing.T) {
	_, err := Decode("11", []byte(`{"pricing_cents":`), nil)
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestEmptyStringsAreAbsent(t *testing.T) {
	rec, err := Decode("12", []byte(`{"subtotal":"","tax":"","shipping":null}`), legacyItems())
	require.NoError(t, err)

	got, err := Reconcile(rec, threePct)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(0), got.TaxCents)
	assert.Equal(t, money.Cents(4500), got.TotalWithoutFeeCents)
}
