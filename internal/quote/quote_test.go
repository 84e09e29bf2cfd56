package quote

import (
	"testing"

	"github.com/smallbiznis/orderpricing/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuote(t *testing.T) {
	cases := []struct {
		name     string
		cfg      ProductPriceConfig
		wantSell money.Cents
		wantTax  money.Cents
	}{
		{
			name:     "margin and tax",
			cfg:      ProductPriceConfig{BasePriceCents: 1000, Taxable: true, TaxPct: money.PercentFromInt(8), MarginPct: money.PercentFromInt(20)},
			wantSell: 1200,
			wantTax:  96,
		},
		{
			name:     "half cent rounds up",
			cfg:      ProductPriceConfig{BasePriceCents: 1999, MarginPct: money.PercentFromInt(25)},
			wantSell: 2499,
		},
		{
			name:     "tax pct clamped to 30",
			cfg:      ProductPriceConfig{BasePriceCents: 1000, Taxable: true, TaxPct: money.PercentFromInt(45)},
			wantSell: 1000,
			wantTax:  300,
		},
		{
			name:     "negative tax pct clamped to 0",
			cfg:      ProductPriceConfig{BasePriceCents: 1000, Taxable: true, TaxPct: money.PercentFromInt(-5)},
			wantSell: 1000,
		},
		{
			name:     "non taxable ignores tax pct",
			cfg:      ProductPriceConfig{BasePriceCents: 1000, Taxable: false, TaxPct: money.PercentFromInt(10), MarginPct: money.PercentFromInt(10)},
			wantSell: 1100,
		},
		{
			name:     "fractional percentages",
			cfg:      ProductPriceConfig{BasePriceCents: 333, Taxable: true, TaxPct: money.Percent(725), MarginPct: money.Percent(1250)},
			wantSell: 375,
			wantTax:  27,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Quote(tc.cfg)
			require.NoError(t, err)
			assert.Equal(t, tc.wantSell, got.SellPriceCents)
			assert.Equal(t, tc.wantTax, got.TaxCents)
		})
	}
}

func TestQuoteRejectsInvalidInput(t *testing.T) {
	_, err := Quote(ProductPriceConfig{BasePriceCents: -1})
	assert.ErrorIs(t, err, ErrNegativeBasePrice)

	_, err = Quote(ProductPriceConfig{BasePriceCents: 100, MarginPct: -1})
	assert.ErrorIs(t, err, ErrNegativeMargin)
}

func TestLineTotals(t *testing.T) {
	line, err := LineTotals(ProductPriceConfig{BasePriceCents: 1000, Taxable: true, TaxPct: money.PercentFromInt(8), MarginPct: money.PercentFromInt(20)}, 3)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(3600), line.SubtotalCents)
	assert.Equal(t, money.Cents(288), line.TaxCents)
	assert.Equal(t, money.Cents(3000), line.BaseCents)
	assert.Equal(t, money.Cents(200), line.Unit.Margin(1000))

	_, err = LineTotals(ProductPriceConfig{BasePriceCents: 1000}, 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = LineTotals(ProductPriceConfig{BasePriceCents: 1 << 62}, 4)
	assert.ErrorIs(t, err, money.ErrOverflow)
}
