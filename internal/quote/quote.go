// Package quote turns a product's base price and percentages into the
// customer sell price and per-unit tax.
package quote

import (
	"errors"

	"github.com/smallbiznis/orderpricing/pkg/money"
)

var (
	ErrNegativeBasePrice = errors.New("negative_base_price")
	ErrNegativeMargin    = errors.New("negative_margin")
	ErrInvalidQuantity   = errors.New("invalid_quantity")
)

// MaxTaxPct caps the tax percentage applied at quote time.
const MaxTaxPct = money.Percent(3000)

// ProductPriceConfig is the pricing input for one product.
type ProductPriceConfig struct {
	BasePriceCents money.Cents
	Taxable        bool
	TaxPct         money.Percent
	MarginPct      money.Percent
}

// Result is the per-unit quote.
type Result struct {
	SellPriceCents money.Cents
	TaxCents       money.Cents
}

// Margin is the platform's per-unit share of the sell price.
func (r Result) Margin(base money.Cents) money.Cents {
	return r.SellPriceCents - base
}

// Quote prices one unit. Tax is tracked apart from the sell price and is
// always zero for non-taxable products.
func Quote(cfg ProductPriceConfig) (Result, error) {
	if cfg.BasePriceCents < 0 {
		return Result{}, ErrNegativeBasePrice
	}
	if cfg.MarginPct < 0 {
		return Result{}, ErrNegativeMargin
	}

	sell, err := money.ScaleBy(cfg.BasePriceCents, cfg.MarginPct)
	if err != nil {
		return Result{}, err
	}

	var tax money.Cents
	if cfg.Taxable {
		tax, err = money.ApplyPercent(sell, cfg.TaxPct.Clamp(0, MaxTaxPct))
		if err != nil {
			return Result{}, err
		}
	}

	return Result{SellPriceCents: sell, TaxCents: tax}, nil
}

// Line is a quoted cart line extended by quantity.
type Line struct {
	Unit          Result
	SubtotalCents money.Cents
	TaxCents      money.Cents
	BaseCents     money.Cents
}

// LineTotals quotes cfg and multiplies every component by qty.
func LineTotals(cfg ProductPriceConfig, qty int64) (Line, error) {
	if qty <= 0 {
		return Line{}, ErrInvalidQuantity
	}
	unit, err := Quote(cfg)
	if err != nil {
		return Line{}, err
	}
	subtotal, err := unit.SellPriceCents.Mul(qty)
	if err != nil {
		return Line{}, err
	}
	tax, err := unit.TaxCents.Mul(qty)
	if err != nil {
		return Line{}, err
	}
	base, err := cfg.BasePriceCents.Mul(qty)
	if err != nil {
		return Line{}, err
	}
	return Line{Unit: unit, SubtotalCents: subtotal, TaxCents: tax, BaseCents: base}, nil
}
