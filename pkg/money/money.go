// Package money holds the fixed-point amount types shared by every pricing
// component. Amounts are signed integer cents; percentages are basis points.
// Floating point never participates in a stored or compared amount.
package money

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	ErrOverflow       = errors.New("amount_overflow")
	ErrInvalidAmount  = errors.New("invalid_amount")
	ErrInvalidPercent = errors.New("invalid_percent")
)

// Cents is an amount in minor currency units.
type Cents int64

// Int64 returns the raw cent count.
func (c Cents) Int64() int64 { return int64(c) }

// Decimal converts the amount to major units. Presentation boundary only.
func (c Cents) Decimal() decimal.Decimal {
	return decimal.New(int64(c), -2)
}

// String renders the amount with exactly two decimals, e.g. "45.00".
func (c Cents) String() string {
	return c.Decimal().StringFixed(2)
}

// Add returns c+o or ErrOverflow.
func (c Cents) Add(o Cents) (Cents, error) {
	if (o > 0 && c > math.MaxInt64-o) || (o < 0 && c < math.MinInt64-o) {
		return 0, ErrOverflow
	}
	return c + o, nil
}

// Mul multiplies by an integer quantity or returns ErrOverflow.
func (c Cents) Mul(qty int64) (Cents, error) {
	if c == 0 || qty == 0 {
		return 0, nil
	}
	result := int64(c) * qty
	if result/qty != int64(c) || (c == -1 && qty == math.MinInt64) || (qty == -1 && c == math.MinInt64) {
		return 0, ErrOverflow
	}
	return Cents(result), nil
}

// Sum adds all values, failing on overflow.
func Sum(values ...Cents) (Cents, error) {
	var total Cents
	for _, v := range values {
		next, err := total.Add(v)
		if err != nil {
			return 0, err
		}
		total = next
	}
	return total, nil
}

// Max returns the larger amount.
func Max(a, b Cents) Cents {
	if a > b {
		return a
	}
	return b
}

// FromDecimal converts major units to cents, rounding half away from zero.
func FromDecimal(d decimal.Decimal) (Cents, error) {
	bi := d.Shift(2).Round(0).BigInt()
	if !bi.IsInt64() {
		return 0, ErrOverflow
	}
	return Cents(bi.Int64()), nil
}

// ParseDecimal parses a major-unit string such as "45.00" into cents.
func ParseDecimal(s string) (Cents, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return FromDecimal(d)
}

// ApplyPercent returns round_half_up(amount * p / 100) using only integer
// arithmetic. Half-way values round away from zero.
func ApplyPercent(amount Cents, p Percent) (Cents, error) {
	return scaleBasisPoints(amount, int64(p))
}

// ScaleBy returns round_half_up(amount * (1 + p/100)).
func ScaleBy(amount Cents, p Percent) (Cents, error) {
	factor := int64(basisPointsPerUnit) + int64(p)
	if int64(p) > 0 && factor < 0 {
		return 0, ErrOverflow
	}
	return scaleBasisPoints(amount, factor)
}

const basisPointsPerUnit = 10000

func scaleBasisPoints(amount Cents, bp int64) (Cents, error) {
	if amount == 0 || bp == 0 {
		return 0, nil
	}
	neg := (amount < 0) != (bp < 0)
	a := absInt64(int64(amount))
	b := absInt64(bp)

	if a > 0 && b > 0 && a <= (math.MaxInt64-basisPointsPerUnit/2)/b {
		q := (a*b + basisPointsPerUnit/2) / basisPointsPerUnit
		if neg {
			q = -q
		}
		return Cents(q), nil
	}

	prod := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	prod.Add(prod, big.NewInt(basisPointsPerUnit/2))
	prod.Quo(prod, big.NewInt(basisPointsPerUnit))
	if !prod.IsInt64() {
		return 0, ErrOverflow
	}
	q := prod.Int64()
	if neg {
		q = -q
	}
	return Cents(q), nil
}

func absInt64(v int64) int64 {
	if v < 0 {
		if v == math.MinInt64 {
			return math.MaxInt64
		}
		return -v
	}
	return v
}
