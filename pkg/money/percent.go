package money

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Percent is a percentage stored as basis points: 300 == 3%, 290 == 2.9%.
type Percent int64

// PercentFromInt builds a whole-number percentage.
func PercentFromInt(pct int64) Percent { return Percent(pct * 100) }

// BasisPoints returns the raw basis point count.
func (p Percent) BasisPoints() int64 { return int64(p) }

// Decimal returns the percentage as a decimal number of percent units.
func (p Percent) Decimal() decimal.Decimal {
	return decimal.New(int64(p), -2)
}

func (p Percent) String() string {
	return p.Decimal().String()
}

// Clamp bounds the percentage to [lo, hi].
func (p Percent) Clamp(lo, hi Percent) Percent {
	if p < lo {
		return lo
	}
	if p > hi {
		return hi
	}
	return p
}

// ParsePercent parses "3", "2.9" or "2.95". Precision finer than a basis
// point is rejected rather than rounded.
func ParsePercent(s string) (Percent, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPercent, s)
	}
	return PercentFromDecimal(d)
}

// PercentFromDecimal converts a decimal percentage into basis points.
func PercentFromDecimal(d decimal.Decimal) (Percent, error) {
	scaled := d.Shift(2)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s has sub-basis-point precision", ErrInvalidPercent, d.String())
	}
	bi := scaled.BigInt()
	if !bi.IsInt64() {
		return 0, ErrOverflow
	}
	return Percent(bi.Int64()), nil
}

// MarshalJSON encodes the percentage as a JSON number in percent units.
func (p Percent) MarshalJSON() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalJSON accepts a JSON number or a numeric string.
func (p *Percent) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	}
	parsed, err := ParsePercent(raw)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
