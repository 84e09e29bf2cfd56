package config

import (
	"errors"
	"fmt"

	"github.com/smallbiznis/orderpricing/pkg/money"
)

var (
	ErrInvalidCardFeePct = errors.New("invalid_card_fee_pct")
)

// maxCardFeePct bounds the card surcharge to something a processor could plausibly charge.
const maxCardFeePct = money.Percent(2000)

// PricingConfig is loaded once at process start and never mutated. It is
// passed by value into every component that needs a fee percentage.
type PricingConfig struct {
	// CardFeePct is applied at checkout to build total_with_fee.
	CardFeePct money.Percent
	// FallbackCardFeePct is used only when reconstructing totals for
	// orders that carry no stored pricing.
	FallbackCardFeePct money.Percent
}

func NewPricingConfig(cfg Config) (PricingConfig, error) {
	cardFee, err := parseFeePct("CARD_FEE_PCT", cfg.Pricing.CardFeePct)
	if err != nil {
		return PricingConfig{}, err
	}
	fallback, err := parseFeePct("FALLBACK_CARD_FEE_PCT", cfg.Pricing.FallbackCardFeePct)
	if err != nil {
		return PricingConfig{}, err
	}
	return PricingConfig{
		CardFeePct:         cardFee,
		FallbackCardFeePct: fallback,
	}, nil
}

func parseFeePct(key, raw string) (money.Percent, error) {
	if raw == "" {
		return 0, fmt.Errorf("%w: %s is required", ErrInvalidCardFeePct, key)
	}
	pct, err := money.ParsePercent(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidCardFeePct, key, err)
	}
	if pct < 0 || pct > maxCardFeePct {
		return 0, fmt.Errorf("%w: %s must be between 0 and %s", ErrInvalidCardFeePct, key, maxCardFeePct)
	}
	return pct, nil
}
