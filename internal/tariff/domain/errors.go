package domain

import (
	"errors"
	"fmt"
)

var (
	ErrMissingZoneRate       = errors.New("missing_zone_rate")
	ErrMissingByWeightConfig = errors.New("missing_by_weight_config")
	ErrMissingModeConfig     = errors.New("missing_mode_config")
	ErrMissingUSRate         = errors.New("missing_us_rate")
	ErrUnknownProvince       = errors.New("unknown_province")
	ErrInvalidDestination    = errors.New("invalid_destination")
	ErrInvalidShippingMode   = errors.New("invalid_shipping_mode")
	ErrInvalidWeight         = errors.New("invalid_weight")
	ErrInvalidBranchMode     = errors.New("invalid_branch_mode")
	ErrTariffNotFound        = errors.New("tariff_not_found")
	ErrInvalidTariff         = errors.New("invalid_tariff")
)

// Error carries the context of a failed resolution. It unwraps to one of the
// sentinel errors above so callers can match with errors.Is.
type Error struct {
	Code     error
	SellerID string
	Mode     ShippingMode
	Zone     ZoneKey
	Detail   string
}

func (e *Error) Error() string {
	msg := e.Code.Error()
	if e.SellerID != "" {
		msg += fmt.Sprintf(" seller=%s", e.SellerID)
	}
	if e.Mode != "" {
		msg += fmt.Sprintf(" mode=%s", e.Mode)
	}
	if e.Zone != "" {
		msg += fmt.Sprintf(" zone=%s", e.Zone)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Code }

// IsShippingUnavailable reports whether err means the seller's configuration
// cannot price this destination. Checkout shows "shipping unavailable".
func IsShippingUnavailable(err error) bool {
	return errors.Is(err, ErrMissingZoneRate) ||
		errors.Is(err, ErrMissingByWeightConfig) ||
		errors.Is(err, ErrMissingModeConfig) ||
		errors.Is(err, ErrMissingUSRate) ||
		errors.Is(err, ErrTariffNotFound)
}
