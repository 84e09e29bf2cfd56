package domain

import "github.com/smallbiznis/orderpricing/pkg/money"

// Validate rejects schedules that could never price correctly: unknown zone
// keys, negative amounts and branches whose mode disagrees with their data.
// Missing zone rates are not an error here; they fail at resolution time for
// the affected destinations only.
func (t SellerTariff) Validate() error {
	if t.SellerID == "" {
		return &Error{Code: ErrInvalidTariff, Detail: "seller_id is required"}
	}
	for _, mode := range []ShippingMode{ShippingModeSea, ShippingModeAir} {
		branch := t.Branch(mode)
		if branch == nil {
			continue
		}
		if zone, detail := branch.problem(); detail != "" {
			return &Error{Code: ErrInvalidTariff, SellerID: t.SellerID, Mode: mode, Zone: zone, Detail: detail}
		}
	}
	if t.US != nil && t.US.FixedUSDCents < 0 {
		return &Error{Code: ErrInvalidTariff, SellerID: t.SellerID, Detail: "us.fixed_usd_cents must not be negative"}
	}
	return nil
}

func (b TariffBranch) problem() (ZoneKey, string) {
	switch b.Mode {
	case BranchModeFixed:
		return zoneRatesProblem(b.Fixed)
	case BranchModeByWeight:
		cfg := b.ByWeight
		if cfg == nil {
			return "", "by_weight block is required"
		}
		if (cfg.RatePerLb != nil && *cfg.RatePerLb < 0) || cfg.MinFee < 0 {
			return "", "rate_per_lb and min_fee must not be negative"
		}
		if cfg.OverWeightFee != nil && *cfg.OverWeightFee < 0 {
			return "", "over_weight_fee must not be negative"
		}
		if cfg.OverWeightThresholdLbs != nil && cfg.OverWeightThresholdLbs.IsNegative() {
			return "", "over_weight_threshold_lbs must not be negative"
		}
		return zoneRatesProblem(cfg.Base)
	default:
		return "", "unknown branch mode " + string(b.Mode)
	}
}

func zoneRatesProblem(rates map[ZoneKey]money.Cents) (ZoneKey, string) {
	for zone, fee := range rates {
		if !zone.Valid() {
			return zone, "unknown zone"
		}
		if fee < 0 {
			return zone, "rate must not be negative"
		}
	}
	return "", ""
}
