package service

import (
	"github.com/shopspring/decimal"
	tariffdomain "github.com/smallbiznis/orderpricing/internal/tariff/domain"
	"github.com/smallbiznis/orderpricing/pkg/money"
)

// Resolve prices a shipment of weightLbs to dest under the seller's tariff.
// It never defaults a missing rate to zero: incomplete configuration is an
// error the caller must surface.
func Resolve(t tariffdomain.SellerTariff, mode tariffdomain.ShippingMode, dest tariffdomain.Destination, weightLbs decimal.Decimal) (money.Cents, error) {
	if weightLbs.IsNegative() {
		return 0, &tariffdomain.Error{Code: tariffdomain.ErrInvalidWeight, SellerID: t.SellerID, Detail: weightLbs.String()}
	}
	if err := dest.Validate(); err != nil {
		return 0, withSeller(err, t.SellerID)
	}

	if dest.Country == tariffdomain.CountryUS {
		if t.US == nil {
			return 0, &tariffdomain.Error{Code: tariffdomain.ErrMissingUSRate, SellerID: t.SellerID}
		}
		return t.US.FixedUSDCents, nil
	}

	if !mode.Valid() {
		return 0, &tariffdomain.Error{Code: tariffdomain.ErrInvalidShippingMode, SellerID: t.SellerID, Detail: string(mode)}
	}
	branch := t.Branch(mode)
	if branch == nil {
		return 0, &tariffdomain.Error{Code: tariffdomain.ErrMissingModeConfig, SellerID: t.SellerID, Mode: mode}
	}

	zone, err := tariffdomain.ResolveZone(dest)
	if err != nil {
		return 0, withSeller(err, t.SellerID)
	}

	switch branch.Mode {
	case tariffdomain.BranchModeFixed:
		fee, ok := branch.Fixed[zone]
		if !ok {
			return 0, &tariffdomain.Error{Code: tariffdomain.ErrMissingZoneRate, SellerID: t.SellerID, Mode: mode, Zone: zone}
		}
		return fee, nil
	case tariffdomain.BranchModeByWeight:
		return resolveByWeight(t.SellerID, mode, zone, branch.ByWeight, weightLbs)
	default:
		return 0, &tariffdomain.Error{Code: tariffdomain.ErrInvalidBranchMode, SellerID: t.SellerID, Mode: mode, Detail: string(branch.Mode)}
	}
}

func resolveByWeight(sellerID string, mode tariffdomain.ShippingMode, zone tariffdomain.ZoneKey, cfg *tariffdomain.ByWeightConfig, weightLbs decimal.Decimal) (money.Cents, error) {
	if cfg == nil || cfg.RatePerLb == nil {
		return 0, &tariffdomain.Error{Code: tariffdomain.ErrMissingByWeightConfig, SellerID: sellerID, Mode: mode, Zone: zone, Detail: "rate_per_lb is required"}
	}
	base, ok := cfg.Base[zone]
	if !ok {
		return 0, &tariffdomain.Error{Code: tariffdomain.ErrMissingZoneRate, SellerID: sellerID, Mode: mode, Zone: zone}
	}

	// Partial pounds bill as a whole pound.
	pounds := weightLbs.Ceil().BigInt()
	if !pounds.IsInt64() {
		return 0, &tariffdomain.Error{Code: tariffdomain.ErrInvalidWeight, SellerID: sellerID, Detail: weightLbs.String()}
	}
	weightFee, err := (*cfg.RatePerLb).Mul(pounds.Int64())
	if err != nil {
		return 0, err
	}
	fee, err := base.Add(weightFee)
	if err != nil {
		return 0, err
	}

	if cfg.OverWeightThresholdLbs != nil && cfg.OverWeightFee != nil && weightLbs.GreaterThan(*cfg.OverWeightThresholdLbs) {
		fee, err = fee.Add(*cfg.OverWeightFee)
		if err != nil {
			return 0, err
		}
	}

	return money.Max(fee, cfg.MinFee), nil
}

func withSeller(err error, sellerID string) error {
	if te, ok := err.(*tariffdomain.Error); ok && te.SellerID == "" {
		annotated := *te
		annotated.SellerID = sellerID
		return &annotated
	}
	return err
}
