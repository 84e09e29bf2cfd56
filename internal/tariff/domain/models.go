package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/orderpricing/pkg/money"
)

// Country codes a destination may carry.
type Country string

const (
	CountryUS Country = "US"
	CountryCU Country = "CU"
)

// AreaType says whether a municipality is its province's capital.
type AreaType string

const (
	AreaTypeCity      AreaType = "city"
	AreaTypeMunicipio AreaType = "municipio"
)

// ZoneKey is one of the four Cuban tariff zones.
type ZoneKey string

const (
	ZoneHabanaCity          ZoneKey = "habana_city"
	ZoneHabanaMunicipio     ZoneKey = "habana_municipio"
	ZoneProvinciasCity      ZoneKey = "provincias_city"
	ZoneProvinciasMunicipio ZoneKey = "provincias_municipio"
)

// Zones lists every valid zone in a stable order.
var Zones = []ZoneKey{
	ZoneHabanaCity,
	ZoneHabanaMunicipio,
	ZoneProvinciasCity,
	ZoneProvinciasMunicipio,
}

func (z ZoneKey) Valid() bool {
	switch z {
	case ZoneHabanaCity, ZoneHabanaMunicipio, ZoneProvinciasCity, ZoneProvinciasMunicipio:
		return true
	default:
		return false
	}
}

// ShippingMode selects the tariff branch.
type ShippingMode string

const (
	ShippingModeSea ShippingMode = "sea"
	ShippingModeAir ShippingMode = "air"
)

func (m ShippingMode) Valid() bool {
	return m == ShippingModeSea || m == ShippingModeAir
}

// BranchMode says how a branch prices a shipment.
type BranchMode string

const (
	BranchModeFixed    BranchMode = "fixed"
	BranchModeByWeight BranchMode = "by_weight"
)

// Destination is where an order ships. AreaType is not a field: it is always
// derived from Province and Municipality through the capital table.
type Destination struct {
	Country      Country `json:"country"`
	Province     string  `json:"province,omitempty"`
	Municipality string  `json:"municipality,omitempty"`
}

// ByWeightConfig prices by rounded-up pound count on top of a zone base.
// RatePerLb is required; an explicit zero prices by the zone base alone.
type ByWeightConfig struct {
	RatePerLb              *money.Cents            `json:"rate_per_lb,omitempty"`
	Base                   map[ZoneKey]money.Cents `json:"base"`
	MinFee                 money.Cents             `json:"min_fee"`
	OverWeightThresholdLbs *decimal.Decimal        `json:"over_weight_threshold_lbs,omitempty"`
	OverWeightFee          *money.Cents            `json:"over_weight_fee,omitempty"`
}

// TariffBranch prices one shipping mode for Cuban destinations.
type TariffBranch struct {
	Mode     BranchMode              `json:"mode"`
	Fixed    map[ZoneKey]money.Cents `json:"fixed,omitempty"`
	ByWeight *ByWeightConfig         `json:"by_weight,omitempty"`
}

// USTariff is a flat fee regardless of destination detail.
type USTariff struct {
	FixedUSDCents money.Cents `json:"fixed_usd_cents"`
}

// SellerTariff is one seller's complete shipping schedule.
type SellerTariff struct {
	SellerID string        `json:"seller_id"`
	Sea      *TariffBranch `json:"sea,omitempty"`
	Air      *TariffBranch `json:"air,omitempty"`
	US       *USTariff     `json:"us,omitempty"`
	// UpdatedAt is informational; snapshots never depend on it.
	UpdatedAt time.Time `json:"updated_at"`
}

// Branch returns the branch configured for mode, or nil.
func (t SellerTariff) Branch(mode ShippingMode) *TariffBranch {
	switch mode {
	case ShippingModeSea:
		return t.Sea
	case ShippingModeAir:
		return t.Air
	default:
		return nil
	}
}
