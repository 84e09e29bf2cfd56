package domain

import "strings"

// Validate checks the destination shape. Cuban destinations need a known province.
func (d Destination) Validate() error {
	switch d.Country {
	case CountryUS:
		return nil
	case CountryCU:
		if strings.TrimSpace(d.Province) == "" {
			return &Error{Code: ErrInvalidDestination, Detail: "province is required for CU"}
		}
		if _, ok := LookupProvince(d.Province); !ok {
			return &Error{Code: ErrUnknownProvince, Detail: d.Province}
		}
		return nil
	default:
		return &Error{Code: ErrInvalidDestination, Detail: "unsupported country " + string(d.Country)}
	}
}

// AreaType derives whether the destination is a provincial capital.
func (d Destination) AreaType() (AreaType, error) {
	if err := d.Validate(); err != nil {
		return "", err
	}
	if d.Country != CountryCU {
		return "", &Error{Code: ErrInvalidDestination, Detail: "area type only applies to CU"}
	}
	return ResolveAreaType(d.Province, d.Municipality)
}

// ResolveZone maps a Cuban destination to exactly one tariff zone.
func ResolveZone(d Destination) (ZoneKey, error) {
	area, err := d.AreaType()
	if err != nil {
		return "", err
	}
	province, _ := LookupProvince(d.Province)
	habana := province == ProvinceLaHabana

	switch {
	case habana && area == AreaTypeCity:
		return ZoneHabanaCity, nil
	case habana:
		return ZoneHabanaMunicipio, nil
	case area == AreaTypeCity:
		return ZoneProvinciasCity, nil
	default:
		return ZoneProvinciasMunicipio, nil
	}
}
