package domain

import (
	"testing"

	"github.com/smallbiznis/orderpricing/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nonCapitals = map[string]string{
	"Pinar del Río":       "Viñales",
	"Artemisa":            "Bahía Honda",
	ProvinceLaHabana:      "Guanabacoa",
	"Mayabeque":           "Güines",
	"Matanzas":            "Cárdenas",
	"Cienfuegos":          "Cruces",
	"Villa Clara":         "Sagua la Grande",
	"Sancti Spíritus":     "Trinidad",
	"Ciego de Ávila":      "Morón",
	"Camagüey":            "Nuevitas",
	"Las Tunas":           "Puerto Padre",
	"Holguín":             "Banes",
	"Granma":              "Manzanillo",
	"Santiago de Cuba":    "Palma Soriano",
	"Guantánamo":          "Baracoa",
	"Isla de la Juventud": "La Demajagua",
}

func TestResolveZoneCoversEveryProvince(t *testing.T) {
	require.Len(t, Provinces, 16)

	for _, p := range Provinces {
		p := p
		t.Run(p.Name, func(t *testing.T) {
			habana := p.Name == ProvinceLaHabana

			capitalZone, err := ResolveZone(Destination{Country: CountryCU, Province: p.Name, Municipality: p.Capitals[0]})
			require.NoError(t, err)
			assert.True(t, capitalZone.Valid())

			other, ok := nonCapitals[p.Name]
			require.True(t, ok, "missing non-capital fixture")
			otherZone, err := ResolveZone(Destination{Country: CountryCU, Province: p.Name, Municipality: other})
			require.NoError(t, err)
			assert.True(t, otherZone.Valid())

			if habana {
				assert.Equal(t, ZoneHabanaCity, capitalZone)
				assert.Equal(t, ZoneHabanaMunicipio, otherZone)
			} else {
				assert.Equal(t, ZoneProvinciasCity, capitalZone)
				assert.Equal(t, ZoneProvinciasMunicipio, otherZone)
			}
		})
	}
}

func TestResolveZoneIgnoresAccentsAndCase(t *testing.T) {
	zone, err := ResolveZone(Destination{Country: CountryCU, Province: "CAMAGUEY", Municipality: "  camagüey "})
	require.NoError(t, err)
	assert.Equal(t, ZoneProvinciasCity, zone)

	zone, err = ResolveZone(Destination{Country: CountryCU, Province: "la habana", Municipality: "Plaza de la Revolucion"})
	require.NoError(t, err)
	assert.Equal(t, ZoneHabanaCity, zone)
}

func TestResolveZoneMissingMunicipalityIsMunicipio(t *testing.T) {
	zone, err := ResolveZone(Destination{Country: CountryCU, Province: "Holguín"})
	require.NoError(t, err)
	assert.Equal(t, ZoneProvinciasMunicipio, zone)
}

func TestResolveZoneRejectsBadDestinations(t *testing.T) {
	_, err := ResolveZone(Destination{Country: CountryCU})
	assert.ErrorIs(t, err, ErrInvalidDestination)

	_, err = ResolveZone(Destination{Country: CountryCU, Province: "Atlantis"})
	assert.ErrorIs(t, err, ErrUnknownProvince)

	_, err = ResolveZone(Destination{Country: "MX", Province: "Jalisco"})
	assert.ErrorIs(t, err, ErrInvalidDestination)

	_, err = ResolveZone(Destination{Country: CountryUS})
	assert.ErrorIs(t, err, ErrInvalidDestination)
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "cardenas", NormalizeName("Cárdenas"))
	assert.Equal(t, "sancti spiritus", NormalizeName("  Sancti   Spíritus "))
	assert.Equal(t, NormalizeName("Güines"), NormalizeName("guines"))
}

func TestSellerTariffValidate(t *testing.T) {
	rate := money.Cents(150)
	valid := SellerTariff{
		SellerID: "s1",
		Sea:      &TariffBranch{Mode: BranchModeFixed, Fixed: map[ZoneKey]money.Cents{ZoneHabanaCity: 1000}},
		Air: &TariffBranch{Mode: BranchModeByWeight, ByWeight: &ByWeightConfig{
			RatePerLb: &rate,
			Base:      map[ZoneKey]money.Cents{ZoneProvinciasMunicipio: 500},
			MinFee:    800,
		}},
		US: &USTariff{FixedUSDCents: 1500},
	}
	require.NoError(t, valid.Validate())

	unknownZone := valid
	unknownZone.Sea = &TariffBranch{Mode: BranchModeFixed, Fixed: map[ZoneKey]money.Cents{"oriente": 1000}}
	assert.ErrorIs(t, unknownZone.Validate(), ErrInvalidTariff)

	negative := valid
	negative.Sea = &TariffBranch{Mode: BranchModeFixed, Fixed: map[ZoneKey]money.Cents{ZoneHabanaCity: -1}}
	assert.ErrorIs(t, negative.Validate(), ErrInvalidTariff)

	missingBlock := valid
	missingBlock.Air = &TariffBranch{Mode: BranchModeByWeight}
	assert.ErrorIs(t, missingBlock.Validate(), ErrInvalidTariff)

	negativeRate := valid
	refund := money.Cents(-5)
	negativeRate.Air = &TariffBranch{Mode: BranchModeByWeight, ByWeight: &ByWeightConfig{
		RatePerLb: &refund,
		Base:      map[ZoneKey]money.Cents{ZoneProvinciasMunicipio: 500},
	}}
	assert.ErrorIs(t, negativeRate.Validate(), ErrInvalidTariff)

	badMode := valid
	badMode.Sea = &TariffBranch{Mode: "per_parcel"}
	assert.ErrorIs(t, badMode.Validate(), ErrInvalidTariff)

	anonymous := valid
	anonymous.SellerID = ""
	assert.ErrorIs(t, anonymous.Validate(), ErrInvalidTariff)
}
