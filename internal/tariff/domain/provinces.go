package domain

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ProvinceLaHabana is the province whose zones are priced separately.
const ProvinceLaHabana = "La Habana"

// Province is a Cuban province (or special municipality) and the names that
// count as its administrative capital.
type Province struct {
	Name     string
	Capitals []string
}

// Provinces is the capital table used to derive AreaType. La Habana's
// capital is the city itself, and its urban core municipalities are billed
// as city deliveries.
var Provinces = []Province{
	{Name: "Pinar del Río", Capitals: []string{"Pinar del Río"}},
	{Name: "Artemisa", Capitals: []string{"Artemisa"}},
	{Name: ProvinceLaHabana, Capitals: []string{"La Habana", "La Habana Vieja", "Centro Habana", "Plaza de la Revolución"}},
	{Name: "Mayabeque", Capitals: []string{"San José de las Lajas"}},
	{Name: "Matanzas", Capitals: []string{"Matanzas"}},
	{Name: "Cienfuegos", Capitals: []string{"Cienfuegos"}},
	{Name: "Villa Clara", Capitals: []string{"Santa Clara"}},
	{Name: "Sancti Spíritus", Capitals: []string{"Sancti Spíritus"}},
	{Name: "Ciego de Ávila", Capitals: []string{"Ciego de Ávila"}},
	{Name: "Camagüey", Capitals: []string{"Camagüey"}},
	{Name: "Las Tunas", Capitals: []string{"Las Tunas"}},
	{Name: "Holguín", Capitals: []string{"Holguín"}},
	{Name: "Granma", Capitals: []string{"Bayamo"}},
	{Name: "Santiago de Cuba", Capitals: []string{"Santiago de Cuba"}},
	{Name: "Guantánamo", Capitals: []string{"Guantánamo"}},
	{Name: "Isla de la Juventud", Capitals: []string{"Nueva Gerona"}},
}

var provinceIndex = buildProvinceIndex(Provinces)

type provinceEntry struct {
	name     string
	capitals map[string]struct{}
}

func buildProvinceIndex(list []Province) map[string]provinceEntry {
	index := make(map[string]provinceEntry, len(list))
	for _, p := range list {
		entry := provinceEntry{name: p.Name, capitals: make(map[string]struct{}, len(p.Capitals))}
		for _, c := range p.Capitals {
			entry.capitals[NormalizeName(c)] = struct{}{}
		}
		index[NormalizeName(p.Name)] = entry
	}
	return index
}

// LookupProvince returns the canonical province name for a user-entered value.
func LookupProvince(name string) (string, bool) {
	entry, ok := provinceIndex[NormalizeName(name)]
	if !ok {
		return "", false
	}
	return entry.name, true
}

// ResolveAreaType derives the area type from the capital table.
func ResolveAreaType(province, municipality string) (AreaType, error) {
	entry, ok := provinceIndex[NormalizeName(province)]
	if !ok {
		return "", ErrUnknownProvince
	}
	if _, capital := entry.capitals[NormalizeName(municipality)]; capital {
		return AreaTypeCity, nil
	}
	return AreaTypeMunicipio, nil
}

// NormalizeName folds case, accents and repeated whitespace so "Cárdenas",
// "cardenas" and " CARDENAS " compare equal.
func NormalizeName(value string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, value)
	if err != nil {
		folded = value
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}
