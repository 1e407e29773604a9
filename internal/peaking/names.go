package peaking

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeCity returns the display form of a city name: NFC, trimmed, with
// internal whitespace runs collapsed to one space.
func NormalizeCity(name string) string {
	return strings.Join(strings.Fields(norm.NFC.String(name)), " ")
}

// CityKey returns the comparison key for a city name. Names that differ only
// by case, composition or spacing share a key.
func CityKey(name string) string {
	return cases.Fold().String(NormalizeCity(name))
}
