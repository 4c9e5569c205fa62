// Package fieldmap resolves the wildly inconsistent column and tag names of
// legacy datasets onto the normalized comparable record shape. The alias
// vocabularies here are the single source of truth for what counts as an
// "address column" across every extractor.
package fieldmap

import (
	"strconv"
	"strings"

	"github.com/terrafusion/import-service/internal/domain"
)

// Resolve returns the first non-empty value in raw whose key matches one of
// the candidate names. Candidates are tried in preference order, exact match
// first, then case-insensitive.
func Resolve(raw map[string]string, candidates []string) (string, bool) {
	for _, name := range candidates {
		if v, ok := raw[name]; ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
	}
	for _, name := range candidates {
		for k, v := range raw {
			if strings.EqualFold(k, name) && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v), true
			}
		}
	}
	return "", false
}

// ResolveFloat resolves a numeric field, stripping currency symbols and
// thousands separators before parsing. A value that still fails to parse is
// treated as absent.
func ResolveFloat(raw map[string]string, candidates []string) *float64 {
	v, ok := Resolve(raw, candidates)
	if !ok {
		return nil
	}
	f, ok := parseNumeric(v)
	if !ok {
		return nil
	}
	return &f
}

// ResolveInt is ResolveFloat truncated to an integer target.
func ResolveInt(raw map[string]string, candidates []string) *int {
	f := ResolveFloat(raw, candidates)
	if f == nil {
		return nil
	}
	n := int(*f)
	return &n
}

// parseNumeric parses a numeric string after removing the decorations legacy
// exports put on money and area columns ($, commas, spaces).
func parseNumeric(s string) (float64, bool) {
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "", " ", "").Replace(s)
	if cleaned == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// BuildRecord maps a raw key/value row onto a normalized record using the
// shared alias vocabularies. Provenance fields are left to the caller.
func BuildRecord(raw map[string]string) domain.CompRecord {
	rec := domain.CompRecord{}

	if v, ok := Resolve(raw, AddressAliases); ok {
		rec.Address = v
	}
	if v, ok := Resolve(raw, CityAliases); ok {
		rec.City = v
	}
	if v, ok := Resolve(raw, StateAliases); ok {
		rec.State = v
	}
	if v, ok := Resolve(raw, ZipAliases); ok {
		rec.ZipCode = v
	}
	if v, ok := Resolve(raw, SaleDateAliases); ok {
		rec.SaleDate = v
	}
	if v, ok := Resolve(raw, PropertyTypeAliases); ok {
		rec.PropertyType = v
	}

	rec.SalePriceUSD = ResolveFloat(raw, SalePriceAliases)
	rec.GLASqft = ResolveFloat(raw, GLAAliases)
	rec.LotSize = ResolveFloat(raw, LotSizeAliases)
	rec.Bathrooms = ResolveFloat(raw, BathroomAliases)
	rec.Bedrooms = ResolveInt(raw, BedroomAliases)
	rec.YearBuilt = ResolveInt(raw, YearBuiltAliases)

	return rec
}
