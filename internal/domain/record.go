package domain

// CompRecord is the normalized comparable-sale record every extractor
// produces, regardless of source format. Numeric fields are pointers so a
// missing value is distinguishable from a legitimate zero.
type CompRecord struct {
	ID           string   `json:"id,omitempty"`
	Address      string   `json:"address"`
	City         string   `json:"city,omitempty"`
	State        string   `json:"state,omitempty"`
	ZipCode      string   `json:"zip_code,omitempty"`
	SalePriceUSD *float64 `json:"sale_price_usd,omitempty"`
	GLASqft      *float64 `json:"gla_sqft,omitempty"`
	SaleDate     string   `json:"sale_date,omitempty"`
	Bedrooms     *int     `json:"bedrooms,omitempty"`
	Bathrooms    *float64 `json:"bathrooms,omitempty"`
	LotSize      *float64 `json:"lot_size,omitempty"`
	YearBuilt    *int     `json:"year_built,omitempty"`
	PropertyType string   `json:"property_type,omitempty"`

	// Provenance of the extraction.
	SourceFile  string `json:"source_file,omitempty"`
	SourceTable string `json:"source_table,omitempty"`

	// Role distinguishes the subject property from comparables in mixed
	// files. Empty means comparable.
	Role string `json:"role,omitempty"`
}

// HasMinimumIdentity reports whether the record carries enough identity to
// be worth keeping: an address, or a city+state pair. Rows failing this are
// dropped silently so non-property rows don't show up as extraction errors.
func (r *CompRecord) HasMinimumIdentity() bool {
	if r.Address != "" {
		return true
	}
	return r.City != "" && r.State != ""
}

// Float is a convenience for building optional numeric fields.
func Float(v float64) *float64 { return &v }

// Int is a convenience for building optional integer fields.
func Int(v int) *int { return &v }
