package fieldmap

// Alias vocabularies, ordered by preference. Collected from the column and
// tag names observed across legacy appraisal exports (TOTAL, ACI, MLS dumps).
var (
	AddressAliases = []string{
		"address", "property_address", "street_address",
		"Address", "Property Address", "Street Address", "situs_address",
	}

	CityAliases = []string{"city", "City", "situs_city"}

	StateAliases = []string{"state", "State", "st", "situs_state"}

	ZipAliases = []string{
		"zip", "zipcode", "zip_code", "postal_code",
		"Zip", "Zip Code", "Postal Code",
	}

	SalePriceAliases = []string{
		"sale_price", "price", "sale_amount", "selling_price",
		"Sale Price", "Price", "Sold Price", "sold_price", "sale_price_usd",
	}

	GLAAliases = []string{
		"gla", "sqft", "square_feet", "living_area", "gross_living_area",
		"GLA", "Sq Ft", "SqFt", "Square Feet", "Living Area", "gla_sqft",
	}

	SaleDateAliases = []string{
		"sale_date", "closing_date", "date_sold",
		"Sale Date", "Closing Date", "Date Sold", "sold_date",
	}

	PropertyTypeAliases = []string{
		"property_type", "type", "Property Type", "Type", "prop_type",
	}

	BedroomAliases = []string{
		"bedrooms", "beds", "bedroom_count", "Bedrooms", "Beds", "br",
	}

	BathroomAliases = []string{
		"bathrooms", "baths", "bathroom_count", "Bathrooms", "Baths", "ba",
	}

	YearBuiltAliases = []string{
		"year_built", "built_year", "construction_year",
		"Year Built", "Yr Built", "yr_built",
	}

	LotSizeAliases = []string{
		"lot_size", "lot_sqft", "parcel_size", "Lot Size", "Lot Sqft", "acres",
	}
)
