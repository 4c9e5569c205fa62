// Package validate applies structural and business rules to normalized
// comparable records. Validation failures are data, not errors: they are
// reported per record and never abort a job.
package validate

import (
	"fmt"
	"time"

	"github.com/terrafusion/import-service/internal/domain"
)

// Issue severities.
const (
	SeverityCritical = "critical"
	SeverityModerate = "moderate"
	SeverityLow      = "low"
)

// Issue kinds.
const (
	KindError   = "error"
	KindWarning = "warning"
	KindInfo    = "info"
)

// Issue is one rule violation found on a record.
type Issue struct {
	Field        string `json:"field"`
	Severity     string `json:"severity"`
	Kind         string `json:"kind"`
	Message      string `json:"message"`
	SuggestedFix string `json:"suggested_fix,omitempty"`
}

// Result is the outcome of validating one record.
type Result struct {
	Valid      bool               `json:"valid"`
	Confidence float64            `json:"confidence"`
	Issues     []Issue            `json:"issues"`
	Corrected  *domain.CompRecord `json:"corrected,omitempty"`
}

// Scoring constants. Confidence starts at the ceiling and loses a fixed
// penalty per issue, larger for severer issues, clamped to [0,1]. Adding an
// issue can therefore never raise confidence.
const (
	confidenceCeiling = 0.95
	penaltyCritical   = 0.30
	penaltyModerate   = 0.15
	penaltyLow        = 0.05
)

// Plausibility bounds.
const (
	minAddressLen   = 5
	maxSalePriceUSD = 50_000_000
	minYearBuilt    = 1800
	minBedrooms     = 0
	maxBedrooms     = 20
)

// Record checks a normalized record against the default rule set and scores
// how much the record can be trusted as-is.
func Record(rec *domain.CompRecord) Result {
	var issues []Issue

	if rec.Address == "" {
		issues = append(issues, Issue{
			Field:        "address",
			Severity:     SeverityCritical,
			Kind:         KindError,
			Message:      "address is missing",
			SuggestedFix: "supply the property street address",
		})
	} else if len(rec.Address) < minAddressLen {
		issues = append(issues, Issue{
			Field:    "address",
			Severity: SeverityCritical,
			Kind:     KindError,
			Message:  fmt.Sprintf("address %q is implausibly short", rec.Address),
		})
	}

	switch {
	case rec.SalePriceUSD == nil:
		issues = append(issues, Issue{
			Field:    "sale_price_usd",
			Severity: SeverityCritical,
			Kind:     KindError,
			Message:  "sale price is missing",
		})
	case *rec.SalePriceUSD <= 0:
		issues = append(issues, Issue{
			Field:    "sale_price_usd",
			Severity: SeverityCritical,
			Kind:     KindError,
			Message:  fmt.Sprintf("sale price %.2f is not positive", *rec.SalePriceUSD),
		})
	case *rec.SalePriceUSD > maxSalePriceUSD:
		issues = append(issues, Issue{
			Field:    "sale_price_usd",
			Severity: SeverityCritical,
			Kind:     KindError,
			Message:  fmt.Sprintf("sale price %.0f exceeds the sane bound", *rec.SalePriceUSD),
		})
	}

	if rec.GLASqft == nil || *rec.GLASqft <= 0 {
		issues = append(issues, Issue{
			Field:    "gla_sqft",
			Severity: SeverityModerate,
			Kind:     KindError,
			Message:  "gross living area is missing or not positive",
		})
	}

	if rec.SaleDate == "" {
		issues = append(issues, Issue{
			Field:    "sale_date",
			Severity: SeverityLow,
			Kind:     KindWarning,
			Message:  "sale date is missing",
		})
	}

	if rec.YearBuilt != nil {
		yr := *rec.YearBuilt
		if yr < minYearBuilt || yr > time.Now().Year()+1 {
			issues = append(issues, Issue{
				Field:    "year_built",
				Severity: SeverityLow,
				Kind:     KindWarning,
				Message:  fmt.Sprintf("year built %d is implausible", yr),
			})
		}
	}

	if rec.Bedrooms != nil && (*rec.Bedrooms < minBedrooms || *rec.Bedrooms > maxBedrooms) {
		issues = append(issues, Issue{
			Field:    "bedrooms",
			Severity: SeverityLow,
			Kind:     KindWarning,
			Message:  fmt.Sprintf("bedroom count %d is implausible", *rec.Bedrooms),
		})
	}

	return Result{
		Valid:      !hasErrors(issues),
		Confidence: Score(issues),
		Issues:     issues,
	}
}

// Score maps a record's issues onto a confidence value in [0,1].
func Score(issues []Issue) float64 {
	confidence := confidenceCeiling
	for _, issue := range issues {
		switch issue.Severity {
		case SeverityCritical:
			confidence -= penaltyCritical
		case SeverityModerate:
			confidence -= penaltyModerate
		default:
			confidence -= penaltyLow
		}
	}
	if confidence < 0 {
		return 0
	}
	return confidence
}

func hasErrors(issues []Issue) bool {
	for _, issue := range issues {
		if issue.Kind == KindError {
			return true
		}
	}
	return false
}
