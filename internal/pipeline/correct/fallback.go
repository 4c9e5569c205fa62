package correct

import (
	"context"
	"fmt"

	"github.com/terrafusion/import-service/internal/domain"
	"github.com/terrafusion/import-service/internal/pipeline/validate"
)

// Fixed heuristics for the rule-based path. The flat rate and population
// average come from the legacy correction rules this replaces.
const (
	placeholderAddress = "Unknown Address (Needs Review)"
	pricePerSqftUSD    = 150.0
	averagePriceUSD    = 350_000.0
	averageGLASqft     = 1_800.0

	addressConfidence  = 0.30
	derivedConfidence  = 0.50
	averagedConfidence = 0.30
	glaConfidence      = 0.40
)

// Fallback is the deterministic correction path used whenever the oracle is
// unavailable. It is the availability backstop: it never returns an error
// and always produces a well-formed result.
type Fallback struct{}

func (f *Fallback) Correct(_ context.Context, rec domain.CompRecord, _ []validate.Issue) (*Result, error) {
	corrected := rec
	var corrections []Correction

	if rec.Address == "" {
		corrected.Address = placeholderAddress
		corrections = append(corrections, Correction{
			Field:      "address",
			Original:   "",
			Corrected:  placeholderAddress,
			Confidence: addressConfidence,
			Reasoning:  "address missing; placeholder inserted for manual review",
			Source:     SourceFallback,
		})
	}

	if rec.SalePriceUSD == nil || *rec.SalePriceUSD <= 0 {
		var price float64
		var reasoning string
		var confidence float64
		if rec.GLASqft != nil && *rec.GLASqft > 0 {
			price = *rec.GLASqft * pricePerSqftUSD
			reasoning = fmt.Sprintf("estimated from living area at $%.0f/sqft", pricePerSqftUSD)
			confidence = derivedConfidence
		} else {
			price = averagePriceUSD
			reasoning = "no living area available; population-average price applied"
			confidence = averagedConfidence
		}
		corrected.SalePriceUSD = domain.Float(price)
		corrections = append(corrections, Correction{
			Field:      "sale_price_usd",
			Original:   formatOptionalFloat(rec.SalePriceUSD),
			Corrected:  fmt.Sprintf("%.0f", price),
			Confidence: confidence,
			Reasoning:  reasoning,
			Source:     SourceFallback,
		})
	}

	if rec.GLASqft == nil || *rec.GLASqft <= 0 {
		corrected.GLASqft = domain.Float(averageGLASqft)
		corrections = append(corrections, Correction{
			Field:      "gla_sqft",
			Original:   formatOptionalFloat(rec.GLASqft),
			Corrected:  fmt.Sprintf("%.0f", averageGLASqft),
			Confidence: glaConfidence,
			Reasoning:  "living area missing; population-average applied",
			Source:     SourceFallback,
		})
	}

	return &Result{
		Original:          rec,
		Corrected:         corrected,
		Corrections:       corrections,
		OverallConfidence: overallConfidence(corrections),
	}, nil
}

func formatOptionalFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%g", *v)
}
