package correct

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terrafusion/import-service/internal/domain"
	"github.com/terrafusion/import-service/internal/pipeline/validate"
)

func TestFallback_EmptyRecord(t *testing.T) {
	fb := &Fallback{}

	res, err := fb.Correct(context.Background(), domain.CompRecord{}, nil)
	require.NoError(t, err)
	require.Len(t, res.Corrections, 3)

	byField := make(map[string]Correction, len(res.Corrections))
	for _, c := range res.Corrections {
		assert.Equal(t, SourceFallback, c.Source)
		byField[c.Field] = c
	}

	require.Contains(t, byField, "address")
	assert.Equal(t, placeholderAddress, res.Corrected.Address)
	assert.Equal(t, "", byField["address"].Original)

	// No living area to derive from, so the population-average price applies.
	require.Contains(t, byField, "sale_price_usd")
	require.NotNil(t, res.Corrected.SalePriceUSD)
	assert.Equal(t, averagePriceUSD, *res.Corrected.SalePriceUSD)

	require.Contains(t, byField, "gla_sqft")
	require.NotNil(t, res.Corrected.GLASqft)
	assert.Equal(t, averageGLASqft, *res.Corrected.GLASqft)

	assert.Less(t, res.OverallConfidence, 0.8,
		"guessed values must not look trustworthy")
	assert.Equal(t, domain.CompRecord{}, res.Original)
}

func TestFallback_ZeroValuesCorrectedLikeMissing(t *testing.T) {
	fb := &Fallback{}
	rec := domain.CompRecord{
		Address:      "",
		SalePriceUSD: domain.Float(0),
		GLASqft:      domain.Float(0),
	}

	res, err := fb.Correct(context.Background(), rec, nil)
	require.NoError(t, err)
	require.Len(t, res.Corrections, 3)
	assert.Equal(t, placeholderAddress, res.Corrected.Address)
	assert.Less(t, res.OverallConfidence, 0.8)
}

func TestFallback_DerivesPriceFromLivingArea(t *testing.T) {
	fb := &Fallback{}
	rec := domain.CompRecord{
		Address: "42 Elm St",
		GLASqft: domain.Float(2000),
	}

	res, err := fb.Correct(context.Background(), rec, nil)
	require.NoError(t, err)
	require.Len(t, res.Corrections, 1)

	c := res.Corrections[0]
	assert.Equal(t, "sale_price_usd", c.Field)
	assert.Equal(t, derivedConfidence, c.Confidence)
	require.NotNil(t, res.Corrected.SalePriceUSD)
	assert.Equal(t, 2000*pricePerSqftUSD, *res.Corrected.SalePriceUSD)

	// Untouched fields carry over from the original.
	assert.Equal(t, "42 Elm St", res.Corrected.Address)
	require.NotNil(t, res.Corrected.GLASqft)
	assert.Equal(t, 2000.0, *res.Corrected.GLASqft)
}

func TestFallback_CompleteRecordLeftAlone(t *testing.T) {
	fb := &Fallback{}
	rec := domain.CompRecord{
		Address:      "7 Birch Ln",
		SalePriceUSD: domain.Float(300000),
		GLASqft:      domain.Float(1500),
	}

	res, err := fb.Correct(context.Background(), rec, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Corrections)
	assert.Equal(t, rec, res.Corrected)
	assert.InDelta(t, 0.95, res.OverallConfidence, 0.0001)
}

type stubCorrector struct {
	res *Result
	err error
}

func (s *stubCorrector) Correct(_ context.Context, _ domain.CompRecord, _ []validate.Issue) (*Result, error) {
	return s.res, s.err
}

func TestWithFallback_PrefersPrimary(t *testing.T) {
	want := &Result{
		Corrections: []Correction{{
			Field:      "address",
			Corrected:  "123 Main St",
			Confidence: 0.9,
			Source:     SourceOracle,
		}},
		OverallConfidence: 0.9,
	}
	corrector := WithFallback(&stubCorrector{res: want}, nil)

	res, err := corrector.Correct(context.Background(), domain.CompRecord{}, nil)
	require.NoError(t, err)
	assert.Same(t, want, res)
}

func TestWithFallback_DegradesOnPrimaryError(t *testing.T) {
	corrector := WithFallback(&stubCorrector{err: errors.New("oracle timeout")}, nil)

	res, err := corrector.Correct(context.Background(), domain.CompRecord{}, nil)
	require.NoError(t, err, "degradation must be invisible to the caller")
	require.NotEmpty(t, res.Corrections)
	for _, c := range res.Corrections {
		assert.Equal(t, SourceFallback, c.Source)
	}
}

func TestWithFallback_NilPrimary(t *testing.T) {
	corrector := WithFallback(nil, nil)

	res, err := corrector.Correct(context.Background(), domain.CompRecord{}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, res.Corrections)
	assert.Equal(t, SourceFallback, res.Corrections[0].Source)
}

func TestOverallConfidence(t *testing.T) {
	assert.InDelta(t, 0.95, overallConfidence(nil), 0.0001)
	assert.InDelta(t, 0.5, overallConfidence([]Correction{
		{Confidence: 0.3},
		{Confidence: 0.7},
	}), 0.0001)
}
