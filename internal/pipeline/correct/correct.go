// Package correct proposes field-level fixes for records that failed
// validation. Two implementations exist behind the Corrector interface: an
// LLM-backed oracle and a deterministic rule-based fallback that can never
// fail. The wrapper in WithFallback degrades silently from one to the other.
package correct

import (
	"context"

	"github.com/terrafusion/import-service/internal/domain"
	"github.com/terrafusion/import-service/internal/pipeline/validate"
)

// Correction sources, recorded on every correction so the audit trail shows
// which path produced it.
const (
	SourceOracle   = "oracle"
	SourceFallback = "fallback"
)

// Correction is one proposed field fix.
type Correction struct {
	Field      string  `json:"field"`
	Original   string  `json:"original"`
	Corrected  string  `json:"corrected"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
	Source     string  `json:"source"`
}

// Result aggregates the original record, the corrected record (original
// merged with accepted corrections), and an overall confidence that is the
// mean of the per-field confidences.
type Result struct {
	Original          domain.CompRecord `json:"original"`
	Corrected         domain.CompRecord `json:"corrected"`
	Corrections       []Correction      `json:"corrections"`
	OverallConfidence float64           `json:"overall_confidence"`
}

// Corrector proposes corrections for a record and the issues found on it.
type Corrector interface {
	Correct(ctx context.Context, rec domain.CompRecord, issues []validate.Issue) (*Result, error)
}

// overallConfidence reduces per-field confidences to a mean. A record that
// needed no corrections keeps a high confidence.
func overallConfidence(corrections []Correction) float64 {
	if len(corrections) == 0 {
		return 0.95
	}
	sum := 0.0
	for _, c := range corrections {
		sum += c.Confidence
	}
	return sum / float64(len(corrections))
}
