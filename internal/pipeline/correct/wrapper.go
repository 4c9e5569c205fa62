package correct

import (
	"context"
	"log/slog"

	"github.com/terrafusion/import-service/internal/domain"
	"github.com/terrafusion/import-service/internal/pipeline/validate"
)

// degrading runs the primary oracle and falls back to the deterministic
// rules when it errors or times out. Degradation is policy, not an error:
// the caller only sees a well-formed result, and the Source tag on each
// correction records which path produced it.
type degrading struct {
	primary  Corrector
	fallback *Fallback
	logger   *slog.Logger
}

// WithFallback wraps a primary corrector with the deterministic fallback.
// A nil primary means the fallback is the only path.
func WithFallback(primary Corrector, logger *slog.Logger) Corrector {
	if logger == nil {
		logger = slog.Default()
	}
	return &degrading{primary: primary, fallback: &Fallback{}, logger: logger}
}

func (d *degrading) Correct(ctx context.Context, rec domain.CompRecord, issues []validate.Issue) (*Result, error) {
	if d.primary != nil {
		res, err := d.primary.Correct(ctx, rec, issues)
		if err == nil {
			return res, nil
		}
		d.logger.Warn("Correction oracle unavailable, using rule-based fallback",
			slog.Any("error", err),
		)
	}
	return d.fallback.Correct(ctx, rec, issues)
}
