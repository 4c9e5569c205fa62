package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/terrafusion/import-service/internal/audit"
	"github.com/terrafusion/import-service/internal/domain"
	"github.com/terrafusion/import-service/internal/pipeline/correct"
	"github.com/terrafusion/import-service/internal/pipeline/detect"
	"github.com/terrafusion/import-service/internal/pipeline/extract"
	"github.com/terrafusion/import-service/internal/pipeline/validate"
)

// ReferenceSink receives validated records as future correction context.
// The oracle client implements it; the fallback has no use for references.
type ReferenceSink interface {
	AddReference(rec domain.CompRecord)
}

// Runner executes one import job end to end: detect, extract, then a
// sequential validate/correct/audit/emit loop per record.
type Runner struct {
	manager   *Manager
	auditLog  audit.Log
	corrector correct.Corrector
	refs      ReferenceSink
	logger    *slog.Logger
}

// NewRunner wires the pipeline stages together. refs may be nil.
func NewRunner(manager *Manager, auditLog audit.Log, corrector correct.Corrector, refs ReferenceSink, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		manager:   manager,
		auditLog:  auditLog,
		corrector: corrector,
		refs:      refs,
		logger:    logger,
	}
}

// Run processes a queued job to a terminal state. The returned error is for
// the dispatch layer's requeue decision; the job's own outcome is recorded
// on the job itself.
func (r *Runner) Run(ctx context.Context, jobID string) error {
	job, jobCtx, err := r.manager.StartProcessing(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to start job %s: %w", jobID, err)
	}

	data, err := os.ReadFile(job.FilePath)
	if err != nil {
		r.manager.Fail(jobID, fmt.Sprintf("failed to read source file: %v", err))
		return nil
	}

	format := job.Format
	if format == "" || format == domain.FormatUnknown {
		format = detect.Detect(job.FileName, head(data))
	}
	if format == domain.FormatUnknown {
		r.manager.Fail(jobID, fmt.Sprintf("unsupported file format for %q", job.FileName))
		return nil
	}
	r.manager.SetDetectedFormat(jobID, format)

	extractor, err := extract.ForFormat(format)
	if err != nil {
		r.manager.Fail(jobID, err.Error())
		return nil
	}

	result, err := extractor.Extract(jobCtx, extract.Input{
		FileName: job.FileName,
		Path:     job.FilePath,
		Data:     data,
	})
	if err != nil {
		if jobCtx.Err() != nil && !errors.Is(err, context.DeadlineExceeded) {
			r.manager.FinishCancelled(jobID)
			return nil
		}
		r.manager.Fail(jobID, fmt.Sprintf("extraction failed: %v", err))
		return nil
	}
	for _, warning := range result.Warnings {
		r.logger.Warn("Extraction warning",
			slog.String("job_id", jobID),
			slog.String("warning", warning),
		)
	}
	for _, extErr := range result.Errors {
		r.logger.Warn("Row-level extraction error",
			slog.String("job_id", jobID),
			slog.String("error", extErr),
		)
	}
	if len(result.Records) == 0 {
		r.manager.Fail(jobID, "no valid property records found in source file")
		return nil
	}

	r.manager.SetTotalRecords(jobID, len(result.Records))

	for i, rec := range result.Records {
		// Cancellation checkpoint: between records, never mid-record.
		select {
		case <-jobCtx.Done():
			r.manager.FinishCancelled(jobID)
			return nil
		default:
		}

		r.processRecord(jobCtx, jobID, i, rec, job.AutoCorrect)
	}

	r.manager.Complete(jobID)
	return nil
}

func (r *Runner) processRecord(ctx context.Context, jobID string, index int, rec domain.CompRecord, autoCorrect bool) {
	res := validate.Record(&rec)

	decision := audit.DecisionValidated
	var payload any = res.Issues

	switch {
	case res.Valid:
		if r.refs != nil {
			r.refs.AddReference(rec)
		}
	case autoCorrect:
		corrected, err := r.corrector.Correct(ctx, rec, res.Issues)
		if err != nil {
			// The degrading wrapper makes this unreachable in practice; a
			// bare oracle without the fallback can still land here.
			r.logger.Error("Correction failed",
				slog.String("job_id", jobID),
				slog.Int("record_index", index),
				slog.Any("error", err),
			)
			decision = audit.DecisionRejected
		} else {
			res.Corrected = &corrected.Corrected
			decision = audit.DecisionCorrected
			payload = corrected.Corrections
		}
	default:
		decision = audit.DecisionRejected
	}

	r.appendAudit(ctx, jobID, index, decision, payload)
	r.manager.RecordProcessed(jobID, index, rec, res)
}

// appendAudit records a decision. Audit failures are logged, never fatal:
// losing one trail entry must not fail an otherwise healthy import.
func (r *Runner) appendAudit(ctx context.Context, jobID string, index int, decision string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = []byte("{}")
	}
	entry := audit.Entry{
		JobID:       jobID,
		RecordIndex: index,
		Decision:    decision,
		Payload:     raw,
	}
	if err := r.auditLog.Append(ctx, entry); err != nil {
		r.logger.Warn("Failed to append audit entry",
			slog.String("job_id", jobID),
			slog.Int("record_index", index),
			slog.Any("error", err),
		)
	}
}

func head(data []byte) []byte {
	if len(data) > 512 {
		return data[:512]
	}
	return data
}
