package dto

import (
	"github.com/terrafusion/import-service/internal/domain"
	"github.com/terrafusion/import-service/internal/pipeline/validate"
)

// ImportFileRequest describes one file to import. The file is already on
// disk; the upload layer in front of this service put it there.
type ImportFileRequest struct {
	FilePath    string `json:"file_path" binding:"required"`
	FileName    string `json:"file_name" binding:"required"`
	Format      string `json:"format"`
	AutoCorrect bool   `json:"auto_correct"`
}

// CreateImportRequest creates one import job, or one per entry in Files.
type CreateImportRequest struct {
	UserID string `json:"user_id" binding:"required"`

	// Single-file fields. Ignored when Files is set.
	FilePath    string `json:"file_path"`
	FileName    string `json:"file_name"`
	Format      string `json:"format"`
	AutoCorrect bool   `json:"auto_correct"`

	Files []ImportFileRequest `json:"files"`
}

// CreateImportResponse returns the queued jobs, one per file.
type CreateImportResponse struct {
	Jobs []domain.ImportJob `json:"jobs"`
}

// CancelImportResponse reports whether the cancel request took effect.
type CancelImportResponse struct {
	JobID     string `json:"job_id"`
	Cancelled bool   `json:"cancelled"`
}

// ValidateRecordsRequest validates one record or a batch.
type ValidateRecordsRequest struct {
	Record  *domain.CompRecord  `json:"record"`
	Records []domain.CompRecord `json:"records"`
}

// RecordValidation pairs a record with its validation result.
type RecordValidation struct {
	Record domain.CompRecord `json:"record"`
	Result validate.Result   `json:"result"`
}

// ValidateRecordsResponse returns per-record results plus a summary.
type ValidateRecordsResponse struct {
	Results []RecordValidation `json:"results"`
	Valid   int                `json:"valid"`
	Invalid int                `json:"invalid"`
}

// CorrectRecordRequest corrects a single invalid record.
type CorrectRecordRequest struct {
	Record domain.CompRecord `json:"record" binding:"required"`
}
