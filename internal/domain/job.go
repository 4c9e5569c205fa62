package domain

import "time"

// Job status constants
const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
	JobStatusCancelled  = "cancelled"
)

// Format identifies a detected source file format.
type Format string

const (
	FormatEmbeddedDB    Format = "embedded-db"
	FormatDelimitedText Format = "delimited-text"
	FormatMarkup        Format = "structured-markup"
	FormatArchive       Format = "archive"
	FormatSQLScript     Format = "sql-script"
	FormatUnknown       Format = "unknown"
)

// ParseFormat maps a client-supplied format label to a Format. Empty input
// means "detect from the file"; anything unrecognized is FormatUnknown.
func ParseFormat(s string) (Format, bool) {
	switch Format(s) {
	case FormatEmbeddedDB, FormatDelimitedText, FormatMarkup, FormatArchive, FormatSQLScript:
		return Format(s), true
	case "":
		return FormatUnknown, true
	}
	return FormatUnknown, false
}

// Progress holds the per-job record counters.
type Progress struct {
	TotalRecords     int `json:"total_records"`
	ProcessedRecords int `json:"processed_records"`
	ValidRecords     int `json:"valid_records"`
	InvalidRecords   int `json:"invalid_records"`
}

// ImportJob is the unit of work tracked by the job manager. It is owned
// exclusively by the manager; callers only ever see copies.
type ImportJob struct {
	JobID        string     `json:"job_id"`
	UserID       string     `json:"user_id"`
	FileName     string     `json:"file_name"`
	FilePath     string     `json:"-"`
	Format       Format     `json:"format"`
	Status       string     `json:"status"`
	Progress     Progress   `json:"progress"`
	AutoCorrect  bool       `json:"auto_correct"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// IsTerminal reports whether the job status permits no further transitions.
func (j *ImportJob) IsTerminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}
