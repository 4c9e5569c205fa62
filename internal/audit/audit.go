// Package audit records every validation and correction decision made
// during an import job. Entries are append-only: no update or delete
// operation exists, so the trail can always reconstruct why a record was
// accepted, changed, or rejected.
package audit

import (
	"context"
	"encoding/json"
	"time"
)

// Decision kinds.
const (
	DecisionValidated = "validated"
	DecisionCorrected = "corrected"
	DecisionRejected  = "rejected"
)

// Entry is one immutable audit record.
type Entry struct {
	ID          string          `json:"id" db:"id"`
	JobID       string          `json:"job_id" db:"job_id"`
	RecordIndex int             `json:"record_index" db:"record_index"`
	Decision    string          `json:"decision" db:"decision"`
	Payload     json.RawMessage `json:"payload" db:"payload"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// Log is the append-only sink with a query interface.
type Log interface {
	Append(ctx context.Context, entry Entry) error
	QueryByJob(ctx context.Context, jobID string) ([]Entry, error)
}
