package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PostgresLog persists audit entries through sqlx. Schema:
//
//	CREATE TABLE audit_entries (
//	    id           UUID PRIMARY KEY,
//	    job_id       UUID NOT NULL,
//	    record_index INT NOT NULL,
//	    decision     TEXT NOT NULL,
//	    payload      JSONB,
//	    created_at   TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX audit_entries_job_id_idx ON audit_entries (job_id);
type PostgresLog struct {
	db *sqlx.DB
}

// NewPostgresLog creates the database-backed audit log.
func NewPostgresLog(db *sqlx.DB) *PostgresLog {
	return &PostgresLog{db: db}
}

func (l *PostgresLog) Append(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_entries (id, job_id, record_index, decision, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := l.db.ExecContext(ctx, query,
		entry.ID,
		entry.JobID,
		entry.RecordIndex,
		entry.Decision,
		[]byte(entry.Payload),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// EnsureSchema creates the audit table if it does not exist yet.
func (l *PostgresLog) EnsureSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS audit_entries (
			id           UUID PRIMARY KEY,
			job_id       UUID NOT NULL,
			record_index INT NOT NULL,
			decision     TEXT NOT NULL,
			payload      JSONB,
			created_at   TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS audit_entries_job_id_idx ON audit_entries (job_id);
	`
	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure audit schema: %w", err)
	}
	return nil
}

func (l *PostgresLog) QueryByJob(ctx context.Context, jobID string) ([]Entry, error) {
	query := `
		SELECT id, job_id, record_index, decision, payload, created_at
		FROM audit_entries
		WHERE job_id = $1
		ORDER BY created_at, record_index
	`
	var entries []Entry
	if err := l.db.SelectContext(ctx, &entries, query, jobID); err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	return entries, nil
}
