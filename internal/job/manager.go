// Package job owns the lifecycle of import jobs: creation, state
// transitions, progress counters, cancellation, and the worker pool that
// drives files through the extraction pipeline.
package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/terrafusion/import-service/internal/domain"
	"github.com/terrafusion/import-service/internal/event"
	"github.com/terrafusion/import-service/internal/pipeline/validate"
)

// trackedJob pairs the job record with its execution handle. All mutation
// happens under the manager's lock so no reader ever observes a half-updated
// counter set.
type trackedJob struct {
	job             domain.ImportJob
	cancelRequested bool
	cancel          context.CancelFunc
}

// Manager is the single per-process job registry. It is constructed once at
// the composition root and injected everywhere a job needs to be read or
// moved through its lifecycle.
type Manager struct {
	mu   sync.RWMutex
	jobs map[string]*trackedJob

	bus           *event.Bus
	logger        *slog.Logger
	progressEvery int
}

// NewManager creates a job manager publishing to the given bus.
// progressEvery controls how often job_progress events are emitted (every
// N-th record).
func NewManager(bus *event.Bus, progressEvery int, logger *slog.Logger) *Manager {
	if progressEvery <= 0 {
		progressEvery = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		jobs:          make(map[string]*trackedJob),
		bus:           bus,
		logger:        logger,
		progressEvery: progressEvery,
	}
}

// Create registers a new queued job and returns its snapshot.
func (m *Manager) Create(userID, fileName, filePath string, format domain.Format, autoCorrect bool) domain.ImportJob {
	j := domain.ImportJob{
		JobID:       uuid.New().String(),
		UserID:      userID,
		FileName:    fileName,
		FilePath:    filePath,
		Format:      format,
		Status:      domain.JobStatusQueued,
		AutoCorrect: autoCorrect,
		CreatedAt:   time.Now().UTC(),
	}

	m.mu.Lock()
	m.jobs[j.JobID] = &trackedJob{job: j}
	m.mu.Unlock()

	m.logger.Info("Import job created",
		slog.String("job_id", j.JobID),
		slog.String("user_id", userID),
		slog.String("file_name", fileName),
	)
	return j
}

// Get returns a snapshot of one job.
func (m *Manager) Get(jobID string) (domain.ImportJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.jobs[jobID]
	if !ok {
		return domain.ImportJob{}, domain.ErrJobNotFound
	}
	return t.job, nil
}

// ListByUser returns snapshots of every job owned by a user.
func (m *Manager) ListByUser(userID string) []domain.ImportJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.ImportJob
	for _, t := range m.jobs {
		if t.job.UserID == userID {
			out = append(out, t.job)
		}
	}
	return out
}

// Cancel requests cancellation. A queued job is cancelled immediately; a
// processing job is cancelled at the runner's next between-records
// checkpoint. Returns false when the job is missing or already terminal.
func (m *Manager) Cancel(jobID string) bool {
	m.mu.Lock()
	t, ok := m.jobs[jobID]
	if !ok || t.job.IsTerminal() {
		m.mu.Unlock()
		return false
	}

	if t.job.Status == domain.JobStatusQueued {
		m.finishLocked(t, domain.JobStatusCancelled, "")
		ev := event.New(event.TypeJobCancelled, jobID, t.job)
		m.mu.Unlock()
		m.bus.Publish(ev)
		return true
	}

	t.cancelRequested = true
	if t.cancel != nil {
		t.cancel()
	}
	m.mu.Unlock()

	m.logger.Info("Job cancellation requested",
		slog.String("job_id", jobID),
	)
	return true
}

// StartProcessing transitions a queued job to processing and returns a
// per-job context whose cancellation is wired to Cancel.
func (m *Manager) StartProcessing(ctx context.Context, jobID string) (domain.ImportJob, context.Context, error) {
	m.mu.Lock()
	t, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		return domain.ImportJob{}, nil, domain.ErrJobNotFound
	}
	if t.job.Status != domain.JobStatusQueued {
		m.mu.Unlock()
		return domain.ImportJob{}, nil, domain.ErrJobTerminal
	}

	jobCtx, cancel := context.WithCancel(ctx)
	t.job.Status = domain.JobStatusProcessing
	t.cancel = cancel
	if t.cancelRequested {
		cancel()
	}
	snapshot := t.job
	m.mu.Unlock()

	m.logger.Info("Job processing started",
		slog.String("job_id", jobID),
		slog.String("file_name", snapshot.FileName),
	)
	return snapshot, jobCtx, nil
}

// SetDetectedFormat records the detector's verdict on the job.
func (m *Manager) SetDetectedFormat(jobID string, format domain.Format) {
	m.mu.Lock()
	if t, ok := m.jobs[jobID]; ok {
		t.job.Format = format
	}
	m.mu.Unlock()
}

// SetTotalRecords publishes the extraction's record count before per-record
// processing begins.
func (m *Manager) SetTotalRecords(jobID string, total int) {
	m.mu.Lock()
	t, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		return
	}
	t.job.Progress.TotalRecords = total
	snapshot := t.job
	m.mu.Unlock()

	m.bus.Publish(event.New(event.TypeJobProgress, jobID, snapshot.Progress))
}

// RecordProcessed publishes one record's outcome and advances the counters.
// Counter mutation and event emission stay in processing order because the
// runner calls this sequentially per job.
func (m *Manager) RecordProcessed(jobID string, index int, rec domain.CompRecord, res validate.Result) {
	m.mu.Lock()
	t, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		return
	}
	t.job.Progress.ProcessedRecords++
	if res.Valid {
		t.job.Progress.ValidRecords++
	} else {
		t.job.Progress.InvalidRecords++
	}
	progress := t.job.Progress
	m.mu.Unlock()

	m.bus.Publish(event.New(event.TypeRecordProcessed, jobID, RecordOutcome{
		Index:      index,
		Record:     rec,
		Validation: res,
	}))
	if progress.ProcessedRecords%m.progressEvery == 0 {
		m.bus.Publish(event.New(event.TypeJobProgress, jobID, progress))
	}
}

// RecordOutcome is the payload of a record_processed event.
type RecordOutcome struct {
	Index      int               `json:"index"`
	Record     domain.CompRecord `json:"record"`
	Validation validate.Result   `json:"validation"`
}

// Complete freezes the counters and ends the job successfully. Record-level
// invalidity is data, not job failure.
func (m *Manager) Complete(jobID string) {
	m.finish(jobID, domain.JobStatusCompleted, "", event.TypeJobCompleted)
}

// Fail ends the job with a human-readable error message. Counters retain
// their partial values as of the failure.
func (m *Manager) Fail(jobID, message string) {
	m.finish(jobID, domain.JobStatusFailed, message, event.TypeJobFailed)
}

// FinishCancelled completes a cancellation observed by the runner. Already
// processed records keep their side effects.
func (m *Manager) FinishCancelled(jobID string) {
	m.finish(jobID, domain.JobStatusCancelled, "", event.TypeJobCancelled)
}

// CancelRequested reports whether a cancellation is pending for the job.
func (m *Manager) CancelRequested(jobID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.jobs[jobID]
	return ok && t.cancelRequested
}

func (m *Manager) finish(jobID, status, message, eventType string) {
	m.mu.Lock()
	t, ok := m.jobs[jobID]
	if !ok || t.job.IsTerminal() {
		m.mu.Unlock()
		return
	}
	m.finishLocked(t, status, message)
	snapshot := t.job
	m.mu.Unlock()

	m.logger.Info("Job finished",
		slog.String("job_id", jobID),
		slog.String("status", status),
		slog.Int("processed", snapshot.Progress.ProcessedRecords),
		slog.Int("valid", snapshot.Progress.ValidRecords),
		slog.Int("invalid", snapshot.Progress.InvalidRecords),
	)
	m.bus.Publish(event.New(eventType, jobID, snapshot))
}

func (m *Manager) finishLocked(t *trackedJob, status, message string) {
	now := time.Now().UTC()
	t.job.Status = status
	t.job.ErrorMessage = message
	t.job.CompletedAt = &now
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

// Subscribe snapshots a job and registers a streaming subscriber in one
// critical section. Terminal transitions mutate the job under m.mu before
// they publish, so holding the read lock across snapshot and registration
// means a finish can never fall between the two: it is either already in the
// initial events or fanned out to the registered subscriber.
func (m *Manager) Subscribe(jobID string) (*event.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return m.bus.Subscribe(jobID, snapshotEvents(t.job)...), nil
}

// SnapshotEvents builds the initial event sequence for a new subscriber: the
// current snapshot, plus the matching terminal event when the job has
// already finished.
func (m *Manager) SnapshotEvents(jobID string) ([]event.Event, error) {
	m.mu.RLock()
	t, ok := m.jobs[jobID]
	if !ok {
		m.mu.RUnlock()
		return nil, domain.ErrJobNotFound
	}
	snapshot := t.job
	m.mu.RUnlock()

	return snapshotEvents(snapshot), nil
}

func snapshotEvents(snapshot domain.ImportJob) []event.Event {
	events := []event.Event{event.New(event.TypeSnapshot, snapshot.JobID, snapshot)}
	switch snapshot.Status {
	case domain.JobStatusCompleted:
		events = append(events, event.New(event.TypeJobCompleted, snapshot.JobID, snapshot))
	case domain.JobStatusFailed:
		events = append(events, event.New(event.TypeJobFailed, snapshot.JobID, snapshot))
	case domain.JobStatusCancelled:
		events = append(events, event.New(event.TypeJobCancelled, snapshot.JobID, snapshot))
	}
	return events
}
