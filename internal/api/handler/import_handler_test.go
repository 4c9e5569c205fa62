package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terrafusion/import-service/internal/audit"
	"github.com/terrafusion/import-service/internal/domain"
	"github.com/terrafusion/import-service/internal/event"
	"github.com/terrafusion/import-service/internal/job"
)

func newTestImportHandler(t *testing.T) (*ImportHandler, *job.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	bus := event.NewBus(time.Hour, 64, nil)
	manager := job.NewManager(bus, 10, nil)
	deps := &Dependencies{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Manager:  manager,
		AuditLog: audit.NewMemoryLog(),
	}
	return NewImportHandler(deps), manager
}

func TestImportHandler_StreamEventsFinishedJob(t *testing.T) {
	h, manager := newTestImportHandler(t)
	j := manager.Create("user-1", "comps.csv", "/tmp/comps.csv", domain.FormatDelimitedText, false)
	manager.Fail(j.JobID, "boom")

	r := gin.New()
	r.GET("/api/v1/imports/:job_id/events", h.StreamEvents)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/imports/"+j.JobID+"/events", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))

	// The stream replays the snapshot, delivers the terminal event, and ends.
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 2)

	var first, last event.Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &last))
	assert.Equal(t, event.TypeSnapshot, first.Type)
	assert.Equal(t, event.TypeJobFailed, last.Type)
}

func TestImportHandler_StreamEventsUnknownJob(t *testing.T) {
	h, _ := newTestImportHandler(t)

	r := gin.New()
	r.GET("/api/v1/imports/:job_id/events", h.StreamEvents)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/imports/6bdcb2cd-98d7-4f0d-9b64-915bd2f8eb1f/events", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestImportHandler_CreateImportValidatesWholeBatchFirst(t *testing.T) {
	h, manager := newTestImportHandler(t)

	dir := t.TempDir()
	good := filepath.Join(dir, "good.csv")
	require.NoError(t, os.WriteFile(good, []byte("address\n1 Main St\n"), 0o644))

	body := fmt.Sprintf(`{
		"user_id": "user-1",
		"files": [
			{"file_path": %q, "file_name": "good.csv"},
			{"file_path": %q, "file_name": "missing.csv"}
		]
	}`, good, filepath.Join(dir, "missing.csv"))

	r := gin.New()
	r.POST("/api/v1/imports", h.CreateImport)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "missing.csv")
	assert.Empty(t, manager.ListByUser("user-1"),
		"an invalid batch entry must not leave earlier entries queued")
}

func TestImportHandler_CreateImportRejectsUnknownFormat(t *testing.T) {
	h, manager := newTestImportHandler(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "comps.csv")
	require.NoError(t, os.WriteFile(path, []byte("address\n1 Main St\n"), 0o644))

	body := fmt.Sprintf(`{
		"user_id": "user-1",
		"file_path": %q,
		"file_name": "comps.csv",
		"format": "spreadsheet"
	}`, path)

	r := gin.New()
	r.POST("/api/v1/imports", h.CreateImport)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, manager.ListByUser("user-1"))
}
