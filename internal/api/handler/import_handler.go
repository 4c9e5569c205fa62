package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/terrafusion/import-service/internal/api/dto"
	"github.com/terrafusion/import-service/internal/domain"
	"github.com/terrafusion/import-service/internal/pipeline/detect"
)

// CreateImport handles POST /api/v1/imports
// Queues one import job per submitted file and dispatches them to the
// import queue.
func (h *ImportHandler) CreateImport(c *gin.Context) {
	var req dto.CreateImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.Any("error", err))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	files := req.Files
	if len(files) == 0 {
		if req.FilePath == "" || req.FileName == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "file_path and file_name are required",
			})
			return
		}
		files = []dto.ImportFileRequest{{
			FilePath:    req.FilePath,
			FileName:    req.FileName,
			Format:      req.Format,
			AutoCorrect: req.AutoCorrect,
		}}
	}

	// Validate the whole batch before creating any job, so a bad entry can
	// never leave earlier files half-submitted behind a 400.
	formats := make([]domain.Format, len(files))
	for i, f := range files {
		format, ok := domain.ParseFormat(f.Format)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "unsupported format: " + f.Format,
			})
			return
		}
		if _, err := os.Stat(f.FilePath); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "file not found: " + f.FileName,
			})
			return
		}
		formats[i] = format
	}

	jobs := make([]domain.ImportJob, 0, len(files))
	for i, f := range files {
		created := h.manager.Create(req.UserID, f.FileName, f.FilePath, formats[i], f.AutoCorrect)

		if err := h.dispatcher.Dispatch(c.Request.Context(), created.JobID); err != nil {
			h.logger.Error("Failed to dispatch import job",
				slog.String("job_id", created.JobID),
				slog.Any("error", err),
			)
			h.manager.Fail(created.JobID, "failed to dispatch job to import queue")
			// Earlier jobs are already queued; the caller needs to know
			// about them even though the batch did not fully submit.
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to dispatch import job: " + f.FileName,
				"jobs":  jobs,
			})
			return
		}

		h.logger.Info("Import job queued",
			slog.String("job_id", created.JobID),
			slog.String("user_id", req.UserID),
			slog.String("file_name", f.FileName),
		)
		jobs = append(jobs, created)
	}

	c.JSON(http.StatusCreated, dto.CreateImportResponse{Jobs: jobs})
}

// GetImport handles GET /api/v1/imports/:job_id
func (h *ImportHandler) GetImport(c *gin.Context) {
	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	job, err := h.manager.Get(jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get job"})
		return
	}

	c.JSON(http.StatusOK, job)
}

// ListImports handles GET /api/v1/imports?user_id=U
func (h *ImportHandler) ListImports(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs": h.manager.ListByUser(userID),
	})
}

// CancelImport handles DELETE /api/v1/imports/:job_id
// Cancellation is cooperative: a processing job stops at its next record
// boundary, so cancelled=true means requested, not yet stopped.
func (h *ImportHandler) CancelImport(c *gin.Context) {
	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	if _, err := h.manager.Get(jobID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	cancelled := h.manager.Cancel(jobID)
	h.logger.Info("Cancel requested",
		slog.String("job_id", jobID),
		slog.Bool("cancelled", cancelled),
	)

	c.JSON(http.StatusOK, dto.CancelImportResponse{
		JobID:     jobID,
		Cancelled: cancelled,
	})
}

// StreamEvents handles GET /api/v1/imports/:job_id/events
// Streams job events as NDJSON until the job reaches a terminal state or
// the client disconnects.
func (h *ImportHandler) StreamEvents(c *gin.Context) {
	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	sub, err := h.manager.Subscribe(jobID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	defer sub.Close()

	// The server's WriteTimeout covers the whole response; a push stream
	// outlives any sane value, so lift the deadline for this response only.
	if err := http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("Could not clear stream write deadline",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
	}

	c.Writer.Header().Set("Content-Type", "application/x-ndjson")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	enc := json.NewEncoder(c.Writer)
	clientGone := c.Request.Context().Done()

	for {
		select {
		case <-clientGone:
			h.logger.Debug("Event stream client disconnected",
				slog.String("job_id", jobID),
			)
			return

		case ev, open := <-sub.Events():
			if !open {
				// Terminal event delivered; the stream is complete.
				return
			}
			if err := enc.Encode(ev); err != nil {
				h.logger.Debug("Event stream write failed",
					slog.String("job_id", jobID),
					slog.Any("error", err),
				)
				return
			}
			c.Writer.Flush()
		}
	}
}

// GetAudit handles GET /api/v1/imports/:job_id/audit
func (h *ImportHandler) GetAudit(c *gin.Context) {
	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	entries, err := h.auditLog.QueryByJob(c.Request.Context(), jobID)
	if err != nil {
		h.logger.Error("Failed to query audit entries",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to query audit entries"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id":  jobID,
		"entries": entries,
	})
}

// ListFormats handles GET /api/v1/formats
func (h *ImportHandler) ListFormats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"formats": detect.SupportedFormats(),
	})
}

// jobIDParam extracts and validates the job_id path parameter.
func (h *ImportHandler) jobIDParam(c *gin.Context) (string, bool) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return "", false
	}
	return jobID, true
}
