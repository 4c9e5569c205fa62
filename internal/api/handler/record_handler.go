package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/terrafusion/import-service/internal/api/dto"
	"github.com/terrafusion/import-service/internal/pipeline/validate"
)

// ValidateRecords handles POST /api/v1/records/validate
// Accepts a single record or a batch and returns per-record results plus a
// valid/invalid summary.
func (h *RecordHandler) ValidateRecords(c *gin.Context) {
	var req dto.ValidateRecordsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	records := req.Records
	if req.Record != nil {
		records = append(records, *req.Record)
	}
	if len(records) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "record or records is required",
		})
		return
	}

	resp := dto.ValidateRecordsResponse{
		Results: make([]dto.RecordValidation, 0, len(records)),
	}
	for _, rec := range records {
		result := validate.Record(&rec)
		if result.Valid {
			resp.Valid++
		} else {
			resp.Invalid++
		}
		resp.Results = append(resp.Results, dto.RecordValidation{
			Record: rec,
			Result: result,
		})
	}

	c.JSON(http.StatusOK, resp)
}

// CorrectRecord handles POST /api/v1/records/correct
// Validates the record and runs the correction pipeline on its issues.
func (h *RecordHandler) CorrectRecord(c *gin.Context) {
	var req dto.CorrectRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	result := validate.Record(&req.Record)
	if result.Valid {
		c.JSON(http.StatusOK, gin.H{
			"corrected":   req.Record,
			"corrections": []struct{}{},
			"validation":  result,
		})
		return
	}

	correction, err := h.corrector.Correct(c.Request.Context(), req.Record, result.Issues)
	if err != nil {
		h.logger.Error("Record correction failed", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to correct record",
		})
		return
	}

	c.JSON(http.StatusOK, correction)
}
