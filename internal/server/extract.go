package server

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type extractRequest struct {
	BatchID uuid.UUID `json:"batchId" binding:"required"`
}

// handleExtract runs extraction for one batch and streams its events as
// newline-delimited JSON, one object per line, flushed per event so the
// consumer can render progress incrementally. A client disconnect cancels
// the request context and the orchestrator stops between pages.
func (s *Server) handleExtract(c *gin.Context) {
	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "batchId is required"})
		return
	}

	events, err := s.runner.Run(c.Request.Context(), req.BatchID)
	if err != nil {
		s.abortError(c, err)
		return
	}

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)

	enc := json.NewEncoder(c.Writer)
	flusher, _ := c.Writer.(http.Flusher)
	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			// client went away; drain so the producer can observe
			// cancellation and exit
			s.logger.Info("extract.stream_closed", "batch_id", req.BatchID, "error", err)
			for range events {
			}
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}
