package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/paysliphq/payslips-backend/internal/entity"
)

func (s *Server) handleListRecords(c *gin.Context) {
	batchID, err := uuid.Parse(c.Query("batchId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "batchId query parameter must be a UUID"})
		return
	}

	records, err := s.records.ListByBatch(c.Request.Context(), batchID)
	if err != nil {
		s.abortError(c, err)
		return
	}
	if records == nil {
		records = []entity.StagedRecord{}
	}
	c.JSON(http.StatusOK, records)
}

// handleUpdateRecord applies a reviewer's edit to a pending record. The body
// is the full record payload; it goes through the same normalization and
// schema check as model output.
func (s *Server) handleUpdateRecord(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body required"})
		return
	}

	updated, err := s.reviews.Update(c.Request.Context(), id, raw)
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleSkipRecord(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	completed, err := s.reviews.Skip(c.Request.Context(), id)
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"batchCompleted": completed})
}
