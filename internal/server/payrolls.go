package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/paysliphq/payslips-backend/internal/entity"
)

type approveRequest struct {
	BatchID  uuid.UUID                `json:"batchId" binding:"required"`
	RecordID uuid.UUID                `json:"recordId" binding:"required"`
	Record   *entity.ExtractionRecord `json:"record"`
}

// handleApprove commits one reviewed record as a payroll. A duplicate
// (employee, month, year) payroll answers 409 and the record stays pending.
func (s *Server) handleApprove(c *gin.Context) {
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "batchId and recordId are required"})
		return
	}

	res, err := s.reviews.Approve(c.Request.Context(), req.BatchID, req.RecordID, req.Record)
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"payrollId":      res.PayrollID,
		"employeeId":     res.EmployeeID,
		"batchCompleted": res.BatchCompleted,
	})
}

type approveAllRequest struct {
	BatchID uuid.UUID `json:"batchId" binding:"required"`
}

// handleApproveAll approves every pending record of a batch in order. On a
// mid-batch failure the response carries how far it got; earlier commits
// stay.
func (s *Server) handleApproveAll(c *gin.Context) {
	var req approveAllRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "batchId is required"})
		return
	}

	res, err := s.reviews.ApproveAll(c.Request.Context(), req.BatchID)
	if err != nil {
		if res != nil {
			c.JSON(statusFor(err), res)
			return
		}
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleListPayrolls(c *gin.Context) {
	var employeeID *uuid.UUID
	if raw := c.Query("employeeId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "employeeId must be a UUID"})
			return
		}
		employeeID = &id
	}

	payrolls, err := s.payrolls.ListWithEmployee(c.Request.Context(), employeeID)
	if err != nil {
		s.abortError(c, err)
		return
	}
	if payrolls == nil {
		payrolls = []entity.PayrollWithEmployee{}
	}
	c.JSON(http.StatusOK, payrolls)
}

func (s *Server) handleGetPayroll(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	detail, err := s.payrolls.GetDetail(c.Request.Context(), id)
	if err != nil {
		s.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}
