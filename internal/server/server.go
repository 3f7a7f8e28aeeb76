package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/paysliphq/payslips-backend/internal/common"
	"github.com/paysliphq/payslips-backend/internal/pipeline"
	"github.com/paysliphq/payslips-backend/internal/repository"
	"github.com/paysliphq/payslips-backend/internal/review"
	"github.com/paysliphq/payslips-backend/internal/split"
)

// ExtractionRunner starts extraction for one batch and streams its events.
type ExtractionRunner interface {
	Run(ctx context.Context, batchID uuid.UUID) (<-chan pipeline.Event, error)
}

// Server wires the HTTP API to the services behind it.
type Server struct {
	batches   repository.BatchRepository
	files     repository.FileRepository
	records   repository.RecordRepository
	employees repository.EmployeeRepository
	payrolls  repository.PayrollRepository
	runner    ExtractionRunner
	reviews   *review.Service
	splitter  split.Splitter
	health    func(ctx context.Context) error
	logger    *slog.Logger
}

func NewServer(
	batches repository.BatchRepository,
	files repository.FileRepository,
	records repository.RecordRepository,
	employees repository.EmployeeRepository,
	payrolls repository.PayrollRepository,
	runner ExtractionRunner,
	reviews *review.Service,
	splitter split.Splitter,
	health func(ctx context.Context) error,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if health == nil {
		health = func(context.Context) error { return nil }
	}
	return &Server{
		batches:   batches,
		files:     files,
		records:   records,
		employees: employees,
		payrolls:  payrolls,
		runner:    runner,
		reviews:   reviews,
		splitter:  splitter,
		health:    health,
		logger:    logger,
	}
}

// Router builds the gin engine with all API routes mounted.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealth)

	api := r.Group("/api")
	{
		api.POST("/upload", s.handleUpload)
		api.POST("/extract", s.handleExtract)

		api.POST("/payrolls", s.handleApprove)
		api.POST("/payrolls/approve-all", s.handleApproveAll)
		api.GET("/payrolls", s.handleListPayrolls)
		api.GET("/payrolls/:id", s.handleGetPayroll)

		api.GET("/records", s.handleListRecords)
		api.PATCH("/records/:id", s.handleUpdateRecord)
		api.POST("/records/:id/skip", s.handleSkipRecord)

		api.GET("/employees", s.handleListEmployees)
		api.GET("/employees/:id", s.handleGetEmployee)
	}
	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.health(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// statusFor maps the service error taxonomy to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrCommitConflict), errors.Is(err, common.ErrRecordTerminal):
		return http.StatusConflict
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrInvalidInput), errors.Is(err, common.ErrNoPages):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// abortError answers an error response. Internal details stay in the log,
// never in the response body.
func (s *Server) abortError(c *gin.Context, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusNotFound:
		c.JSON(status, gin.H{"error": "not found"})
	case http.StatusInternalServerError:
		s.logger.Error("http.internal_error", "path", c.FullPath(), "error", err)
		c.JSON(status, gin.H{"error": "internal error"})
	default:
		c.JSON(status, gin.H{"error": err.Error()})
	}
}

func parseID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a UUID"})
		return uuid.Nil, false
	}
	return id, true
}
