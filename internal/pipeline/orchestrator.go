package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/paysliphq/payslips-backend/internal/common"
	"github.com/paysliphq/payslips-backend/internal/entity"
	"github.com/paysliphq/payslips-backend/internal/llm"
	"github.com/paysliphq/payslips-backend/internal/repository"
	"github.com/paysliphq/payslips-backend/internal/split"
	"github.com/paysliphq/payslips-backend/internal/validate"
)

// eventBuffer bounds the producer/consumer queue between the orchestrator
// and the streaming transport.
const eventBuffer = 8

// Orchestrator drives per-batch extraction: page enumeration up front,
// then sequential extract+validate+stage per page with ordered events.
// One bad page never aborts the batch.
type Orchestrator struct {
	batches   repository.BatchRepository
	files     repository.FileRepository
	records   repository.RecordRepository
	payrolls  repository.PayrollRepository
	splitter  split.Splitter
	extractor llm.Extractor
	engine    *validate.Engine

	callTimeout time.Duration
	logger      *slog.Logger
}

func NewOrchestrator(
	batches repository.BatchRepository,
	files repository.FileRepository,
	records repository.RecordRepository,
	payrolls repository.PayrollRepository,
	splitter split.Splitter,
	extractor llm.Extractor,
	engine *validate.Engine,
	callTimeout time.Duration,
	logger *slog.Logger,
) *Orchestrator {
	if callTimeout <= 0 {
		callTimeout = 90 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		batches:     batches,
		files:       files,
		records:     records,
		payrolls:    payrolls,
		splitter:    splitter,
		extractor:   extractor,
		engine:      engine,
		callTimeout: callTimeout,
		logger:      logger,
	}
}

type fileFailure struct {
	fileName string
	err      error
}

// Run enumerates the batch's pages and streams extraction events over the
// returned channel. The channel is closed after the done event, or early
// when ctx is canceled; cancellation is checked between pages, never
// mid-call. Run returns an error synchronously when the batch cannot be
// processed at all.
func (o *Orchestrator) Run(ctx context.Context, batchID uuid.UUID) (<-chan Event, error) {
	if _, err := o.batches.Get(ctx, batchID); err != nil {
		return nil, err
	}

	uploaded, err := o.files.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if len(uploaded) == 0 {
		return nil, common.ErrNoPages
	}

	// Split everything up front so total progress is known before the
	// first extraction call. A file that fails to decode contributes an
	// error event and zero pages; the rest of the batch proceeds.
	var (
		pages    []entity.Page
		failures []fileFailure
	)
	for _, f := range uploaded {
		filePages, err := o.splitter.Split(f.FileData, f.FileName, f.MimeType)
		if err != nil {
			o.logger.Warn("pipeline.file_failed", "batch_id", batchID, "file", f.FileName, "error", err)
			failures = append(failures, fileFailure{fileName: f.FileName, err: err})
			continue
		}
		for _, p := range filePages {
			p.Number = len(pages) + 1 // global ordinal across all files
			pages = append(pages, p)
		}
	}

	o.logger.Info("pipeline.start",
		"batch_id", batchID,
		"files", len(uploaded),
		"pages", len(pages),
		"failed_files", len(failures),
	)

	ch := make(chan Event, eventBuffer)
	go o.produce(ctx, batchID, pages, failures, ch)
	return ch, nil
}

func (o *Orchestrator) produce(ctx context.Context, batchID uuid.UUID, pages []entity.Page, failures []fileFailure, ch chan<- Event) {
	defer close(ch)

	send := func(ev Event) bool {
		select {
		case ch <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for _, f := range failures {
		if !send(errorEvent(0, fmt.Sprintf("file %s: %v", f.fileName, f.err))) {
			return
		}
	}

	total := len(pages)
	for _, page := range pages {
		// cooperative cancellation between pages
		if ctx.Err() != nil {
			o.logger.Info("pipeline.canceled", "batch_id", batchID, "page", page.Number)
			return
		}
		if !send(progressEvent(page.Number, total)) {
			return
		}

		staged, issues, valid, err := o.processPage(ctx, batchID, page)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !send(errorEvent(page.Number, err.Error())) {
				return
			}
			continue
		}
		if !send(resultEvent(&staged.Record, issues, valid)) {
			return
		}
	}

	if err := o.batches.MarkReview(ctx, batchID); err != nil {
		o.logger.Error("pipeline.mark_review_failed", "batch_id", batchID, "error", err)
	}
	o.logger.Info("pipeline.done", "batch_id", batchID, "pages", total)
	send(Event{Type: EventDone})
}

func (o *Orchestrator) processPage(ctx context.Context, batchID uuid.UUID, page entity.Page) (*entity.StagedRecord, []entity.ValidationIssue, bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	rec, err := o.extractor.Extract(callCtx, page)
	cancel()
	if err != nil {
		return nil, nil, false, &common.ExtractionError{Page: page.Number, Cause: err}
	}
	rec.PageNumber = page.Number

	res := o.validateRecord(ctx, rec)

	staged, err := o.records.Stage(ctx, batchID, rec)
	if err != nil {
		return nil, nil, false, &common.ExtractionError{Page: page.Number, Cause: err}
	}
	return staged, res.Issues, res.IsValid, nil
}

func (o *Orchestrator) validateRecord(ctx context.Context, rec entity.ExtractionRecord) validate.Result {
	// prior-month context is best effort; validation proceeds without it
	var prior *entity.PayrollContext
	if rec.Employee.NationalID != "" && rec.Payroll.Month != nil && rec.Payroll.Year != nil {
		var err error
		prior, err = o.payrolls.PriorContext(ctx, rec.Employee.NationalID, *rec.Payroll.Month, *rec.Payroll.Year)
		if err != nil {
			o.logger.Warn("pipeline.prior_context_failed", "national_id", rec.Employee.NationalID, "error", err)
			prior = nil
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()
	return o.engine.Validate(callCtx, rec, prior)
}
