package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paysliphq/payslips-backend/constants"
	"github.com/paysliphq/payslips-backend/internal/common"
	"github.com/paysliphq/payslips-backend/internal/entity"
	"github.com/paysliphq/payslips-backend/internal/repository"
	"github.com/paysliphq/payslips-backend/internal/validate"
)

type fakeBatches struct {
	batch        *entity.Batch
	reviewMarked bool
}

func (f *fakeBatches) Create(context.Context, int, int, string) (*entity.Batch, error) {
	panic("not used")
}

func (f *fakeBatches) Get(_ context.Context, id uuid.UUID) (*entity.Batch, error) {
	if f.batch == nil || f.batch.ID != id {
		return nil, common.ErrNotFound
	}
	return f.batch, nil
}

func (f *fakeBatches) MarkReview(context.Context, uuid.UUID) error {
	f.reviewMarked = true
	return nil
}

type fakeFiles struct {
	files []entity.UploadedFile
}

func (f *fakeFiles) Add(context.Context, uuid.UUID, string, string, []byte) (*entity.UploadedFile, error) {
	panic("not used")
}

func (f *fakeFiles) ListByBatch(context.Context, uuid.UUID) ([]entity.UploadedFile, error) {
	return f.files, nil
}

type fakeRecords struct {
	staged []entity.StagedRecord
	err    error
}

func (f *fakeRecords) Stage(_ context.Context, batchID uuid.UUID, rec entity.ExtractionRecord) (*entity.StagedRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	rec.ID = uuid.New()
	s := entity.StagedRecord{
		ID: rec.ID, BatchID: batchID, PageNumber: rec.PageNumber,
		Record: rec, Status: constants.RecordStatusPending, CreatedAt: time.Now(),
	}
	f.staged = append(f.staged, s)
	return &s, nil
}

func (f *fakeRecords) Get(context.Context, uuid.UUID) (*entity.StagedRecord, error) {
	panic("not used")
}
func (f *fakeRecords) ListByBatch(context.Context, uuid.UUID) ([]entity.StagedRecord, error) {
	panic("not used")
}
func (f *fakeRecords) ListPending(context.Context, uuid.UUID) ([]entity.StagedRecord, error) {
	panic("not used")
}
func (f *fakeRecords) UpdatePayload(context.Context, uuid.UUID, entity.ExtractionRecord) error {
	panic("not used")
}
func (f *fakeRecords) MarkSkipped(context.Context, uuid.UUID) error { panic("not used") }
func (f *fakeRecords) PendingCount(context.Context, uuid.UUID) (int, error) {
	panic("not used")
}

type fakePayrolls struct {
	prior *entity.PayrollContext
}

func (f *fakePayrolls) CommitApproval(context.Context, repository.ApprovalRequest) (*repository.ApprovalResult, error) {
	panic("not used")
}
func (f *fakePayrolls) MarkBatchCompletedIfDone(context.Context, uuid.UUID) (bool, error) {
	panic("not used")
}
func (f *fakePayrolls) PriorContext(context.Context, string, int, int) (*entity.PayrollContext, error) {
	return f.prior, nil
}
func (f *fakePayrolls) ListWithEmployee(context.Context, *uuid.UUID) ([]entity.PayrollWithEmployee, error) {
	panic("not used")
}
func (f *fakePayrolls) GetDetail(context.Context, uuid.UUID) (*entity.PayrollDetail, error) {
	panic("not used")
}

// fakeSplitter yields one page per 16-byte chunk so a single file can carry
// several pages without a real PDF.
type fakeSplitter struct {
	failFiles map[string]bool
}

func (f *fakeSplitter) Split(data []byte, fileName, mediaType string) ([]entity.Page, error) {
	if f.failFiles[fileName] {
		return nil, &common.DecodeError{FileName: fileName, Cause: errors.New("bad bytes")}
	}
	n := len(data) / 16
	if n == 0 {
		n = 1
	}
	pages := make([]entity.Page, n)
	for i := range pages {
		pages[i] = entity.Page{Number: i + 1, Data: data, MediaType: mediaType}
	}
	return pages, nil
}

func (f *fakeSplitter) PageCount(data []byte, fileName, mediaType string) (int, error) {
	pages, err := f.Split(data, fileName, mediaType)
	if err != nil {
		return 0, err
	}
	return len(pages), nil
}

type fakeExtractor struct {
	calls     int
	failPages map[int]bool
	blockFrom int // pages >= blockFrom wait for ctx cancellation
}

func (f *fakeExtractor) Extract(ctx context.Context, page entity.Page) (entity.ExtractionRecord, error) {
	f.calls++
	if f.blockFrom > 0 && page.Number >= f.blockFrom {
		<-ctx.Done()
		return entity.ExtractionRecord{}, ctx.Err()
	}
	if f.failPages[page.Number] {
		return entity.ExtractionRecord{}, errors.New("extraction blew up")
	}
	month, year := 6, 2025
	gross := 8000.0
	return entity.ExtractionRecord{
		Employee: entity.EmployeeFields{
			Name:       fmt.Sprintf("Employee %d", page.Number),
			NationalID: "123456782",
		},
		Payroll: entity.PayrollFields{Month: &month, Year: &year, GrossSalary: &gross},
	}, nil
}

type env struct {
	batches   *fakeBatches
	files     *fakeFiles
	records   *fakeRecords
	payrolls  *fakePayrolls
	splitter  *fakeSplitter
	extractor *fakeExtractor
	orch      *Orchestrator
	batchID   uuid.UUID
}

func newEnv(fileSizes ...int) *env {
	batchID := uuid.New()
	e := &env{
		batches:   &fakeBatches{batch: &entity.Batch{ID: batchID, Status: constants.BatchStatusProcessing}},
		files:     &fakeFiles{},
		records:   &fakeRecords{},
		payrolls:  &fakePayrolls{},
		splitter:  &fakeSplitter{failFiles: map[string]bool{}},
		extractor: &fakeExtractor{failPages: map[int]bool{}},
		batchID:   batchID,
	}
	for i, size := range fileSizes {
		e.files.files = append(e.files.files, entity.UploadedFile{
			ID:       uuid.New(),
			BatchID:  batchID,
			FileName: fmt.Sprintf("file-%d.pdf", i+1),
			FileData: make([]byte, size),
			MimeType: constants.MediaTypePDF,
		})
	}
	engine := validate.NewEngine(nil, nil)
	e.orch = NewOrchestrator(e.batches, e.files, e.records, e.payrolls, e.splitter, e.extractor, engine, time.Second, nil)
	return e
}

func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var events []Event
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for events")
		}
	}
}

func TestRunHappyPath(t *testing.T) {
	e := newEnv(32, 16) // 2 pages + 1 page
	ch, err := e.orch.Run(context.Background(), e.batchID)
	require.NoError(t, err)

	events := collect(t, ch)
	require.Len(t, events, 7)

	want := []EventType{
		EventProgress, EventResult,
		EventProgress, EventResult,
		EventProgress, EventResult,
		EventDone,
	}
	for i, ev := range events {
		assert.Equal(t, want[i], ev.Type, "event %d", i)
	}

	// progress is monotonically increasing with a stable total
	assert.Equal(t, 1, events[0].Current)
	assert.Equal(t, 3, events[0].Total)
	assert.Equal(t, 2, events[2].Current)
	assert.Equal(t, 3, events[4].Current)

	// page ordinals are global across files
	assert.Equal(t, 1, events[1].Record.PageNumber)
	assert.Equal(t, 2, events[3].Record.PageNumber)
	assert.Equal(t, 3, events[5].Record.PageNumber)

	assert.Len(t, e.records.staged, 3)
	assert.True(t, e.batches.reviewMarked)
}

func TestRunPageFailureIsolated(t *testing.T) {
	e := newEnv(32)
	e.extractor.failPages[1] = true

	ch, err := e.orch.Run(context.Background(), e.batchID)
	require.NoError(t, err)
	events := collect(t, ch)

	require.Len(t, events, 5)
	assert.Equal(t, EventError, events[1].Type)
	assert.Equal(t, 1, events[1].Page)
	assert.Contains(t, events[1].Error, "extraction blew up")

	// page 2 still processed, batch still reaches review
	assert.Equal(t, EventResult, events[3].Type)
	assert.Equal(t, 2, events[3].Record.PageNumber)
	assert.Equal(t, EventDone, events[4].Type)
	assert.True(t, e.batches.reviewMarked)
	assert.Len(t, e.records.staged, 1)
}

func TestRunFileDecodeFailureIsolated(t *testing.T) {
	e := newEnv(16, 16)
	e.splitter.failFiles["file-1.pdf"] = true

	ch, err := e.orch.Run(context.Background(), e.batchID)
	require.NoError(t, err)
	events := collect(t, ch)

	require.Len(t, events, 4)
	assert.Equal(t, EventError, events[0].Type)
	assert.Contains(t, events[0].Error, "file-1.pdf")

	// surviving file is page 1 of a 1-page total
	assert.Equal(t, EventProgress, events[1].Type)
	assert.Equal(t, 1, events[1].Current)
	assert.Equal(t, 1, events[1].Total)
	assert.Equal(t, EventDone, events[3].Type)
}

func TestRunStagingFailureIsolated(t *testing.T) {
	e := newEnv(16)
	e.records.err = errors.New("connection refused")

	ch, err := e.orch.Run(context.Background(), e.batchID)
	require.NoError(t, err)
	events := collect(t, ch)

	require.Len(t, events, 3)
	assert.Equal(t, EventError, events[1].Type)
	assert.Equal(t, 1, events[1].Page)
	assert.Equal(t, EventDone, events[2].Type)
}

func TestRunNoFiles(t *testing.T) {
	e := newEnv()
	_, err := e.orch.Run(context.Background(), e.batchID)
	assert.ErrorIs(t, err, common.ErrNoPages)
}

func TestRunUnknownBatch(t *testing.T) {
	e := newEnv(16)
	_, err := e.orch.Run(context.Background(), uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRunCancellationStopsPromptly(t *testing.T) {
	e := newEnv(48) // 3 pages
	e.extractor.blockFrom = 2

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := e.orch.Run(ctx, e.batchID)
	require.NoError(t, err)

	var seen []Event
	for ev := range ch {
		seen = append(seen, ev)
		// first page done, second page's call is now blocked: disconnect
		if ev.Type == EventProgress && ev.Current == 2 {
			cancel()
		}
	}

	for _, ev := range seen {
		assert.NotEqual(t, EventDone, ev.Type, "no done event after disconnect")
	}
	assert.False(t, e.batches.reviewMarked, "batch stays processing after disconnect")
	assert.LessOrEqual(t, e.extractor.calls, 2, "no further extraction after cancel")
}
