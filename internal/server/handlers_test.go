package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paysliphq/payslips-backend/constants"
	"github.com/paysliphq/payslips-backend/internal/common"
	"github.com/paysliphq/payslips-backend/internal/entity"
	"github.com/paysliphq/payslips-backend/internal/pipeline"
	"github.com/paysliphq/payslips-backend/internal/repository"
	"github.com/paysliphq/payslips-backend/internal/review"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeStore backs every repository interface the handlers touch.
type fakeStore struct {
	batches     map[uuid.UUID]*entity.Batch
	files       map[uuid.UUID][]entity.UploadedFile
	records     map[uuid.UUID]*entity.StagedRecord
	order       []uuid.UUID
	payrollKeys map[string]bool
	employees   []entity.EmployeeListItem
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		batches:     map[uuid.UUID]*entity.Batch{},
		files:       map[uuid.UUID][]entity.UploadedFile{},
		records:     map[uuid.UUID]*entity.StagedRecord{},
		payrollKeys: map[string]bool{},
	}
}

func (f *fakeStore) addRecord(batchID uuid.UUID, rec entity.ExtractionRecord) *entity.StagedRecord {
	rec.ID = uuid.New()
	s := &entity.StagedRecord{
		ID: rec.ID, BatchID: batchID, PageNumber: rec.PageNumber,
		Record: rec, Status: constants.RecordStatusPending, CreatedAt: time.Now(),
	}
	f.records[s.ID] = s
	f.order = append(f.order, s.ID)
	if _, ok := f.batches[batchID]; !ok {
		f.batches[batchID] = &entity.Batch{ID: batchID, Status: constants.BatchStatusReview}
	}
	return s
}

func (f *fakeStore) Create(_ context.Context, month, year int, fileName string) (*entity.Batch, error) {
	b := &entity.Batch{ID: uuid.New(), Month: month, Year: year, FileName: fileName,
		Status: constants.BatchStatusProcessing, UploadedAt: time.Now()}
	f.batches[b.ID] = b
	return b, nil
}

func (f *fakeStore) Get(_ context.Context, id uuid.UUID) (*entity.Batch, error) {
	b, ok := f.batches[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return b, nil
}

func (f *fakeStore) MarkReview(_ context.Context, id uuid.UUID) error {
	if b, ok := f.batches[id]; ok && b.Status == constants.BatchStatusProcessing {
		b.Status = constants.BatchStatusReview
	}
	return nil
}

func (f *fakeStore) Add(_ context.Context, batchID uuid.UUID, fileName, mimeType string, data []byte) (*entity.UploadedFile, error) {
	uf := entity.UploadedFile{ID: uuid.New(), BatchID: batchID, FileName: fileName,
		MimeType: mimeType, FileData: data, CreatedAt: time.Now()}
	f.files[batchID] = append(f.files[batchID], uf)
	return &uf, nil
}

func (f *fakeStore) ListByBatch(_ context.Context, batchID uuid.UUID) ([]entity.UploadedFile, error) {
	return f.files[batchID], nil
}

type fakeRecordRepo struct{ store *fakeStore }

func (r *fakeRecordRepo) Stage(_ context.Context, batchID uuid.UUID, rec entity.ExtractionRecord) (*entity.StagedRecord, error) {
	return r.store.addRecord(batchID, rec), nil
}

func (r *fakeRecordRepo) Get(_ context.Context, id uuid.UUID) (*entity.StagedRecord, error) {
	s, ok := r.store.records[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeRecordRepo) ListByBatch(_ context.Context, batchID uuid.UUID) ([]entity.StagedRecord, error) {
	return r.list(batchID, false), nil
}

func (r *fakeRecordRepo) ListPending(_ context.Context, batchID uuid.UUID) ([]entity.StagedRecord, error) {
	return r.list(batchID, true), nil
}

func (r *fakeRecordRepo) list(batchID uuid.UUID, pendingOnly bool) []entity.StagedRecord {
	var out []entity.StagedRecord
	for _, id := range r.store.order {
		s := r.store.records[id]
		if s.BatchID != batchID {
			continue
		}
		if pendingOnly && s.Status != constants.RecordStatusPending {
			continue
		}
		out = append(out, *s)
	}
	return out
}

func (r *fakeRecordRepo) UpdatePayload(_ context.Context, id uuid.UUID, rec entity.ExtractionRecord) error {
	s, ok := r.store.records[id]
	if !ok {
		return common.ErrNotFound
	}
	if s.Status != constants.RecordStatusPending {
		return common.ErrRecordTerminal
	}
	s.Record = rec
	return nil
}

func (r *fakeRecordRepo) MarkSkipped(_ context.Context, id uuid.UUID) error {
	s, ok := r.store.records[id]
	if !ok {
		return common.ErrNotFound
	}
	if s.Status != constants.RecordStatusPending {
		return common.ErrRecordTerminal
	}
	s.Status = constants.RecordStatusSkipped
	return nil
}

func (r *fakeRecordRepo) PendingCount(_ context.Context, batchID uuid.UUID) (int, error) {
	return len(r.list(batchID, true)), nil
}

type fakeEmployeeRepo struct{ store *fakeStore }

func (r *fakeEmployeeRepo) GetByNationalID(context.Context, string) (*entity.Employee, error) {
	return nil, common.ErrNotFound
}

func (r *fakeEmployeeRepo) Get(context.Context, uuid.UUID) (*entity.Employee, error) {
	return nil, common.ErrNotFound
}

func (r *fakeEmployeeRepo) List(_ context.Context, filter repository.EmployeeFilter) ([]entity.EmployeeListItem, error) {
	return r.store.employees, nil
}

type fakePayrollRepo struct{ store *fakeStore }

func (p *fakePayrollRepo) CommitApproval(_ context.Context, req repository.ApprovalRequest) (*repository.ApprovalResult, error) {
	staged, ok := p.store.records[req.RecordID]
	if !ok {
		return nil, common.ErrNotFound
	}
	if staged.Status != constants.RecordStatusPending {
		return nil, common.ErrRecordTerminal
	}
	rec := req.Record
	key := fmt.Sprintf("%s/%d/%d", rec.Employee.NationalID, derefInt(rec.Payroll.Month), derefInt(rec.Payroll.Year))
	if p.store.payrollKeys[key] {
		return nil, common.ErrCommitConflict
	}
	p.store.payrollKeys[key] = true
	staged.Status = constants.RecordStatusApproved
	done, _ := p.MarkBatchCompletedIfDone(context.Background(), req.BatchID)
	return &repository.ApprovalResult{PayrollID: uuid.New(), EmployeeID: uuid.New(), BatchCompleted: done}, nil
}

func (p *fakePayrollRepo) MarkBatchCompletedIfDone(_ context.Context, batchID uuid.UUID) (bool, error) {
	for _, s := range p.store.records {
		if s.BatchID == batchID && s.Status == constants.RecordStatusPending {
			return false, nil
		}
	}
	if b, ok := p.store.batches[batchID]; ok && b.Status == constants.BatchStatusReview {
		b.Status = constants.BatchStatusCompleted
		return true, nil
	}
	return false, nil
}

func (p *fakePayrollRepo) PriorContext(context.Context, string, int, int) (*entity.PayrollContext, error) {
	return nil, nil
}

func (p *fakePayrollRepo) ListWithEmployee(context.Context, *uuid.UUID) ([]entity.PayrollWithEmployee, error) {
	return nil, nil
}

func (p *fakePayrollRepo) GetDetail(context.Context, uuid.UUID) (*entity.PayrollDetail, error) {
	return nil, common.ErrNotFound
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

type fakeRunner struct {
	events []pipeline.Event
	err    error
}

func (f *fakeRunner) Run(_ context.Context, _ uuid.UUID) (<-chan pipeline.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan pipeline.Event, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

type fakePageSplitter struct{}

func (fakePageSplitter) Split(data []byte, fileName, mediaType string) ([]entity.Page, error) {
	if constants.IsPDF(mediaType) && !bytes.HasPrefix(data, []byte("%PDF")) {
		return nil, &common.DecodeError{FileName: fileName, Cause: errors.New("not a pdf")}
	}
	return []entity.Page{{Number: 1, Data: data, MediaType: mediaType}}, nil
}

func (f fakePageSplitter) PageCount(data []byte, fileName, mediaType string) (int, error) {
	pages, err := f.Split(data, fileName, mediaType)
	if err != nil {
		return 0, err
	}
	return len(pages), nil
}

type testEnv struct {
	store  *fakeStore
	runner *fakeRunner
	router *gin.Engine
}

func newTestEnv() *testEnv {
	store := newFakeStore()
	records := &fakeRecordRepo{store}
	payrolls := &fakePayrollRepo{store}
	runner := &fakeRunner{}
	srv := NewServer(
		store, store, records,
		&fakeEmployeeRepo{store}, payrolls,
		runner,
		review.NewService(records, payrolls, nil),
		fakePageSplitter{},
		nil, nil,
	)
	return &testEnv{store: store, runner: runner, router: srv.Router()}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func pendingRecord(store *fakeStore, batchID uuid.UUID, nationalID string, month, year int) *entity.StagedRecord {
	gross := 8000.0
	return store.addRecord(batchID, entity.ExtractionRecord{
		PageNumber: 1,
		Employee:   entity.EmployeeFields{Name: "Dana Levi", NationalID: nationalID},
		Payroll:    entity.PayrollFields{Month: &month, Year: &year, GrossSalary: &gross},
	})
}

func TestHealthz(t *testing.T) {
	e := newTestEnv()
	w := e.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok"`)
}

func TestUpload(t *testing.T) {
	e := newTestEnv()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="files"; filename="june.pdf"`)
	hdr.Set("Content-Type", constants.MediaTypePDF)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 fake"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		BatchID   uuid.UUID `json:"batchId"`
		FileCount int       `json:"fileCount"`
		PageCount int       `json:"pageCount"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.FileCount)
	assert.Equal(t, 1, resp.PageCount)
	assert.Len(t, e.store.files[resp.BatchID], 1)
	assert.Equal(t, constants.BatchStatusProcessing, e.store.batches[resp.BatchID].Status)
}

func TestUploadRejectsUnsupportedMediaType(t *testing.T) {
	e := newTestEnv()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="files"; filename="june.docx"`)
	hdr.Set("Content-Type", "application/msword")
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write([]byte("doc"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unsupported media type")
}

func TestUploadRequiresFiles(t *testing.T) {
	e := newTestEnv()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExtractStreamsNDJSON(t *testing.T) {
	e := newTestEnv()
	rec := entity.ExtractionRecord{Employee: entity.EmployeeFields{Name: "Dana Levi", NationalID: "123456782"}}
	valid := true
	e.runner.events = []pipeline.Event{
		{Type: pipeline.EventProgress, Current: 1, Total: 1},
		{Type: pipeline.EventResult, Record: &rec, Valid: &valid},
		{Type: pipeline.EventDone},
	}

	w := e.do(t, http.MethodPost, "/api/extract", gin.H{"batchId": uuid.New()})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))
	assert.True(t, w.Flushed, "events are flushed as they happen")

	// each line parses on its own, so a consumer can act before EOF
	scanner := bufio.NewScanner(w.Body)
	var events []pipeline.Event
	for scanner.Scan() {
		var ev pipeline.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev), "line %d", len(events)+1)
		events = append(events, ev)
	}
	require.Len(t, events, 3)
	assert.Equal(t, pipeline.EventProgress, events[0].Type)
	assert.Equal(t, pipeline.EventResult, events[1].Type)
	assert.Equal(t, "Dana Levi", events[1].Record.Employee.Name)
	assert.Equal(t, pipeline.EventDone, events[2].Type)
}

func TestExtractUnknownBatch(t *testing.T) {
	e := newTestEnv()
	e.runner.err = common.ErrNotFound
	w := e.do(t, http.MethodPost, "/api/extract", gin.H{"batchId": uuid.New()})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExtractEmptyBatch(t *testing.T) {
	e := newTestEnv()
	e.runner.err = common.ErrNoPages
	w := e.do(t, http.MethodPost, "/api/extract", gin.H{"batchId": uuid.New()})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApprove(t *testing.T) {
	e := newTestEnv()
	batchID := uuid.New()
	staged := pendingRecord(e.store, batchID, "123456782", 6, 2025)

	w := e.do(t, http.MethodPost, "/api/payrolls", gin.H{"batchId": batchID, "recordId": staged.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"payrollId"`)
	assert.Contains(t, w.Body.String(), `"batchCompleted":true`)
	assert.Equal(t, constants.BatchStatusCompleted, e.store.batches[batchID].Status)
}

func TestApproveConflict(t *testing.T) {
	e := newTestEnv()
	batchID := uuid.New()
	first := pendingRecord(e.store, batchID, "123456782", 6, 2025)
	dup := pendingRecord(e.store, batchID, "123456782", 6, 2025)

	w := e.do(t, http.MethodPost, "/api/payrolls", gin.H{"batchId": batchID, "recordId": first.ID})
	require.Equal(t, http.StatusCreated, w.Code)

	w = e.do(t, http.MethodPost, "/api/payrolls", gin.H{"batchId": batchID, "recordId": dup.ID})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, constants.RecordStatusPending, e.store.records[dup.ID].Status)
}

func TestApproveAllEndpoint(t *testing.T) {
	e := newTestEnv()
	batchID := uuid.New()
	pendingRecord(e.store, batchID, "123456782", 6, 2025)
	pendingRecord(e.store, batchID, "987654324", 6, 2025)

	w := e.do(t, http.MethodPost, "/api/payrolls/approve-all", gin.H{"batchId": batchID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"approved":2`)
	assert.Equal(t, constants.BatchStatusCompleted, e.store.batches[batchID].Status)
}

func TestApproveAllReportsPartialProgress(t *testing.T) {
	e := newTestEnv()
	batchID := uuid.New()
	pendingRecord(e.store, batchID, "123456782", 6, 2025)
	pendingRecord(e.store, batchID, "123456782", 6, 2025) // conflicting duplicate

	w := e.do(t, http.MethodPost, "/api/payrolls/approve-all", gin.H{"batchId": batchID})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"approved":1`)
	assert.Contains(t, w.Body.String(), `"failedRecordId"`)
}

func TestPatchRecordNormalizesPayload(t *testing.T) {
	e := newTestEnv()
	staged := pendingRecord(e.store, uuid.New(), "123456782", 6, 2025)

	body := gin.H{
		"employee": gin.H{"name": "Dana Levi", "nationalId": "123456782"},
		"payroll":  gin.H{"month": 6, "year": 2025, "grossSalary": "9,000"},
	}
	w := e.do(t, http.MethodPatch, "/api/records/"+staged.ID.String(), body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	got := e.store.records[staged.ID].Record
	require.NotNil(t, got.Payroll.GrossSalary)
	assert.InDelta(t, 9000.0, *got.Payroll.GrossSalary, 0.001)
}

func TestPatchApprovedRecordConflicts(t *testing.T) {
	e := newTestEnv()
	staged := pendingRecord(e.store, uuid.New(), "123456782", 6, 2025)
	e.store.records[staged.ID].Status = constants.RecordStatusApproved

	body := gin.H{
		"employee": gin.H{"name": "Dana Levi", "nationalId": "123456782"},
		"payroll":  gin.H{"month": 6, "year": 2025},
	}
	w := e.do(t, http.MethodPatch, "/api/records/"+staged.ID.String(), body)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSkipRecord(t *testing.T) {
	e := newTestEnv()
	batchID := uuid.New()
	staged := pendingRecord(e.store, batchID, "123456782", 6, 2025)

	w := e.do(t, http.MethodPost, "/api/records/"+staged.ID.String()+"/skip", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"batchCompleted":true`)
	assert.Equal(t, constants.RecordStatusSkipped, e.store.records[staged.ID].Status)
}

func TestListRecordsRequiresBatchID(t *testing.T) {
	e := newTestEnv()
	w := e.do(t, http.MethodGet, "/api/records", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListRecords(t *testing.T) {
	e := newTestEnv()
	batchID := uuid.New()
	pendingRecord(e.store, batchID, "123456782", 6, 2025)

	w := e.do(t, http.MethodGet, "/api/records?batchId="+batchID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var records []entity.StagedRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	assert.Len(t, records, 1)
}

func TestListEmployeesEmpty(t *testing.T) {
	e := newTestEnv()
	w := e.do(t, http.MethodGet, "/api/employees", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())
}
