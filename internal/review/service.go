package review

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/paysliphq/payslips-backend/constants"
	"github.com/paysliphq/payslips-backend/internal/common"
	"github.com/paysliphq/payslips-backend/internal/entity"
	"github.com/paysliphq/payslips-backend/internal/llm"
	"github.com/paysliphq/payslips-backend/internal/repository"
)

// Service owns the human review loop: editing staged records, approving
// them into committed payrolls, skipping, and batch completion.
type Service struct {
	records  repository.RecordRepository
	payrolls repository.PayrollRepository
	schema   map[string]any
	logger   *slog.Logger
}

func NewService(records repository.RecordRepository, payrolls repository.PayrollRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		records:  records,
		payrolls: payrolls,
		schema:   llm.BuildPayslipJSONSchema(),
		logger:   logger,
	}
}

// Approve commits one staged record as a payroll. When override is non-nil
// it replaces the staged payload (the reviewer's last edits ride along with
// the approval). The whole commit is one storage transaction; on a duplicate
// (employee, month, year) payroll the record stays pending and
// ErrCommitConflict surfaces.
func (s *Service) Approve(ctx context.Context, batchID, recordID uuid.UUID, override *entity.ExtractionRecord) (*repository.ApprovalResult, error) {
	staged, err := s.records.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if staged.BatchID != batchID {
		return nil, common.WrapError(common.ErrInvalidInput, "record does not belong to batch")
	}
	if staged.Status.Terminal() {
		return nil, common.ErrRecordTerminal
	}

	rec := staged.Record
	if override != nil {
		rec = *override
		rec.ID = staged.ID
		rec.PageNumber = staged.PageNumber
	}

	result, err := s.payrolls.CommitApproval(ctx, repository.ApprovalRequest{
		BatchID:     batchID,
		RecordID:    recordID,
		Record:      rec,
		ExtractedAt: staged.CreatedAt,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("review.approved",
		"batch_id", batchID,
		"record_id", recordID,
		"payroll_id", result.PayrollID,
		"employee_id", result.EmployeeID,
		"batch_completed", result.BatchCompleted,
	)
	return result, nil
}

// ApproveAllResult reports how far a bulk approval got.
type ApproveAllResult struct {
	Approved       int        `json:"approved"`
	BatchCompleted bool       `json:"batchCompleted"`
	FailedRecordID *uuid.UUID `json:"failedRecordId,omitempty"`
	FailureMessage string     `json:"failureMessage,omitempty"`
}

// ApproveAll approves every pending record of a batch in storage order,
// one transaction per record. It stops at the first failure; records
// approved before the failure stay committed.
func (s *Service) ApproveAll(ctx context.Context, batchID uuid.UUID) (*ApproveAllResult, error) {
	pending, err := s.records.ListPending(ctx, batchID)
	if err != nil {
		return nil, err
	}

	res := &ApproveAllResult{}
	for _, staged := range pending {
		r, err := s.Approve(ctx, batchID, staged.ID, nil)
		if err != nil {
			id := staged.ID
			res.FailedRecordID = &id
			res.FailureMessage = err.Error()
			s.logger.Warn("review.approve_all_stopped",
				"batch_id", batchID,
				"record_id", staged.ID,
				"approved", res.Approved,
				"error", err,
			)
			return res, err
		}
		res.Approved++
		res.BatchCompleted = r.BatchCompleted
	}

	s.logger.Info("review.approve_all_done", "batch_id", batchID, "approved", res.Approved)
	return res, nil
}

// Skip marks one staged record as skipped. Skipped records count toward
// batch completion the same as approved ones.
func (s *Service) Skip(ctx context.Context, recordID uuid.UUID) (batchCompleted bool, err error) {
	staged, err := s.records.Get(ctx, recordID)
	if err != nil {
		return false, err
	}
	if err := s.records.MarkSkipped(ctx, recordID); err != nil {
		return false, err
	}
	completed, err := s.payrolls.MarkBatchCompletedIfDone(ctx, staged.BatchID)
	if err != nil {
		return false, err
	}
	s.logger.Info("review.skipped", "record_id", recordID, "batch_id", staged.BatchID, "batch_completed", completed)
	return completed, nil
}

// Update replaces a pending record's payload with the reviewer's edit.
// The raw body goes through the same normalization as model output, so
// numeric fields submitted as strings parse or become null, never NaN,
// and the result must satisfy the payslip schema.
func (s *Service) Update(ctx context.Context, recordID uuid.UUID, raw []byte) (*entity.StagedRecord, error) {
	staged, err := s.records.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if staged.Status != constants.RecordStatusPending {
		return nil, common.ErrRecordTerminal
	}

	normalized, err := llm.NormalizeRecordJSON(raw)
	if err != nil {
		return nil, common.WrapError(common.ErrInvalidInput, fmt.Sprintf("record payload: %v", err))
	}
	if err := llm.ValidateJSONAgainstSchema(s.schema, normalized); err != nil {
		return nil, common.WrapError(common.ErrInvalidInput, fmt.Sprintf("record payload: %v", err))
	}

	var rec entity.ExtractionRecord
	if err := json.Unmarshal(normalized, &rec); err != nil {
		return nil, common.WrapError(common.ErrInvalidInput, "record payload")
	}
	rec.ID = staged.ID
	rec.PageNumber = staged.PageNumber

	if err := s.records.UpdatePayload(ctx, recordID, rec); err != nil {
		return nil, err
	}

	staged.Record = rec
	s.logger.Info("review.updated", "record_id", recordID, "batch_id", staged.BatchID)
	return staged, nil
}
