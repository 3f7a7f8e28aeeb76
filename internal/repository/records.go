package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paysliphq/payslips-backend/constants"
	"github.com/paysliphq/payslips-backend/internal/common"
	"github.com/paysliphq/payslips-backend/internal/entity"
)

// RecordRepository stages extracted records between extraction and review.
type RecordRepository interface {
	Stage(ctx context.Context, batchID uuid.UUID, rec entity.ExtractionRecord) (*entity.StagedRecord, error)
	Get(ctx context.Context, id uuid.UUID) (*entity.StagedRecord, error)
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]entity.StagedRecord, error)
	ListPending(ctx context.Context, batchID uuid.UUID) ([]entity.StagedRecord, error)
	// UpdatePayload replaces the staged record body. Only pending records
	// may be edited.
	UpdatePayload(ctx context.Context, id uuid.UUID, rec entity.ExtractionRecord) error
	// MarkSkipped moves a pending record to its skipped terminal state.
	MarkSkipped(ctx context.Context, id uuid.UUID) error
	PendingCount(ctx context.Context, batchID uuid.UUID) (int, error)
}

type recordRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewRecordRepository(pool *pgxpool.Pool, logger *slog.Logger) RecordRepository {
	return &recordRepository{pool: pool, logger: logger}
}

func (r *recordRepository) Stage(ctx context.Context, batchID uuid.UUID, rec entity.ExtractionRecord) (*entity.StagedRecord, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, common.WrapError(err, "encode record payload")
	}

	staged := entity.StagedRecord{BatchID: batchID, PageNumber: rec.PageNumber, Record: rec}
	err = r.pool.QueryRow(ctx,
		`INSERT INTO extraction_records (batch_id, page_number, payload)
		 VALUES ($1, $2, $3)
		 RETURNING id, status, created_at`,
		batchID, rec.PageNumber, payload,
	).Scan(&staged.ID, &staged.Status, &staged.CreatedAt)
	if err != nil {
		r.logger.Error("failed to stage record", "batch_id", batchID, "page", rec.PageNumber, "error", err)
		return nil, common.WrapError(err, "stage record")
	}
	staged.Record.ID = staged.ID
	return &staged, nil
}

func (r *recordRepository) Get(ctx context.Context, id uuid.UUID) (*entity.StagedRecord, error) {
	var (
		staged  entity.StagedRecord
		payload []byte
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, batch_id, page_number, payload, status, created_at, reviewed_at
		 FROM extraction_records WHERE id = $1`, id,
	).Scan(&staged.ID, &staged.BatchID, &staged.PageNumber, &payload, &staged.Status, &staged.CreatedAt, &staged.ReviewedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		r.logger.Error("failed to get staged record", "record_id", id, "error", err)
		return nil, common.WrapError(err, "get staged record")
	}
	if err := json.Unmarshal(payload, &staged.Record); err != nil {
		return nil, common.WrapError(err, "decode record payload")
	}
	staged.Record.ID = staged.ID
	return &staged, nil
}

func (r *recordRepository) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]entity.StagedRecord, error) {
	return r.list(ctx, batchID, false)
}

func (r *recordRepository) ListPending(ctx context.Context, batchID uuid.UUID) ([]entity.StagedRecord, error) {
	return r.list(ctx, batchID, true)
}

func (r *recordRepository) list(ctx context.Context, batchID uuid.UUID, pendingOnly bool) ([]entity.StagedRecord, error) {
	q := `SELECT id, batch_id, page_number, payload, status, created_at, reviewed_at
	      FROM extraction_records WHERE batch_id = $1`
	if pendingOnly {
		q += ` AND status = 'pending'`
	}
	q += ` ORDER BY page_number, created_at`

	rows, err := r.pool.Query(ctx, q, batchID)
	if err != nil {
		r.logger.Error("failed to list staged records", "batch_id", batchID, "error", err)
		return nil, common.WrapError(err, "list staged records")
	}
	defer rows.Close()

	var out []entity.StagedRecord
	for rows.Next() {
		var (
			staged  entity.StagedRecord
			payload []byte
		)
		if err := rows.Scan(&staged.ID, &staged.BatchID, &staged.PageNumber, &payload, &staged.Status, &staged.CreatedAt, &staged.ReviewedAt); err != nil {
			return nil, common.WrapError(err, "scan staged record")
		}
		if err := json.Unmarshal(payload, &staged.Record); err != nil {
			return nil, common.WrapError(err, "decode record payload")
		}
		staged.Record.ID = staged.ID
		out = append(out, staged)
	}
	return out, rows.Err()
}

func (r *recordRepository) UpdatePayload(ctx context.Context, id uuid.UUID, rec entity.ExtractionRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return common.WrapError(err, "encode record payload")
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE extraction_records SET payload = $1
		 WHERE id = $2 AND status = $3`,
		payload, id, constants.RecordStatusPending,
	)
	if err != nil {
		r.logger.Error("failed to update staged record", "record_id", id, "error", err)
		return common.WrapError(err, "update staged record")
	}
	if tag.RowsAffected() == 0 {
		return r.pendingGateError(ctx, id)
	}
	return nil
}

func (r *recordRepository) MarkSkipped(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE extraction_records SET status = $1, reviewed_at = $2
		 WHERE id = $3 AND status = $4`,
		constants.RecordStatusSkipped, time.Now().UTC(), id, constants.RecordStatusPending,
	)
	if err != nil {
		r.logger.Error("failed to skip record", "record_id", id, "error", err)
		return common.WrapError(err, "skip record")
	}
	if tag.RowsAffected() == 0 {
		return r.pendingGateError(ctx, id)
	}
	return nil
}

func (r *recordRepository) PendingCount(ctx context.Context, batchID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM extraction_records WHERE batch_id = $1 AND status = $2`,
		batchID, constants.RecordStatusPending,
	).Scan(&count)
	if err != nil {
		return 0, common.WrapError(err, "count pending records")
	}
	return count, nil
}

// pendingGateError distinguishes a missing record from one that already
// reached a terminal state.
func (r *recordRepository) pendingGateError(ctx context.Context, id uuid.UUID) error {
	var status constants.RecordStatus
	err := r.pool.QueryRow(ctx,
		`SELECT status FROM extraction_records WHERE id = $1`, id,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return common.ErrNotFound
	}
	if err != nil {
		return common.WrapError(err, "check record status")
	}
	return common.ErrRecordTerminal
}
