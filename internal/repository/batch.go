package repository

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paysliphq/payslips-backend/constants"
	"github.com/paysliphq/payslips-backend/internal/common"
	"github.com/paysliphq/payslips-backend/internal/entity"
)

type BatchRepository interface {
	Create(ctx context.Context, month, year int, fileName string) (*entity.Batch, error)
	Get(ctx context.Context, id uuid.UUID) (*entity.Batch, error)
	// MarkReview moves a batch from processing to review. Status never
	// regresses; marking an already reviewed batch is a no-op.
	MarkReview(ctx context.Context, id uuid.UUID) error
}

type batchRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewBatchRepository(pool *pgxpool.Pool, logger *slog.Logger) BatchRepository {
	return &batchRepository{pool: pool, logger: logger}
}

func (r *batchRepository) Create(ctx context.Context, month, year int, fileName string) (*entity.Batch, error) {
	var b entity.Batch
	err := r.pool.QueryRow(ctx,
		`INSERT INTO payroll_batches (month, year, file_name, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, month, year, file_name, status, uploaded_at`,
		month, year, fileName, constants.BatchStatusProcessing,
	).Scan(&b.ID, &b.Month, &b.Year, &b.FileName, &b.Status, &b.UploadedAt)
	if err != nil {
		r.logger.Error("failed to create batch", "error", err)
		return nil, common.WrapError(err, "create batch")
	}
	return &b, nil
}

func (r *batchRepository) Get(ctx context.Context, id uuid.UUID) (*entity.Batch, error) {
	var b entity.Batch
	err := r.pool.QueryRow(ctx,
		`SELECT id, month, year, file_name, status, uploaded_at
		 FROM payroll_batches WHERE id = $1`, id,
	).Scan(&b.ID, &b.Month, &b.Year, &b.FileName, &b.Status, &b.UploadedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		r.logger.Error("failed to get batch", "batch_id", id, "error", err)
		return nil, common.WrapError(err, "get batch")
	}
	return &b, nil
}

func (r *batchRepository) MarkReview(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE payroll_batches SET status = $1 WHERE id = $2 AND status = $3`,
		constants.BatchStatusReview, id, constants.BatchStatusProcessing,
	)
	if err != nil {
		r.logger.Error("failed to mark batch review", "batch_id", id, "error", err)
		return common.WrapError(err, "mark batch review")
	}
	if tag.RowsAffected() == 0 {
		r.logger.Debug("batch already past processing", "batch_id", id)
	}
	return nil
}
