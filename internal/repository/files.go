package repository

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paysliphq/payslips-backend/internal/common"
	"github.com/paysliphq/payslips-backend/internal/entity"
)

// FileRepository is the byte blob store for raw uploaded documents, keyed by
// batch. Files are immutable once stored.
type FileRepository interface {
	Add(ctx context.Context, batchID uuid.UUID, fileName, mimeType string, data []byte) (*entity.UploadedFile, error)
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]entity.UploadedFile, error)
}

type fileRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewFileRepository(pool *pgxpool.Pool, logger *slog.Logger) FileRepository {
	return &fileRepository{pool: pool, logger: logger}
}

func (r *fileRepository) Add(ctx context.Context, batchID uuid.UUID, fileName, mimeType string, data []byte) (*entity.UploadedFile, error) {
	var f entity.UploadedFile
	err := r.pool.QueryRow(ctx,
		`INSERT INTO uploaded_files (batch_id, file_name, file_data, mime_type)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, batch_id, file_name, file_data, mime_type, created_at`,
		batchID, fileName, data, mimeType,
	).Scan(&f.ID, &f.BatchID, &f.FileName, &f.FileData, &f.MimeType, &f.CreatedAt)
	if err != nil {
		r.logger.Error("failed to store uploaded file", "batch_id", batchID, "file", fileName, "error", err)
		return nil, common.WrapError(err, "store uploaded file")
	}
	return &f, nil
}

func (r *fileRepository) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]entity.UploadedFile, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, batch_id, file_name, file_data, mime_type, created_at
		 FROM uploaded_files WHERE batch_id = $1 ORDER BY created_at, id`, batchID)
	if err != nil {
		r.logger.Error("failed to list uploaded files", "batch_id", batchID, "error", err)
		return nil, common.WrapError(err, "list uploaded files")
	}
	defer rows.Close()

	var files []entity.UploadedFile
	for rows.Next() {
		var f entity.UploadedFile
		if err := rows.Scan(&f.ID, &f.BatchID, &f.FileName, &f.FileData, &f.MimeType, &f.CreatedAt); err != nil {
			return nil, common.WrapError(err, "scan uploaded file")
		}
		files = append(files, f)
	}
	return files, rows.Err()
}
