package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/paysliphq/payslips-backend/constants"
)

// Batch represents one upload event covering one or more source documents.
type Batch struct {
	ID         uuid.UUID             `json:"id"`
	Month      int                   `json:"month"`
	Year       int                   `json:"year"`
	FileName   string                `json:"fileName"`
	Status     constants.BatchStatus `json:"status"`
	UploadedAt time.Time             `json:"uploadedAt"`
}

// UploadedFile is one raw document belonging to a batch, immutable once stored.
type UploadedFile struct {
	ID        uuid.UUID `json:"id"`
	BatchID   uuid.UUID `json:"batchId"`
	FileName  string    `json:"fileName"`
	FileData  []byte    `json:"-"`
	MimeType  string    `json:"mimeType"`
	CreatedAt time.Time `json:"createdAt"`
}

// Page is one extractable unit of a batch. Number is the 1-based global
// ordinal across all files in the batch, not per-file. Pages are never
// persisted.
type Page struct {
	Number    int
	Data      []byte
	MediaType string
}
