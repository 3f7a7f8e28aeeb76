package llm

import (
	"context"

	"github.com/paysliphq/payslips-backend/internal/entity"
)

// Extractor is the document-understanding capability: one page in, one
// structured payslip record out. Implementations are network-bound and must
// honor ctx deadlines. No retries happen at this layer.
type Extractor interface {
	Extract(ctx context.Context, page entity.Page) (entity.ExtractionRecord, error)
}

// Assessor is the advisory plausibility capability. It is best-effort: the
// caller swallows failures and proceeds with deterministic validation only.
type Assessor interface {
	Assess(ctx context.Context, rec entity.ExtractionRecord, prior *entity.PayrollContext) ([]entity.ValidationIssue, error)
}
