package constants

// BatchStatus is the canonical status for rows in payroll_batches.
type BatchStatus string

// Stable values (store these exact strings in DB).
const (
	BatchStatusProcessing BatchStatus = "processing" // splitting done, extraction in flight
	BatchStatusReview     BatchStatus = "review"     // extraction finished, awaiting human review
	BatchStatusCompleted  BatchStatus = "completed"  // every staged record reached a terminal state
)

// RecordStatus is the per-extraction-record review state.
type RecordStatus string

const (
	RecordStatusPending  RecordStatus = "pending"
	RecordStatusApproved RecordStatus = "approved" // terminal
	RecordStatusSkipped  RecordStatus = "skipped"  // terminal; re-approval requires re-extraction
)

// Terminal reports whether a record status can no longer change.
func (s RecordStatus) Terminal() bool {
	return s == RecordStatusApproved || s == RecordStatusSkipped
}

// ComponentType tags a salary line item.
type ComponentType string

const (
	ComponentEarning   ComponentType = "earning"
	ComponentDeduction ComponentType = "deduction"
	ComponentBenefit   ComponentType = "benefit"
)

// Severity ranks a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)
