package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")

	// ErrDecodeFailure marks bad document bytes. Fatal to that file only,
	// never to the whole batch.
	ErrDecodeFailure = errors.New("document decode failed")
	// ErrExtractionFailure marks a failed extraction call. Page-scoped,
	// reported and skipped while the batch continues.
	ErrExtractionFailure = errors.New("extraction failed")
	// ErrCommitConflict marks a duplicate (employee, month, year) payroll key.
	// The record stays pending so the reviewer can retry or correct.
	ErrCommitConflict = errors.New("payroll already exists for employee and period")
	// ErrRecordTerminal marks an attempt to review a record that already
	// reached a terminal state.
	ErrRecordTerminal = errors.New("record already reviewed")
	// ErrNoPages marks a batch with no extractable page at all.
	ErrNoPages = errors.New("no extractable pages in batch")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// DecodeError reports that one uploaded file could not be decoded.
type DecodeError struct {
	FileName string
	Cause    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.FileName, e.Cause)
}

func (e *DecodeError) Unwrap() error { return ErrDecodeFailure }

// ExtractionError reports that extraction failed for one page.
type ExtractionError struct {
	Page  int
	Cause error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("page %d: %v", e.Page, e.Cause)
}

func (e *ExtractionError) Unwrap() error { return ErrExtractionFailure }
