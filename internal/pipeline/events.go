package pipeline

import "github.com/paysliphq/payslips-backend/internal/entity"

// EventType discriminates the streaming event union.
type EventType string

const (
	EventProgress EventType = "progress"
	EventResult   EventType = "result"
	EventError    EventType = "error"
	EventDone     EventType = "done"
)

// Event is one message on the extraction stream. Exactly the fields for its
// type are populated; every result and error is attributable to a page so the
// reviewer can isolate and retry a single item.
type Event struct {
	Type EventType `json:"type"`

	// progress
	Current int `json:"current,omitempty"`
	Total   int `json:"total,omitempty"`

	// result
	Record *entity.ExtractionRecord `json:"record,omitempty"`
	Issues []entity.ValidationIssue `json:"issues,omitempty"`
	Valid  *bool                    `json:"isValid,omitempty"`

	// error
	Page  int    `json:"page,omitempty"`
	Error string `json:"error,omitempty"`
}

func progressEvent(current, total int) Event {
	return Event{Type: EventProgress, Current: current, Total: total}
}

func resultEvent(rec *entity.ExtractionRecord, issues []entity.ValidationIssue, valid bool) Event {
	return Event{Type: EventResult, Record: rec, Issues: issues, Valid: &valid}
}

func errorEvent(page int, msg string) Event {
	return Event{Type: EventError, Page: page, Error: msg}
}
