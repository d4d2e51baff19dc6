package document

import "fmt"

// Status is the processing state of a ProcessedDocument.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// CanTransition reports whether moving from s to next is a legal step of
// pending -> processing -> {completed | error}.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusError
	}
	return false
}

// ParseStatus validates a status string read from storage.
func ParseStatus(v string) (Status, error) {
	switch s := Status(v); s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusError:
		return s, nil
	}
	return "", fmt.Errorf("unknown processing status %q", v)
}
