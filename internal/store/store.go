// Package store persists document records and analysis results, and announces
// every change to subscribers.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/dgallion1/casegest/internal/document"
)

// ErrNotFound is returned when a document or analysis does not exist.
var ErrNotFound = errors.New("not found")

// Record is a stored document together with its upload bookkeeping.
type Record struct {
	document.Document
	Type             string          `json:"type"`
	CaseNumber       string          `json:"caseNumber,omitempty"`
	Size             int64           `json:"size"`
	Status           document.Status `json:"status"`
	ErrorMessage     string          `json:"errorMessage,omitempty"`
	StoragePath      string          `json:"storagePath,omitempty"`
	URL              string          `json:"url,omitempty"`
	OriginalFileType string          `json:"originalFileType,omitempty"`
}

// ListFilter narrows List results. Zero fields match everything; Limit <= 0
// means no limit.
type ListFilter struct {
	CaseNumber string
	Type       string
	Limit      int
}

// Store is the document collection used by the pipeline and the API.
type Store interface {
	// Create inserts rec, assigning an ID, timestamps and pending status
	// where they are unset.
	Create(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	// List returns records newest first.
	List(ctx context.Context, filter ListFilter) ([]*Record, error)
	Delete(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, id string, status document.Status, errMsg string) error
	SaveAnalysis(ctx context.Context, result *document.ProcessedDocument) error
	GetAnalysis(ctx context.Context, id string) (*document.ProcessedDocument, error)
	Close() error
}

// ChangeKind names the write that produced a ChangeEvent.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// ChangeEvent describes one committed write to the document collection.
type ChangeEvent struct {
	Kind       ChangeKind      `json:"kind"`
	DocumentID string          `json:"documentId"`
	Status     document.Status `json:"status,omitempty"`
	At         time.Time       `json:"at"`
}

// Notifier fans change events out to subscribers.
type Notifier interface {
	Publish(ctx context.Context, ev ChangeEvent) error
	// Subscribe returns a channel of events and a function that ends the
	// subscription and closes the channel.
	Subscribe(ctx context.Context) (<-chan ChangeEvent, func(), error)
	Close() error
}
