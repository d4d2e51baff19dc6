// Package blobstore keeps the original uploaded files.
package blobstore

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Get and Delete for unknown keys.
var ErrNotFound = errors.New("blob not found")

// Locator says where a stored blob lives.
type Locator struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// Blobs stores opaque uploaded files by key.
type Blobs interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (Locator, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// NewKey builds a storage key of the form
// <docType>/<caseNumber or "uncategorized">/<uuid>.<ext>.
func NewKey(docType, caseNumber, filename string) string {
	if docType = cleanSegment(docType); docType == "" {
		docType = "other"
	}
	if caseNumber = cleanSegment(caseNumber); caseNumber == "" {
		caseNumber = "uncategorized"
	}
	name := uuid.NewString()
	if ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), ".")); ext != "" {
		name += "." + cleanSegment(ext)
	}
	return docType + "/" + caseNumber + "/" + name
}

// cleanSegment keeps a key segment from escaping its directory.
func cleanSegment(s string) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("/", "-", "\\", "-").Replace(s)
	if s == "." || s == ".." {
		return ""
	}
	return s
}

// validKey rejects keys that are empty, absolute or climb out of the root.
func validKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") {
		return false
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}
	return true
}
