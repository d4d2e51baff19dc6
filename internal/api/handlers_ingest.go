package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/casegest/internal/blobstore"
	"github.com/dgallion1/casegest/internal/document"
	"github.com/dgallion1/casegest/internal/parser"
	"github.com/dgallion1/casegest/internal/pipeline"
	"github.com/dgallion1/casegest/internal/store"
)

// handleUpload parses an uploaded file, keeps the original in blob storage,
// records it and queues an analysis job.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !parser.IsSupportedExtension(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	// Read file data.
	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	p, err := parser.ForFile(filename)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	parsed, err := p.Parse(bytes.NewReader(data), filename)
	if err != nil {
		jsonError(w, "parse: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}

	ctx := r.Context()
	docType := strings.TrimSpace(r.FormValue("type"))
	caseNumber := strings.TrimSpace(r.FormValue("case_number"))
	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		title = parsed.Title
	}

	key := blobstore.NewKey(docType, caseNumber, filename)
	loc, err := s.deps.Blobs.Put(ctx, key, bytes.NewReader(data), int64(len(data)), parser.ContentType(filename))
	if err != nil {
		jsonError(w, "failed to store file: "+err.Error(), http.StatusInternalServerError)
		return
	}

	rec := &store.Record{
		Document: document.Document{
			Title:   title,
			Content: parsed.Content,
			Metadata: map[string]string{
				"filename":    filename,
				"contentHash": pipeline.ContentHashHex(data),
				"sections":    strconv.Itoa(len(parsed.Sections)),
			},
		},
		Type:             docType,
		CaseNumber:       caseNumber,
		Size:             int64(len(data)),
		StoragePath:      loc.Key,
		URL:              loc.URL,
		OriginalFileType: parser.ContentType(filename),
	}
	if err := s.deps.Store.Create(ctx, rec); err != nil {
		if derr := s.deps.Blobs.Delete(ctx, loc.Key); derr != nil {
			s.log.Warn("orphaned upload", "key", loc.Key, "error", derr)
		}
		jsonError(w, "failed to record document: "+err.Error(), http.StatusInternalServerError)
		return
	}

	s.submit(w, rec.ID)
}

// handleProcess queues a fresh analysis of an existing document.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadRecord(w, r)
	if !ok {
		return
	}
	s.submit(w, rec.ID)
}

func (s *Server) submit(w http.ResponseWriter, docID string) {
	job, err := s.deps.Orchestrator.Submit(docID)
	switch {
	case errors.Is(err, pipeline.ErrAlreadyProcessing):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":  err.Error(),
			"doc_id": docID,
			"job_id": job.ID,
		})
		return
	case err != nil:
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":  err.Error(),
			"doc_id": docID,
		})
		return
	}

	snap := job.Snapshot()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":   snap.ID,
		"doc_id":   snap.DocID,
		"status":   snap.Status,
		"poll_url": fmt.Sprintf("/api/jobs/%s/status", snap.ID),
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.deps.Orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	// Remove any path separators that might have survived.
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
