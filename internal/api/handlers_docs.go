package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/casegest/internal/blobstore"
	"github.com/dgallion1/casegest/internal/document"
	"github.com/dgallion1/casegest/internal/store"
)

const maxListLimit = 500

// handleListDocuments lists documents, newest first.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ListFilter{
		CaseNumber: q.Get("case_number"),
		Type:       q.Get("type"),
		Limit:      100,
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			jsonError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		filter.Limit = min(n, maxListLimit)
	}

	recs, err := s.deps.Store.List(r.Context(), filter)
	if err != nil {
		jsonError(w, "failed to list documents: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []*store.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": recs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadRecord(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleDeleteDocument removes the stored upload, then the record and its
// analysis, then anything exported downstream.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadRecord(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	log := s.log.With("doc_id", rec.ID)

	if rec.StoragePath != "" {
		if err := s.deps.Blobs.Delete(ctx, rec.StoragePath); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
			jsonError(w, "failed to delete file: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}
	if err := s.deps.Store.Delete(ctx, rec.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			jsonError(w, "document not found", http.StatusNotFound)
			return
		}
		jsonError(w, "failed to delete document: "+err.Error(), http.StatusInternalServerError)
		return
	}

	exported := false
	if s.deps.Exporter != nil {
		if err := s.deps.Exporter.DeleteDocument(ctx, rec.CaseNumber, rec.ID); err != nil {
			log.Warn("pathstore cleanup failed", "error", err)
		} else {
			exported = true
		}
	}

	log.Info("document deleted")
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted":           rec.ID,
		"export_cleaned_up": exported,
	})
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	res, err := s.deps.Store.GetAnalysis(r.Context(), docID)
	if err != nil {
		storeError(w, err, "analysis not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetTimeline(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	res, err := s.deps.Store.GetAnalysis(r.Context(), docID)
	if err != nil {
		storeError(w, err, "analysis not found")
		return
	}
	events := res.TimelineEvents
	if events == nil {
		events = []document.TimelineEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": docID,
		"events":      events,
	})
}

func (s *Server) loadRecord(w http.ResponseWriter, r *http.Request) (*store.Record, bool) {
	rec, err := s.deps.Store.Get(r.Context(), chi.URLParam(r, "docID"))
	if err != nil {
		storeError(w, err, "document not found")
		return nil, false
	}
	return rec, true
}

func storeError(w http.ResponseWriter, err error, notFound string) {
	if errors.Is(err, store.ErrNotFound) {
		jsonError(w, notFound, http.StatusNotFound)
		return
	}
	jsonError(w, err.Error(), http.StatusInternalServerError)
}
