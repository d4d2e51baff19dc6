package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/dgallion1/casegest/internal/document"
	"github.com/dgallion1/casegest/internal/store"
)

// maxCrossRefDocs bounds one cross-reference request; pair count grows with
// the square of it.
const maxCrossRefDocs = 200

type analyzeRequest struct {
	document.Document
	Related []document.Document `json:"related,omitempty"`
}

// handleAnalyze runs the processor synchronously on a posted document.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	res := s.deps.Processor.ProcessDocument(r.Context(), req.Document, req.Related...)
	if res.Metadata.ProcessingStatus == document.StatusProcessing {
		// The client went away or the server is shutting down.
		jsonError(w, "analysis canceled", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type crossRefRequest struct {
	DocumentIDs []string `json:"document_ids"`
	CaseNumber  string   `json:"case_number"`
}

// handleCrossRefs finds cross-references between stored documents, selected
// either by ID or by case number.
func (s *Server) handleCrossRefs(w http.ResponseWriter, r *http.Request) {
	var req crossRefRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}
	req.CaseNumber = strings.TrimSpace(req.CaseNumber)
	if (len(req.DocumentIDs) == 0) == (req.CaseNumber == "") {
		jsonError(w, "exactly one of document_ids or case_number is required", http.StatusBadRequest)
		return
	}
	if len(req.DocumentIDs) > maxCrossRefDocs {
		jsonError(w, "too many documents", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	var docs []document.Document
	if req.CaseNumber != "" {
		recs, err := s.deps.Store.List(ctx, store.ListFilter{CaseNumber: req.CaseNumber, Limit: maxCrossRefDocs})
		if err != nil {
			jsonError(w, "failed to list documents: "+err.Error(), http.StatusInternalServerError)
			return
		}
		for _, rec := range recs {
			docs = append(docs, rec.Document)
		}
	} else {
		for _, id := range req.DocumentIDs {
			rec, err := s.deps.Store.Get(ctx, id)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					jsonError(w, "document not found: "+id, http.StatusNotFound)
					return
				}
				jsonError(w, err.Error(), http.StatusInternalServerError)
				return
			}
			docs = append(docs, rec.Document)
		}
	}

	refs, err := s.deps.Finder.FindPatterns(ctx, docs)
	if err != nil {
		jsonError(w, "cross-reference search failed: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	s.deps.Metrics.CrossReferences(len(refs))
	if refs == nil {
		refs = []document.CrossReference{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents":        len(docs),
		"cross_references": refs,
	})
}
