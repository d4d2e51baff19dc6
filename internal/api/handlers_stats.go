package api

import (
	"net/http"
)

func (s *Server) handleProcessingStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Processor == nil {
		jsonError(w, "processing stats unavailable", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"stages":      s.deps.Processor.Stats().Snapshot(),
		"queue_depth": s.deps.Orchestrator.QueueDepth(),
	})
}
