package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const eventPingInterval = 15 * time.Second

// handleEvents streams document change events as server-sent events until the
// client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Notifier == nil {
		jsonError(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}
	ctx := r.Context()
	events, cancel, err := s.deps.Notifier.Subscribe(ctx)
	if err != nil {
		jsonError(w, "subscribe: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer cancel()

	rc := http.NewResponseController(w)
	// The stream outlives the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.log.Error("event stream needs a flushable writer", "error", err)
		return
	}

	ping := time.NewTicker(eventPingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
