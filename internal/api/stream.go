// ABOUTME: SSE streaming of connectivity events and per-agent log relays

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ikailo/agentry/internal/auth"
)

// handleEventStream answers GET /api/events with a Server-Sent Events
// stream of host and agent connectivity transitions.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := s.registry.SubscribeEvents(r.Context())
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.writeSSEEvent(w, string(ev.Kind), map[string]string{"id": ev.ID})
			flusher.Flush()
		}
	}
}

// handleLogStream answers GET /api/logs/{agentID} with a stream of
// relayed log entries for one agent.
func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	agentID := strings.TrimPrefix(r.URL.Path, "/api/logs/")
	if agentID == "" || strings.Contains(agentID, "/") {
		s.sendJSONError(w, http.StatusBadRequest, "agent id required")
		return
	}

	personID, _ := auth.PersonID(r.Context())
	if _, err := s.stores.Agents.GetOwnedByID(r.Context(), agentID, personID, true); err != nil {
		s.storeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	entries := s.relay.Subscribe(r.Context(), agentID)
	for {
		select {
		case <-r.Context().Done():
			return
		case entry, ok := <-entries:
			if !ok {
				return
			}
			s.writeSSEEvent(w, "log", entry)
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes a single SSE event to the response writer.
func (s *Server) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}
