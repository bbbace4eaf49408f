package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/arbiterhq/arbiter/internal/core"
)

// handleDebateEvents streams debate events using Server-Sent Events. The
// stream ends when the debate reaches a terminal state or the client
// disconnects.
func (h *Handler) handleDebateEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	slog.Debug("New event stream connection", "debate_id", id, "remote_addr", r.RemoteAddr)

	// Set headers for SSE
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		slog.Error("Streaming unsupported: ResponseWriter does not implement http.Flusher")
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	debate, err := h.service.GetDebate(r.Context(), id)
	if err != nil {
		if core.IsNotFound(err) {
			h.sendSSEError(w, flusher, "Debate not found")
		} else {
			slog.Error("Failed to load debate for stream", "debate_id", id, "error", err)
			h.sendSSEError(w, flusher, "Failed to load debate")
		}
		return
	}

	// Send a snapshot first so late subscribers see current state
	h.sendSSEEvent(w, flusher, "snapshot", debate)

	if debate.Status.Terminal() {
		return
	}

	events, cancel := h.service.Subscribe(id)
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			slog.Debug("Event stream client disconnected", "debate_id", id)
			return
		case ev, ok := <-events:
			if !ok {
				slog.Debug("Event stream channel closed", "debate_id", id)
				return
			}
			h.sendSSEEvent(w, flusher, string(ev.Type), ev)
			if ev.Type == core.EventDebateCompleted {
				return
			}
		}
	}
}

// sendSSEEvent sends a server-sent event.
func (h *Handler) sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		slog.Error("Failed to marshal SSE data", "error", err)
		return
	}

	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		slog.Error("Failed to write SSE event", "error", err)
		return
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", jsonData); err != nil {
		slog.Error("Failed to write SSE data", "error", err)
		return
	}
	flusher.Flush()
}

// sendSSEError sends an error event.
func (h *Handler) sendSSEError(w http.ResponseWriter, flusher http.Flusher, message string) {
	errorData := map[string]string{"message": message}
	h.sendSSEEvent(w, flusher, "error", errorData)
}
