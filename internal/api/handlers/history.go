package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nikhilbhutani/historyhub/internal/events"
	"github.com/nikhilbhutani/historyhub/internal/history"
)

const maxPatchBytes = 4 << 20

type HistoryHandler struct {
	store  *history.Store
	stream events.Streamer
}

// NewHistoryHandler serves the history record. stream may be nil, in which
// case the SSE endpoint answers 501.
func NewHistoryHandler(store *history.Store, stream events.Streamer) *HistoryHandler {
	return &HistoryHandler{store: store, stream: stream}
}

// Get returns the record together with how it was obtained.
func (h *HistoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Read(r.Context()))
}

// Patch shallow-merges the request body into the record.
func (h *HistoryHandler) Patch(w http.ResponseWriter, r *http.Request) {
	var body map[string]json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPatchBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}

	patch := make(history.Patch, len(body))
	for k, v := range body {
		patch[k] = v
	}

	rec, err := h.store.Write(r.Context(), patch)
	switch {
	case errors.Is(err, history.ErrInvalidPatch):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, "history store unavailable")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (h *HistoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Clear(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "history store unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stream pushes history events to the client as server-sent events.
func (h *HistoryHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if h.stream == nil {
		writeError(w, http.StatusNotImplemented, "event streaming not enabled")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ch, err := h.stream.Stream(r.Context(), history.EventUpdated, history.EventCleared)
	if err != nil {
		slog.Error("failed to open event stream", "error", err)
		writeError(w, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}

	// The server write timeout would otherwise cut long-lived streams.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case env, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(env)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", env.ID, env.Name, data)
			flusher.Flush()
		}
	}
}
