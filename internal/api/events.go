package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pointcloud/backend/internal/model"
	"github.com/pointcloud/backend/internal/store"
)

// Event names on the job SSE stream.
const (
	eventStatus = "status"
	eventDone   = "done"
)

// handleStreamJobEvents streams job snapshots as server-sent events until the
// job reaches a terminal status. Snapshots are only ever sent in forward order.
func (s *Server) handleStreamJobEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !model.ValidID(id) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}

	j, err := s.engine.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.logger.Error("get job for events", "job_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get job")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug("set write deadline for SSE", "error", err)
	}

	// Subscribe before re-reading so no checkpoint between the two is lost.
	// A job that finished in between is terminal in the re-read.
	ch, unsub := s.engine.Broker().Subscribe(id)
	defer unsub()

	if latest, err := s.engine.Get(r.Context(), id); err == nil {
		j = latest
	}

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	flush := func() {
		if canFlush {
			flusher.Flush()
		}
	}

	last := *j
	if err := writeJobEvent(w, last); err != nil {
		return
	}
	flush()

	if model.IsTerminal(last.Status) {
		_ = writeSSEEvent(w, eventDone, last.Status)
		flush()
		return
	}

	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				_ = writeSSEEvent(w, eventDone, last.Status)
				flush()
				return
			}
			if !after(snap, last) {
				continue
			}
			last = snap
			if err := writeJobEvent(w, snap); err != nil {
				return // Write failed (e.g. client gone).
			}
			flush()
		case <-r.Context().Done():
			return // Client disconnected.
		}
	}
}

// after reports whether snapshot a is strictly later than b in the job's
// forward ordering.
func after(a, b model.Job) bool {
	if model.IsTerminal(b.Status) {
		return false
	}
	if model.IsTerminal(a.Status) {
		return true
	}
	if a.Status != b.Status {
		return a.Status == model.StatusRunning
	}
	return a.Progress > b.Progress
}

func writeJobEvent(w http.ResponseWriter, j model.Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return err
	}
	return writeSSEEvent(w, eventStatus, string(data))
}

// writeSSEEvent writes a named SSE event (event: <type>\ndata: <data>\n\n).
func writeSSEEvent(w http.ResponseWriter, eventType, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return nil
}
