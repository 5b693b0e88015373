package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mediaforge/internal/domain"
	"mediaforge/internal/middleware"
	"mediaforge/internal/progress"
	"mediaforge/internal/workflow"
)

// StreamRun serves the run's event stream over SSE. Subscribers attached
// mid-run receive the buffered event log first, then live events; terminal
// runs within the retention window replay their full log. Heartbeats are
// emitted per connection so proxies keep the stream open.
func (a *App) StreamRun(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	runID := chi.URLParam(r, "run_id")

	snapshot, err := a.Runs.Status(r.Context(), runID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "run not found")
			return
		}
		a.Logger.Error().Err(err).Str("run_id", runID).Msg("handlers: stream lookup failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to open stream")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		a.error(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	events, cancelSub, live := a.Hub.Subscribe(runID)
	if !live {
		// Topic already pruned: synthesize the final event from the
		// persisted snapshot so a late reconnect still gets closure.
		writeSSE(w, flusher, terminalEvent(snapshot))
		return
	}
	defer cancelSub()

	heartbeat := time.NewTicker(a.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			writeSSE(w, flusher, progress.Event{Type: progress.EventHeartbeat, RunID: runID, At: time.Now()})
		case ev, open := <-events:
			if !open {
				return
			}
			writeSSE(w, flusher, ev)
		}
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, ev progress.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if ev.Seq > 0 {
		fmt.Fprintf(w, "id: %d\n", ev.Seq)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
	flusher.Flush()
}

func terminalEvent(s *workflow.Snapshot) progress.Event {
	return progress.Event{
		Type:      progress.EventComplete,
		RunID:     s.Run.ID,
		Status:    s.Run.Status,
		Steps:     progress.StepViewsOf(s.Steps),
		TotalCost: s.Run.TotalCost,
		Error:     s.Run.ErrorMessage,
		At:        time.Now(),
	}
}
