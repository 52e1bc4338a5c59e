package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/spindlehq/spindle/internal/model"
	"github.com/spindlehq/spindle/internal/store"
)

func (s *Server) handleStreamOutput(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Verify worker exists.
	wk, err := s.store.GetWorker(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "worker not found")
		return
	}
	if err != nil {
		s.logger.Error("get worker for output", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get worker")
		return
	}

	// Set SSE headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// If already in a terminal state, return empty stream immediately.
	if model.Terminal(wk.Status) {
		w.WriteHeader(http.StatusOK)
		return
	}

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Error("set write deadline for SSE", "error", err)
	}

	// Subscribe to the output stream. This is safe even if the worker finished
	// between the status check above and this call — Subscribe on a closed topic
	// returns a closed channel, causing the loop below to exit immediately.
	ch, unsub := s.launcher.Broker().Subscribe(id)
	defer unsub()

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	if canFlush {
		flusher.Flush()
	}

	for {
		select {
		case line, ok := <-ch:
			if !ok {
				// Worker finished; send explicit done event before closing.
				_ = writeSSEEvent(w, "done", "stream complete")
				if canFlush {
					flusher.Flush()
				}
				return
			}
			if err := writeSSEData(w, line); err != nil {
				return // Write failed (e.g. client gone).
			}
			if canFlush {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return // Client disconnected.
		}
	}
}

// outputHistoryLine is a single output line in the history response.
type outputHistoryLine struct {
	Seq       int    `json:"seq"`
	Line      string `json:"line"`
	CreatedAt string `json:"created_at"`
}

// outputHistoryResponse is the JSON response for GET /v1/workers/:id/output/history.
type outputHistoryResponse struct {
	WorkerID string              `json:"worker_id"`
	Lines    []outputHistoryLine `json:"lines"`
}

func (s *Server) handleGetOutputHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Verify worker exists.
	_, err := s.store.GetWorker(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "worker not found")
		return
	}
	if err != nil {
		s.logger.Error("get worker for output history", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get worker")
		return
	}

	outputLines, err := s.store.GetOutputLines(r.Context(), id)
	if err != nil {
		s.logger.Error("get output lines", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get output lines")
		return
	}

	lines := make([]outputHistoryLine, len(outputLines))
	for i, l := range outputLines {
		lines[i] = outputHistoryLine{
			Seq:       l.Seq,
			Line:      l.Line,
			CreatedAt: l.CreatedAt.Format(time.RFC3339),
		}
	}

	s.writeJSON(w, http.StatusOK, outputHistoryResponse{
		WorkerID: id,
		Lines:    lines,
	})
}

// writeSSEData writes an output line as an SSE data event. Multi-line strings
// are split so that each segment gets its own "data:" prefix, per the SSE spec.
func writeSSEData(w http.ResponseWriter, line string) error {
	for seg := range strings.SplitSeq(line, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", seg); err != nil {
			return err
		}
	}
	// Blank line terminates the event.
	_, err := fmt.Fprint(w, "\n")
	return err
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
