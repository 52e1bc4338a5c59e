package api

import (
	"errors"
	"net/http"

	"github.com/spindlehq/spindle/internal/module"
)

// handleStartWorker launches the configured background worker module and makes
// it the current singleton worker. Any previous singleton keeps running but is
// no longer reachable through GET /v1/worker.
func (s *Server) handleStartWorker(w http.ResponseWriter, r *http.Request) {
	h, err := s.launcher.StartWorker(r.Context())
	if err != nil {
		if errors.Is(err, module.ErrNotFound) {
			s.writeError(w, http.StatusBadRequest, "worker module is not present")
			return
		}
		s.logger.Error("start singleton worker", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to start worker")
		return
	}

	wk, err := s.store.GetWorker(r.Context(), h.ID())
	if err != nil {
		s.logger.Error("get singleton worker", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get worker")
		return
	}

	s.writeJSON(w, http.StatusCreated, wk)
}

// handleGetCurrentWorker returns the record of the current singleton worker.
func (s *Server) handleGetCurrentWorker(w http.ResponseWriter, r *http.Request) {
	h := s.launcher.Current()
	if h == nil {
		s.writeError(w, http.StatusNotFound, "no worker has been started")
		return
	}

	wk, err := s.store.GetWorker(r.Context(), h.ID())
	if err != nil {
		s.logger.Error("get current worker", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get worker")
		return
	}

	s.writeJSON(w, http.StatusOK, wk)
}
