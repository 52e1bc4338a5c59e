package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/spindlehq/spindle/internal/launcher"
	"github.com/spindlehq/spindle/internal/model"
	"github.com/spindlehq/spindle/internal/module"
	"github.com/spindlehq/spindle/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodySize      = 1 << 20 // 1 MB
)

// launchWorkerRequest is the JSON body for POST /v1/workers.
type launchWorkerRequest struct {
	Module string            `json:"module"`
	Label  string            `json:"label"`
	Mode   string            `json:"mode"`
	Kind   string            `json:"kind"`
	Env    map[string]string `json:"env"`
}

// listWorkersResponse wraps the paginated list response.
type listWorkersResponse struct {
	Workers []*model.Worker `json:"workers"`
	Total   int             `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

func (s *Server) handleLaunchWorker(w http.ResponseWriter, r *http.Request) {
	var req launchWorkerRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Module == "" {
		s.writeError(w, http.StatusBadRequest, "module is required")
		return
	}
	if req.Mode != "" && req.Mode != model.ModeModule && req.Mode != model.ModeClassic {
		s.writeError(w, http.StatusBadRequest, "mode must be module or classic")
		return
	}

	h, err := s.launcher.Launch(r.Context(), launcher.LaunchRequest{
		Module: req.Module,
		Label:  req.Label,
		Mode:   req.Mode,
		Kind:   req.Kind,
		Env:    req.Env,
	})
	if err != nil {
		if errors.Is(err, module.ErrNotFound) || errors.Is(err, module.ErrEscapesRoot) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("launch worker", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to launch worker")
		return
	}

	wk, err := s.store.GetWorker(r.Context(), h.ID())
	if err != nil {
		s.logger.Error("get launched worker", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get worker")
		return
	}

	s.writeJSON(w, http.StatusCreated, wk)
}

func (s *Server) handleGetWorker(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	wk, err := s.store.GetWorker(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "worker not found")
		return
	}
	if err != nil {
		s.logger.Error("get worker", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get worker")
		return
	}

	s.writeJSON(w, http.StatusOK, wk)
}

func (s *Server) handleListWorkers(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	workers, total, err := s.store.ListWorkers(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list workers", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list workers")
		return
	}

	if workers == nil {
		workers = []*model.Worker{}
	}

	s.writeJSON(w, http.StatusOK, listWorkersResponse{
		Workers: workers,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

func (s *Server) handleTerminateWorker(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	wk, err := s.store.GetWorker(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "worker not found")
		return
	}
	if err != nil {
		s.logger.Error("get worker for terminate", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get worker")
		return
	}

	// Already finished: termination is a no-op, return the record as-is.
	if model.Terminal(wk.Status) {
		s.writeJSON(w, http.StatusOK, wk)
		return
	}

	if h := s.launcher.Lookup(id); h != nil {
		if err := h.Terminate(r.Context()); err != nil {
			s.logger.Error("terminate worker", "worker_id", id, "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to terminate worker")
			return
		}
		// The watcher records the terminal state; wait for it so the
		// response reflects the final record.
		select {
		case <-h.Done():
		case <-r.Context().Done():
		}
	} else if err := s.store.UpdateWorkerStatus(r.Context(), id, model.StatusTerminated); err != nil {
		// No live handle, e.g. a pending record whose process is gone.
		s.logger.Error("mark worker terminated", "worker_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to terminate worker")
		return
	}

	wk, err = s.store.GetWorker(r.Context(), id)
	if err != nil {
		s.logger.Error("get terminated worker", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to retrieve worker")
		return
	}

	s.writeJSON(w, http.StatusOK, wk)
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
