package launcher

import (
	"context"
	"sync"

	"github.com/spindlehq/spindle/internal/runtime"
)

// Handle is an opaque reference to a launched background worker. Handles are
// immutable once returned; only the worker behind them changes state.
type Handle struct {
	id     string
	label  string
	module string
	mode   string
	kind   string

	proc runtime.Proc
	done chan struct{}

	mu         sync.Mutex
	result     runtime.Result
	terminated bool
}

// ID returns the worker's identifier.
func (h *Handle) ID() string { return h.id }

// Label returns the diagnostic label the worker was launched with.
func (h *Handle) Label() string { return h.label }

// Module returns the module reference the worker is executing.
func (h *Handle) Module() string { return h.module }

// Mode returns the worker's execution mode.
func (h *Handle) Mode() string { return h.mode }

// Kind returns the runtime kind the worker runs under.
func (h *Handle) Kind() string { return h.kind }

// Pid returns the worker's OS process ID, or 0 for in-process workers.
func (h *Handle) Pid() int { return h.proc.Pid() }

// Done returns a channel closed when the worker has finished and its final
// state has been recorded.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait joins the worker: it blocks until the worker finishes or ctx is done,
// then returns the worker's result.
func (h *Handle) Wait(ctx context.Context) (runtime.Result, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.result, nil
	case <-ctx.Done():
		return runtime.Result{}, ctx.Err()
	}
}

// Terminate stops the worker. Safe to call more than once and after the
// worker has finished.
func (h *Handle) Terminate(ctx context.Context) error {
	h.mu.Lock()
	h.terminated = true
	h.mu.Unlock()
	return h.proc.Terminate(ctx)
}

// finish records the worker's result and releases Done. Called exactly once
// by the launcher's watcher goroutine.
func (h *Handle) finish(result runtime.Result) {
	h.mu.Lock()
	h.result = result
	h.mu.Unlock()
	close(h.done)
}

// wasTerminated reports whether Terminate was called before the worker finished.
func (h *Handle) wasTerminated() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.terminated
}
