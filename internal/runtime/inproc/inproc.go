// Package inproc implements the worker runtime that runs registered Go
// functions on goroutines. It backs go:-prefixed module references and gives
// embedders and tests a runtime with no external dependencies.
package inproc

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/spindlehq/spindle/internal/model"
	"github.com/spindlehq/spindle/internal/runtime"
)

// MaxConcurrentWorkers is the advertised concurrency bound.
const MaxConcurrentWorkers = 128

// WorkerFunc is a long-running in-process worker. It should return when ctx
// is cancelled; its error (or nil) becomes the worker's result.
type WorkerFunc func(ctx context.Context, emit func(line string)) error

// Runtime implements runtime.Runtime using goroutines.
type Runtime struct {
	logger *slog.Logger

	mu      sync.RWMutex
	workers map[string]WorkerFunc
}

// New creates an in-process runtime with no registered workers.
func New(logger *slog.Logger) *Runtime {
	return &Runtime{
		logger:  logger,
		workers: make(map[string]WorkerFunc),
	}
}

// RegisterWorker makes fn launchable under the module reference "go:<name>".
func (r *Runtime) RegisterWorker(name string, fn WorkerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers[name] = fn
}

// Names returns the registered worker names, sorted.
func (r *Runtime) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.workers))
	for name := range r.workers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Capabilities reports what this runtime supports.
func (r *Runtime) Capabilities() runtime.Capabilities {
	return runtime.Capabilities{
		Name:           "inproc",
		SupportedModes: []string{model.ModeModule},
		MaxConcurrency: MaxConcurrentWorkers,
	}
}

// Start launches the named worker function on a new goroutine.
func (r *Runtime) Start(_ context.Context, spec runtime.Spec) (runtime.Proc, error) {
	if spec.Mode != "" && spec.Mode != model.ModeModule {
		return nil, fmt.Errorf("in-process workers only support %s mode, got %q", model.ModeModule, spec.Mode)
	}

	name := strings.TrimPrefix(spec.Module, runtime.InprocPrefix)

	r.mu.RLock()
	fn, ok := r.workers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("in-process worker %q is not registered", name)
	}

	// The worker's lifetime is decoupled from the launch context; only
	// Terminate stops it.
	ctx, cancel := context.WithCancel(context.Background())
	p := &proc{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(p.done)
		err := fn(ctx, func(line string) {
			if spec.Output != nil {
				spec.Output(line)
			}
		})
		if err != nil && ctx.Err() == nil {
			r.logger.Warn("in-process worker failed",
				"worker_id", spec.ID, "name", name, "error", err)
			p.result = runtime.Result{ExitCode: 1, Error: err.Error()}
			return
		}
		p.result = runtime.Result{ExitCode: 0}
	}()

	return p, nil
}

// proc is the live handle to a goroutine worker.
type proc struct {
	cancel context.CancelFunc
	done   chan struct{}
	result runtime.Result
}

// Wait blocks until the worker function returns or ctx is done.
func (p *proc) Wait(ctx context.Context) (runtime.Result, error) {
	select {
	case <-p.done:
		return p.result, nil
	case <-ctx.Done():
		return runtime.Result{}, ctx.Err()
	}
}

// Terminate cancels the worker's context and waits for it to return.
func (p *proc) Terminate(ctx context.Context) error {
	p.cancel()
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pid returns 0; goroutine workers have no OS process of their own.
func (p *proc) Pid() int {
	return 0
}
