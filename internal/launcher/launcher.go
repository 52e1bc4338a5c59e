package launcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/spindlehq/spindle/internal/model"
	"github.com/spindlehq/spindle/internal/module"
	"github.com/spindlehq/spindle/internal/runtime"
	"github.com/spindlehq/spindle/internal/store"
	"github.com/spindlehq/spindle/internal/telemetry"
)

// DefaultLabel is the fixed diagnostic label attached to the singleton
// worker started by StartWorker.
const DefaultLabel = "spindle-worker"

// LaunchRequest describes a worker to launch.
type LaunchRequest struct {
	Module string            `json:"module"`
	Label  string            `json:"label,omitempty"`
	Mode   string            `json:"mode,omitempty"`
	Kind   string            `json:"kind,omitempty"`
	Env    map[string]string `json:"env,omitempty"`
}

// Options configures the singleton worker started by StartWorker.
type Options struct {
	// Label overrides DefaultLabel.
	Label string

	// DefaultModule overrides module.DefaultModule as the singleton's
	// module reference.
	DefaultModule string
}

// Launcher starts background workers, tracks their lifecycle in the store,
// and owns the single-slot holder for the singleton worker.
type Launcher struct {
	store    store.Store
	registry *runtime.Registry
	locator  *module.Locator
	logger   *slog.Logger
	tracer   trace.Tracer

	label         string
	defaultModule string

	holder Holder
	broker *Broker
	wg     sync.WaitGroup

	mu     sync.Mutex
	active map[string]*Handle
}

// New creates a launcher.
func New(s store.Store, reg *runtime.Registry, loc *module.Locator, logger *slog.Logger, opts Options) *Launcher {
	label := opts.Label
	if label == "" {
		label = DefaultLabel
	}
	defaultModule := opts.DefaultModule
	if defaultModule == "" {
		defaultModule = module.DefaultModule
	}

	return &Launcher{
		store:         s,
		registry:      reg,
		locator:       loc,
		logger:        logger,
		tracer:        telemetry.Tracer("launcher"),
		label:         label,
		defaultModule: defaultModule,
		broker:        NewBroker(),
		active:        make(map[string]*Handle),
	}
}

// Lookup returns the live handle for a worker that is still running, or nil.
func (l *Launcher) Lookup(id string) *Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active[id]
}

// Broker returns the launcher's output broker for streaming subscription.
func (l *Launcher) Broker() *Broker {
	return l.broker
}

// StartWorker launches the configured worker module with module execution
// semantics and the fixed label, stores the handle as the current singleton
// worker (unconditionally replacing any previous one, which keeps running),
// and returns the handle. On launch failure the stored handle is untouched
// and the failure is returned to the caller.
func (l *Launcher) StartWorker(ctx context.Context) (*Handle, error) {
	h, err := l.Launch(ctx, LaunchRequest{
		Module: l.defaultModule,
		Label:  l.label,
		Mode:   model.ModeModule,
	})
	if err != nil {
		return nil, err
	}

	if prev := l.holder.Replace(h); prev != nil {
		l.logger.Info("singleton worker replaced",
			"worker_id", h.ID(), "previous_id", prev.ID())
	}
	return h, nil
}

// Current returns the handle most recently stored by StartWorker, or nil.
func (l *Launcher) Current() *Handle {
	return l.holder.Current()
}

// Launch starts a worker, persists its record, and begins watching its
// lifecycle. It returns as soon as the spawn has been issued; it does not
// wait for the worker to become ready.
func (l *Launcher) Launch(ctx context.Context, req LaunchRequest) (*Handle, error) {
	ctx, span := l.tracer.Start(ctx, "launcher.launch",
		trace.WithAttributes(
			attribute.String("worker.module", req.Module),
			attribute.String("worker.mode", req.Mode),
		))
	defer span.End()

	if req.Module == "" {
		return nil, fmt.Errorf("launch: module reference is required")
	}

	mode := req.Mode
	if mode == "" {
		mode = model.ModeModule
	}

	rt, kind, err := l.registry.Resolve(req.Kind, req.Module)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("resolve runtime: %w", err)
	}

	// File-backed modules resolve against the module root; in-process
	// references name registered functions directly.
	path := req.Module
	if kind == model.KindProcess {
		path, err = l.locator.Resolve(req.Module)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("resolve module: %w", err)
		}
	}

	w := &model.Worker{
		ID:        model.NewID(),
		Label:     req.Label,
		Module:    req.Module,
		Mode:      mode,
		Kind:      kind,
		Status:    model.StatusPending,
		Nonce:     uuid.Must(uuid.NewV7()).String(),
		CreatedAt: time.Now().UTC(),
	}
	if w.Label == "" {
		w.Label = defaultLabelFor(req.Module)
	}
	span.SetAttributes(attribute.String("worker.id", w.ID))

	if err := l.store.CreateWorker(ctx, w); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("create worker record: %w", err)
	}

	var seq atomic.Int32
	spec := runtime.Spec{
		ID:     w.ID,
		Label:  w.Label,
		Module: path,
		Mode:   mode,
		Nonce:  w.Nonce,
		Env:    req.Env,
	}
	// Dual-write: persist for later viewing, publish for live streams.
	spec.Output = func(line string) {
		currentSeq := int(seq.Add(1) - 1)
		if err := l.store.InsertOutputLine(context.Background(), w.ID, currentSeq, line); err != nil {
			l.logger.Error("failed to persist output line",
				"worker_id", w.ID, "seq", currentSeq, "error", err)
		}
		l.broker.Publish(w.ID, line)
	}

	proc, err := rt.Start(ctx, spec)
	if err != nil {
		// The spawn failure itself propagates to the caller untranslated;
		// the persisted record is marked failed for observers.
		l.finishFailed(w, nil, err.Error())
		span.RecordError(err)
		return nil, fmt.Errorf("start worker: %w", err)
	}

	start := time.Now()
	if err := l.store.UpdateWorkerStatus(ctx, w.ID, model.StatusRunning); err != nil {
		l.logger.Error("failed to transition to running", "worker_id", w.ID, "error", err)
	}

	telemetry.WorkersStarted.WithLabelValues(kind).Inc()
	telemetry.WorkersActive.WithLabelValues(kind).Inc()
	l.logger.Info("worker started",
		"worker_id", w.ID, "label", w.Label, "module", w.Module,
		"mode", mode, "kind", kind, "pid", proc.Pid())

	h := &Handle{
		id:     w.ID,
		label:  w.Label,
		module: w.Module,
		mode:   mode,
		kind:   kind,
		proc:   proc,
		done:   make(chan struct{}),
	}

	l.mu.Lock()
	l.active[w.ID] = h
	l.mu.Unlock()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.watch(h, w, start)
	}()

	return h, nil
}

// Wait blocks until all watcher goroutines for launched workers complete.
func (l *Launcher) Wait() {
	l.wg.Wait()
}

// Shutdown terminates every active worker and waits for their final state to
// be recorded. Used on daemon exit so no worker process outlives the service.
func (l *Launcher) Shutdown(ctx context.Context) {
	l.mu.Lock()
	handles := make([]*Handle, 0, len(l.active))
	for _, h := range l.active {
		handles = append(handles, h)
	}
	l.mu.Unlock()

	for _, h := range handles {
		if err := h.Terminate(ctx); err != nil {
			l.logger.Error("failed to terminate worker on shutdown",
				"worker_id", h.ID(), "error", err)
		}
	}
	l.wg.Wait()
}

// watch observes a worker until it finishes, then records its final state.
func (l *Launcher) watch(h *Handle, w *model.Worker, start time.Time) {
	result, err := h.proc.Wait(context.Background())
	if err != nil {
		result = runtime.Result{ExitCode: -1, Error: err.Error()}
	}

	status := model.StatusExited
	switch {
	case h.wasTerminated():
		status = model.StatusTerminated
	case err != nil || result.ExitCode != 0:
		status = model.StatusFailed
	}

	now := time.Now().UTC()
	pid := h.proc.Pid()
	final := &model.Worker{
		ID:         w.ID,
		Status:     status,
		PID:        &pid,
		ExitCode:   &result.ExitCode,
		Error:      result.Error,
		StartedAt:  &start,
		FinishedAt: &now,
	}
	if err := l.store.UpdateWorker(context.Background(), final); err != nil {
		l.logger.Error("failed to record worker result", "worker_id", w.ID, "error", err)
	}

	telemetry.WorkersActive.WithLabelValues(w.Kind).Dec()
	telemetry.WorkersFinished.WithLabelValues(w.Kind, status).Inc()
	telemetry.WorkerRunDuration.WithLabelValues(w.Kind).Observe(time.Since(start).Seconds())
	l.logger.Info("worker finished",
		"worker_id", w.ID, "status", status, "exit_code", result.ExitCode,
		"duration_ms", time.Since(start).Milliseconds())

	l.mu.Lock()
	delete(l.active, w.ID)
	l.mu.Unlock()

	h.finish(result)
	l.broker.Close(w.ID)
}

// finishFailed marks a worker that never started as failed.
func (l *Launcher) finishFailed(w *model.Worker, startedAt *time.Time, errMsg string) {
	now := time.Now().UTC()
	failed := &model.Worker{
		ID:         w.ID,
		Status:     model.StatusFailed,
		Error:      errMsg,
		StartedAt:  startedAt,
		FinishedAt: &now,
	}
	if err := l.store.UpdateWorker(context.Background(), failed); err != nil {
		l.logger.Error("failed to record launch failure", "worker_id", w.ID, "error", err)
	}
	l.broker.Close(w.ID)
}

// defaultLabelFor derives a label from a module reference when none is given.
func defaultLabelFor(ref string) string {
	if strings.HasPrefix(ref, runtime.InprocPrefix) {
		return strings.TrimPrefix(ref, runtime.InprocPrefix)
	}
	base := filepath.Base(ref)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
