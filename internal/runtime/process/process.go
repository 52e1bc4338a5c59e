// Package process implements the worker runtime that executes module files
// as child OS processes. The interpreter is chosen from the module file
// extension; worker stdout is decoded with the worker wire protocol and
// stderr is forwarded line by line.
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spindlehq/spindle/internal/model"
	"github.com/spindlehq/spindle/internal/protocol"
	"github.com/spindlehq/spindle/internal/runtime"
)

const (
	// MaxConcurrentWorkers is the advertised concurrency bound.
	MaxConcurrentWorkers = 32

	// gracePeriod is the time allowed between SIGTERM and SIGKILL on terminate.
	gracePeriod = 3 * time.Second
)

// interpreters maps module file extensions to the command that runs them.
// Modules without a matching extension are executed directly.
var interpreters = map[string]string{
	".mjs": "node",
	".js":  "node",
	".py":  "python3",
}

// modeArgs returns extra interpreter arguments implementing the execution
// mode. Only node distinguishes module from classic execution.
func modeArgs(interp, mode string) []string {
	if interp != "node" {
		return nil
	}
	switch mode {
	case model.ModeModule:
		return []string{"--experimental-default-type=module"}
	case model.ModeClassic:
		return []string{"--experimental-default-type=commonjs"}
	default:
		return nil
	}
}

// Runtime implements runtime.Runtime using child processes.
type Runtime struct {
	logger *slog.Logger

	mu     sync.Mutex
	active map[string]*proc // spec ID → running proc
}

// New creates a process runtime.
func New(logger *slog.Logger) *Runtime {
	return &Runtime{
		logger: logger,
		active: make(map[string]*proc),
	}
}

// Capabilities reports what this runtime supports.
func (r *Runtime) Capabilities() runtime.Capabilities {
	return runtime.Capabilities{
		Name:           "process",
		SupportedModes: []string{model.ModeModule, model.ModeClassic},
		MaxConcurrency: MaxConcurrentWorkers,
	}
}

// Start launches the module as a child process. It returns as soon as the
// process has been started; it does not wait for the worker's ready message.
func (r *Runtime) Start(ctx context.Context, spec runtime.Spec) (runtime.Proc, error) {
	argv := buildArgv(spec)

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = filepath.Dir(spec.Module)
	cmd.Env = append(os.Environ(), protocol.NonceEnv+"="+spec.Nonce)
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", argv[0], err)
	}

	p := &proc{
		cmd:  cmd,
		done: make(chan struct{}),
	}

	r.mu.Lock()
	r.active[spec.ID] = p
	r.mu.Unlock()

	var scans sync.WaitGroup
	scans.Add(2)
	go func() {
		defer scans.Done()
		r.scanStdout(spec, stdout)
	}()
	go func() {
		defer scans.Done()
		scan := bufio.NewScanner(stderr)
		scan.Buffer(make([]byte, 0, 64*1024), protocol.MaxLineSize)
		for scan.Scan() {
			if spec.Output != nil {
				spec.Output(scan.Text())
			}
		}
	}()

	go func() {
		// Both pipes must be drained before Wait releases them.
		scans.Wait()
		err := cmd.Wait()
		p.finish(err)

		r.mu.Lock()
		delete(r.active, spec.ID)
		r.mu.Unlock()
	}()

	return p, nil
}

// scanStdout decodes protocol messages from the worker's stdout.
func (r *Runtime) scanStdout(spec runtime.Spec, stdout io.Reader) {
	scan := bufio.NewScanner(stdout)
	scan.Buffer(make([]byte, 0, 64*1024), protocol.MaxLineSize)
	for scan.Scan() {
		msg := protocol.DecodeLine(scan.Bytes())
		switch msg.Type {
		case protocol.MsgTypeReady:
			if msg.Nonce != spec.Nonce {
				r.logger.Warn("worker ready with mismatched nonce",
					"worker_id", spec.ID, "label", spec.Label)
				continue
			}
			r.logger.Info("worker ready", "worker_id", spec.ID, "label", spec.Label)
		case protocol.MsgTypeExit:
			r.logger.Info("worker announced exit",
				"worker_id", spec.ID, "code", msg.Code)
		case protocol.MsgTypeLog:
			if spec.Output != nil {
				spec.Output(msg.Line)
			}
		}
	}
}

// buildArgv assembles the command line for a module.
func buildArgv(spec runtime.Spec) []string {
	interp, ok := interpreters[filepath.Ext(spec.Module)]
	if !ok {
		return []string{spec.Module}
	}

	argv := []string{interp}
	argv = append(argv, modeArgs(interp, spec.Mode)...)
	return append(argv, spec.Module)
}

// proc is the live handle to a worker child process.
type proc struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu     sync.Mutex
	result runtime.Result
	err    error
}

func (p *proc) finish(waitErr error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		p.result = runtime.Result{ExitCode: 0}
	case errors.As(waitErr, &exitErr):
		p.result = runtime.Result{
			ExitCode: exitErr.ExitCode(),
			Error:    waitErr.Error(),
		}
	default:
		p.err = waitErr
	}

	close(p.done)
}

// Wait blocks until the process exits or ctx is done.
func (p *proc) Wait(ctx context.Context) (runtime.Result, error) {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.result, p.err
	case <-ctx.Done():
		return runtime.Result{}, ctx.Err()
	}
}

// Terminate sends SIGTERM and escalates to SIGKILL after the grace period.
func (p *proc) Terminate(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	default:
	}

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("signal worker: %w", err)
	}

	select {
	case <-p.done:
		return nil
	case <-time.After(gracePeriod):
	case <-ctx.Done():
	}

	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill worker: %w", err)
	}

	select {
	case <-p.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Pid returns the worker's OS process ID.
func (p *proc) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}
