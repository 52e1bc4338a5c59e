package runtime

import "context"

// Spec describes a worker to be started by a runtime.
type Spec struct {
	ID     string            `json:"id"`
	Label  string            `json:"label"`
	Module string            `json:"module"`
	Mode   string            `json:"mode"`
	Nonce  string            `json:"nonce"`
	Env    map[string]string `json:"env,omitempty"`

	// Output is an optional callback invoked once per line of worker output
	// as it is produced.
	Output func(line string) `json:"-"`
}

// Result holds the outcome of a finished worker.
type Result struct {
	ExitCode int    `json:"exit_code"`
	Error    string `json:"error,omitempty"`
}

// Capabilities describes what a runtime supports.
type Capabilities struct {
	Name           string   `json:"name"`
	SupportedModes []string `json:"supported_modes"`
	MaxConcurrency int      `json:"max_concurrency"`
}

// Runtime starts workers. Start issues the spawn and returns without waiting
// for the worker to become ready; readiness and completion are observed
// through the returned Proc.
type Runtime interface {
	Start(ctx context.Context, spec Spec) (Proc, error)
	Capabilities() Capabilities
}

// Proc is the live handle to a started worker: an explicitly acquired
// resource with an explicit release (Terminate).
type Proc interface {
	// Wait blocks until the worker finishes or ctx is done.
	Wait(ctx context.Context) (Result, error)

	// Terminate stops the worker. It is safe to call after the worker has
	// already finished.
	Terminate(ctx context.Context) error

	// Pid returns the OS process ID, or 0 for workers without one.
	Pid() int
}
