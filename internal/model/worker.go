package model

import "time"

// Worker status constants.
const (
	StatusPending    = "pending"
	StatusRunning    = "running"
	StatusExited     = "exited"
	StatusFailed     = "failed"
	StatusTerminated = "terminated"
)

// Execution mode constants. A module-mode worker runs its code as an
// importable module; a classic worker runs it as a flat script.
const (
	ModeModule  = "module"
	ModeClassic = "classic"
)

// Runtime kind constants.
const (
	KindProcess = "process"
	KindInproc  = "inproc"
	KindAuto    = "auto"
)

// validTransitions maps each status to the set of statuses it may transition to.
var validTransitions = map[string]map[string]bool{
	StatusPending: {
		StatusRunning:    true,
		StatusFailed:     true,
		StatusTerminated: true,
	},
	StatusRunning: {
		StatusExited:     true,
		StatusFailed:     true,
		StatusTerminated: true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Terminal reports whether a status is terminal (the worker will not change
// status again).
func Terminal(status string) bool {
	return status == StatusExited || status == StatusFailed || status == StatusTerminated
}

// OutputLine is a single persisted line of worker output.
type OutputLine struct {
	ID        int64     `json:"id"`
	WorkerID  string    `json:"worker_id"`
	Seq       int       `json:"seq"`
	Line      string    `json:"line"`
	CreatedAt time.Time `json:"created_at"`
}

// Worker is the record of a launched background worker.
type Worker struct {
	ID         string     `json:"id"`
	Label      string     `json:"label"`
	Module     string     `json:"module"`
	Mode       string     `json:"mode"`
	Kind       string     `json:"kind"`
	Status     string     `json:"status"`
	Nonce      string     `json:"-"`
	PID        *int       `json:"pid,omitempty"`
	ExitCode   *int       `json:"exit_code,omitempty"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
