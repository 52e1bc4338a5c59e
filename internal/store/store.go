package store

import (
	"context"
	"errors"

	"github.com/spindlehq/spindle/internal/model"
)

// ErrInvalidTransition is returned when a worker status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrNotFound is returned when a worker is not found.
var ErrNotFound = errors.New("worker not found")

// WorkerStats holds aggregate launch statistics.
type WorkerStats struct {
	Total         int            `json:"total"`
	CountByStatus map[string]int `json:"count_by_status"`
	CountByKind   map[string]int `json:"count_by_kind"`
	AvgRunMS      float64        `json:"avg_run_ms"`
}

// Store defines the persistence operations for workers.
type Store interface {
	CreateWorker(ctx context.Context, w *model.Worker) error
	GetWorker(ctx context.Context, id string) (*model.Worker, error)
	ListWorkers(ctx context.Context, limit, offset int) ([]*model.Worker, int, error)
	UpdateWorkerStatus(ctx context.Context, id, status string) error
	UpdateWorker(ctx context.Context, w *model.Worker) error
	GetWorkerStats(ctx context.Context) (*WorkerStats, error)
	InsertOutputLine(ctx context.Context, workerID string, seq int, line string) error
	GetOutputLines(ctx context.Context, workerID string) ([]model.OutputLine, error)
	Close() error
}
