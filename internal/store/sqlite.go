package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/spindlehq/spindle/internal/model"

	_ "modernc.org/sqlite"
)

const createWorkersTable = `
CREATE TABLE IF NOT EXISTS workers (
    id          TEXT PRIMARY KEY,
    label       TEXT NOT NULL,
    module      TEXT NOT NULL,
    mode        TEXT NOT NULL,
    kind        TEXT NOT NULL,
    status      TEXT NOT NULL,
    nonce       TEXT,
    pid         INTEGER,
    exit_code   INTEGER,
    error       TEXT,
    created_at  DATETIME NOT NULL,
    started_at  DATETIME,
    finished_at DATETIME
)`

const createOutputTable = `
CREATE TABLE IF NOT EXISTS worker_output (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    worker_id  TEXT NOT NULL,
    seq        INTEGER NOT NULL,
    line       TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    UNIQUE (worker_id, seq)
)`

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and creates the schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, ddl := range []string{createWorkersTable, createOutputTable} {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateWorker inserts a new worker record.
func (s *SQLiteStore) CreateWorker(ctx context.Context, w *model.Worker) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workers (
			id, label, module, mode, kind, status, nonce,
			pid, exit_code, error, created_at, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.Label, w.Module, w.Mode, w.Kind, w.Status, w.Nonce,
		w.PID, w.ExitCode, w.Error, w.CreatedAt, w.StartedAt, w.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert worker: %w", err)
	}
	return nil
}

// GetWorker retrieves a worker by ID.
func (s *SQLiteStore) GetWorker(ctx context.Context, id string) (*model.Worker, error) {
	w := &model.Worker{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, label, module, mode, kind, status, nonce,
			pid, exit_code, error, created_at, started_at, finished_at
		FROM workers WHERE id = ?`, id,
	).Scan(
		&w.ID, &w.Label, &w.Module, &w.Mode, &w.Kind, &w.Status, &w.Nonce,
		&w.PID, &w.ExitCode, &w.Error, &w.CreatedAt, &w.StartedAt, &w.FinishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get worker: %w", err)
	}
	return w, nil
}

// ListWorkers returns a paginated list of workers ordered by created_at DESC,
// along with the total count of all workers.
func (s *SQLiteStore) ListWorkers(ctx context.Context, limit, offset int) ([]*model.Worker, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM workers").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count workers: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, label, module, mode, kind, status, nonce,
			pid, exit_code, error, created_at, started_at, finished_at
		FROM workers ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list workers: %w", err)
	}
	defer rows.Close()

	var workers []*model.Worker
	for rows.Next() {
		w := &model.Worker{}
		if err := rows.Scan(
			&w.ID, &w.Label, &w.Module, &w.Mode, &w.Kind, &w.Status, &w.Nonce,
			&w.PID, &w.ExitCode, &w.Error, &w.CreatedAt, &w.StartedAt, &w.FinishedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan worker: %w", err)
		}
		workers = append(workers, w)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate workers: %w", err)
	}

	return workers, total, nil
}

// UpdateWorkerStatus transitions a worker to the given status, enforcing the
// transition table. Terminal statuses also set finished_at.
func (s *SQLiteStore) UpdateWorkerStatus(ctx context.Context, id, status string) error {
	current, err := s.GetWorker(ctx, id)
	if err != nil {
		return err
	}
	if !model.ValidTransition(current.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, status)
	}

	var result sql.Result
	if model.Terminal(status) {
		result, err = s.db.ExecContext(ctx,
			"UPDATE workers SET status = ?, finished_at = ? WHERE id = ?",
			status, time.Now().UTC(), id,
		)
	} else if status == model.StatusRunning {
		result, err = s.db.ExecContext(ctx,
			"UPDATE workers SET status = ?, started_at = ? WHERE id = ?",
			status, time.Now().UTC(), id,
		)
	} else {
		result, err = s.db.ExecContext(ctx,
			"UPDATE workers SET status = ? WHERE id = ?",
			status, id,
		)
	}

	if err != nil {
		return fmt.Errorf("update worker status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// UpdateWorker overwrites the mutable fields of a worker record. Used when a
// worker reaches a terminal state with exit details to record.
func (s *SQLiteStore) UpdateWorker(ctx context.Context, w *model.Worker) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE workers SET
			status = ?, pid = ?, exit_code = ?, error = ?,
			started_at = ?, finished_at = ?
		WHERE id = ?`,
		w.Status, w.PID, w.ExitCode, w.Error,
		w.StartedAt, w.FinishedAt, w.ID,
	)
	if err != nil {
		return fmt.Errorf("update worker: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// GetWorkerStats computes aggregate statistics over all workers.
func (s *SQLiteStore) GetWorkerStats(ctx context.Context) (*WorkerStats, error) {
	stats := &WorkerStats{
		CountByStatus: make(map[string]int),
		CountByKind:   make(map[string]int),
	}

	rows, err := s.db.QueryContext(ctx, "SELECT status, kind, COUNT(*) FROM workers GROUP BY status, kind")
	if err != nil {
		return nil, fmt.Errorf("aggregate workers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status, kind string
		var count int
		if err := rows.Scan(&status, &kind, &count); err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		stats.Total += count
		stats.CountByStatus[status] += count
		stats.CountByKind[kind] += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregates: %w", err)
	}

	var avg sql.NullFloat64
	err = s.db.QueryRowContext(ctx,
		`SELECT AVG((julianday(finished_at) - julianday(started_at)) * 86400000.0)
		FROM workers WHERE started_at IS NOT NULL AND finished_at IS NOT NULL`,
	).Scan(&avg)
	if err != nil {
		return nil, fmt.Errorf("average run time: %w", err)
	}
	if avg.Valid {
		stats.AvgRunMS = avg.Float64
	}

	return stats, nil
}

// InsertOutputLine persists one line of worker output.
func (s *SQLiteStore) InsertOutputLine(ctx context.Context, workerID string, seq int, line string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO worker_output (worker_id, seq, line, created_at) VALUES (?, ?, ?, ?)",
		workerID, seq, line, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert output line: %w", err)
	}
	return nil
}

// GetOutputLines returns all persisted output for a worker in sequence order.
func (s *SQLiteStore) GetOutputLines(ctx context.Context, workerID string) ([]model.OutputLine, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, worker_id, seq, line, created_at FROM worker_output WHERE worker_id = ? ORDER BY seq ASC",
		workerID,
	)
	if err != nil {
		return nil, fmt.Errorf("get output lines: %w", err)
	}
	defer rows.Close()

	var lines []model.OutputLine
	for rows.Next() {
		var l model.OutputLine
		if err := rows.Scan(&l.ID, &l.WorkerID, &l.Seq, &l.Line, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan output line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate output lines: %w", err)
	}

	return lines, nil
}
