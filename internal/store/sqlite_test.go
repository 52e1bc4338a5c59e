package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/spindlehq/spindle/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func makeTestWorker() *model.Worker {
	return &model.Worker{
		ID:        model.NewID(),
		Label:     "spindle-worker",
		Module:    "worker.mjs",
		Mode:      model.ModeModule,
		Kind:      model.KindProcess,
		Status:    model.StatusPending,
		Nonce:     "nonce-1",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestCreateAndGetWorker(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	w := makeTestWorker()

	if err := s.CreateWorker(ctx, w); err != nil {
		t.Fatalf("CreateWorker: %v", err)
	}

	got, err := s.GetWorker(ctx, w.ID)
	if err != nil {
		t.Fatalf("GetWorker: %v", err)
	}

	if got.ID != w.ID {
		t.Errorf("ID = %q, want %q", got.ID, w.ID)
	}
	if got.Label != w.Label {
		t.Errorf("Label = %q, want %q", got.Label, w.Label)
	}
	if got.Module != w.Module {
		t.Errorf("Module = %q, want %q", got.Module, w.Module)
	}
	if got.Mode != w.Mode {
		t.Errorf("Mode = %q, want %q", got.Mode, w.Mode)
	}
	if got.Status != w.Status {
		t.Errorf("Status = %q, want %q", got.Status, w.Status)
	}
	if got.Nonce != w.Nonce {
		t.Errorf("Nonce = %q, want %q", got.Nonce, w.Nonce)
	}
}

func TestGetWorkerNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetWorker(context.Background(), "nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetWorker error = %v, want ErrNotFound", err)
	}
}

func TestListWorkersPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		w := makeTestWorker()
		w.Label = fmt.Sprintf("worker-%d", i)
		w.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Second)
		if err := s.CreateWorker(ctx, w); err != nil {
			t.Fatalf("CreateWorker[%d]: %v", i, err)
		}
	}

	workers, total, err := s.ListWorkers(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListWorkers: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(workers) != 2 {
		t.Fatalf("len(workers) = %d, want 2", len(workers))
	}
	// Newest first.
	if workers[0].Label != "worker-4" {
		t.Errorf("first worker = %q, want worker-4", workers[0].Label)
	}

	workers, _, err = s.ListWorkers(ctx, 2, 4)
	if err != nil {
		t.Fatalf("ListWorkers offset: %v", err)
	}
	if len(workers) != 1 {
		t.Errorf("len(workers) at offset 4 = %d, want 1", len(workers))
	}
}

func TestUpdateWorkerStatusTransitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	w := makeTestWorker()
	if err := s.CreateWorker(ctx, w); err != nil {
		t.Fatalf("CreateWorker: %v", err)
	}

	if err := s.UpdateWorkerStatus(ctx, w.ID, model.StatusRunning); err != nil {
		t.Fatalf("pending->running: %v", err)
	}

	got, _ := s.GetWorker(ctx, w.ID)
	if got.Status != model.StatusRunning {
		t.Errorf("status = %q, want running", got.Status)
	}
	if got.StartedAt == nil {
		t.Error("started_at not set on running transition")
	}

	if err := s.UpdateWorkerStatus(ctx, w.ID, model.StatusExited); err != nil {
		t.Fatalf("running->exited: %v", err)
	}

	got, _ = s.GetWorker(ctx, w.ID)
	if got.FinishedAt == nil {
		t.Error("finished_at not set on terminal transition")
	}
}

func TestUpdateWorkerStatusInvalidTransition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	w := makeTestWorker()
	if err := s.CreateWorker(ctx, w); err != nil {
		t.Fatalf("CreateWorker: %v", err)
	}

	err := s.UpdateWorkerStatus(ctx, w.ID, model.StatusExited)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("pending->exited error = %v, want ErrInvalidTransition", err)
	}
}

func TestUpdateWorkerStatusNotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateWorkerStatus(context.Background(), "nonexistent", model.StatusRunning)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestUpdateWorker(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	w := makeTestWorker()
	if err := s.CreateWorker(ctx, w); err != nil {
		t.Fatalf("CreateWorker: %v", err)
	}

	pid := 4242
	code := 1
	now := time.Now().UTC()
	w.Status = model.StatusFailed
	w.PID = &pid
	w.ExitCode = &code
	w.Error = "worker crashed"
	w.StartedAt = &now
	w.FinishedAt = &now

	if err := s.UpdateWorker(ctx, w); err != nil {
		t.Fatalf("UpdateWorker: %v", err)
	}

	got, _ := s.GetWorker(ctx, w.ID)
	if got.Status != model.StatusFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
	if got.PID == nil || *got.PID != pid {
		t.Errorf("pid = %v, want %d", got.PID, pid)
	}
	if got.ExitCode == nil || *got.ExitCode != code {
		t.Errorf("exit_code = %v, want %d", got.ExitCode, code)
	}
	if got.Error != "worker crashed" {
		t.Errorf("error = %q, want %q", got.Error, "worker crashed")
	}
}

func TestUpdateWorkerNotFound(t *testing.T) {
	s := newTestStore(t)
	w := makeTestWorker()

	err := s.UpdateWorker(context.Background(), w)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestGetWorkerStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		w := makeTestWorker()
		if err := s.CreateWorker(ctx, w); err != nil {
			t.Fatalf("CreateWorker: %v", err)
		}
		if i == 0 {
			if err := s.UpdateWorkerStatus(ctx, w.ID, model.StatusRunning); err != nil {
				t.Fatalf("UpdateWorkerStatus: %v", err)
			}
		}
	}

	stats, err := s.GetWorkerStats(ctx)
	if err != nil {
		t.Fatalf("GetWorkerStats: %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("total = %d, want 3", stats.Total)
	}
	if stats.CountByStatus[model.StatusPending] != 2 {
		t.Errorf("pending count = %d, want 2", stats.CountByStatus[model.StatusPending])
	}
	if stats.CountByStatus[model.StatusRunning] != 1 {
		t.Errorf("running count = %d, want 1", stats.CountByStatus[model.StatusRunning])
	}
	if stats.CountByKind[model.KindProcess] != 3 {
		t.Errorf("process count = %d, want 3", stats.CountByKind[model.KindProcess])
	}
}

func TestOutputLines(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	w := makeTestWorker()
	if err := s.CreateWorker(ctx, w); err != nil {
		t.Fatalf("CreateWorker: %v", err)
	}

	for i, line := range []string{"first", "second", "third"} {
		if err := s.InsertOutputLine(ctx, w.ID, i, line); err != nil {
			t.Fatalf("InsertOutputLine[%d]: %v", i, err)
		}
	}

	lines, err := s.GetOutputLines(ctx, w.ID)
	if err != nil {
		t.Fatalf("GetOutputLines: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
	for i, want := range []string{"first", "second", "third"} {
		if lines[i].Seq != i {
			t.Errorf("lines[%d].Seq = %d, want %d", i, lines[i].Seq, i)
		}
		if lines[i].Line != want {
			t.Errorf("lines[%d].Line = %q, want %q", i, lines[i].Line, want)
		}
	}
}

func TestGetOutputLinesEmpty(t *testing.T) {
	s := newTestStore(t)

	lines, err := s.GetOutputLines(context.Background(), "no-such-worker")
	if err != nil {
		t.Fatalf("GetOutputLines: %v", err)
	}
	if len(lines) != 0 {
		t.Errorf("len(lines) = %d, want 0", len(lines))
	}
}
