package launcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// scopeDrainTimeout bounds how long a failing scope waits for terminated
// workers to go away.
const scopeDrainTimeout = 10 * time.Second

// Scope launches workers whose lifetime is bounded by a RunScope call.
type Scope struct {
	launcher *Launcher
	group    *errgroup.Group
	ctx      context.Context

	mu      sync.Mutex
	handles []*Handle
}

// RunScope runs fn with a Scope. Workers launched through the scope are
// joined before RunScope returns. If fn returns an error, any scope worker
// fails, or ctx is cancelled, the remaining scope workers are terminated;
// no scope worker outlives the call.
func (l *Launcher) RunScope(ctx context.Context, fn func(s *Scope) error) error {
	group, gctx := errgroup.WithContext(ctx)
	s := &Scope{
		launcher: l,
		group:    group,
		ctx:      gctx,
	}

	fnErr := fn(s)
	if fnErr != nil {
		s.terminateAll()
	}

	waitErr := s.group.Wait()
	if waitErr != nil {
		// A worker failed or the context was cancelled; stop the rest.
		s.terminateAll()
		s.drain()
	}

	if fnErr != nil {
		return fnErr
	}
	return waitErr
}

// Launch starts a worker bound to the scope.
func (s *Scope) Launch(req LaunchRequest) (*Handle, error) {
	h, err := s.launcher.Launch(s.ctx, req)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.handles = append(s.handles, h)
	s.mu.Unlock()

	s.group.Go(func() error {
		result, err := h.Wait(s.ctx)
		if err != nil {
			return err
		}
		if result.ExitCode != 0 {
			return fmt.Errorf("worker %s exited with code %d: %s", h.ID(), result.ExitCode, result.Error)
		}
		return nil
	})

	return h, nil
}

// terminateAll stops every worker launched in the scope.
func (s *Scope) terminateAll() {
	s.mu.Lock()
	handles := append([]*Handle(nil), s.handles...)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), scopeDrainTimeout)
	defer cancel()
	for _, h := range handles {
		if err := h.Terminate(ctx); err != nil {
			s.launcher.logger.Error("failed to terminate scope worker",
				"worker_id", h.ID(), "error", err)
		}
	}
}

// drain waits for all scope workers to finish after termination.
func (s *Scope) drain() {
	s.mu.Lock()
	handles := append([]*Handle(nil), s.handles...)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), scopeDrainTimeout)
	defer cancel()
	for _, h := range handles {
		select {
		case <-h.Done():
		case <-ctx.Done():
			return
		}
	}
}
