package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spindlehq/spindle/internal/config"
	"github.com/spindlehq/spindle/internal/launcher"
	"github.com/spindlehq/spindle/internal/model"
	"github.com/spindlehq/spindle/internal/module"
	"github.com/spindlehq/spindle/internal/runtime"
	"github.com/spindlehq/spindle/internal/runtime/inproc"
	"github.com/spindlehq/spindle/internal/runtime/process"
	"github.com/spindlehq/spindle/internal/store"
)

// newTestServer builds a server backed by an in-memory store and a launcher
// whose singleton worker is an in-process function, so tests never spawn real
// OS processes.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	return newTestServerWithModule(t, "go:idle")
}

// newTestServerWithModule is newTestServer with a custom singleton module
// reference.
func newTestServerWithModule(t *testing.T, defaultModule string) *Server {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	ipr := inproc.New(logger)
	ipr.RegisterWorker("idle", func(_ context.Context, emit func(string)) error {
		emit("idle worker ran")
		return nil
	})
	ipr.RegisterWorker("forever", func(ctx context.Context, _ func(string)) error {
		<-ctx.Done()
		return ctx.Err()
	})

	reg := runtime.NewRegistry()
	reg.Register(model.KindInproc, ipr)
	reg.Register(model.KindProcess, process.New(logger))

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, module.DefaultModule), []byte("// worker\n"), 0o644); err != nil {
		t.Fatalf("write worker module: %v", err)
	}
	loc, err := module.NewLocator(dir)
	if err != nil {
		t.Fatalf("NewLocator: %v", err)
	}

	l := launcher.New(s, reg, loc, logger, launcher.Options{DefaultModule: defaultModule})
	t.Cleanup(l.Wait)

	return NewServer(config.ServerConfig{Addr: ":0"}, s, reg, l, logger)
}

func TestServerUsesConfiguredTimeouts(t *testing.T) {
	srv := newTestServer(t)
	srv.cfg = config.ServerConfig{
		Addr:            ":0",
		ReadTimeout:     7 * time.Second,
		WriteTimeout:    11 * time.Second,
		ShutdownTimeout: 3 * time.Second,
	}

	hs := srv.httpServer()
	if hs.ReadTimeout != 7*time.Second {
		t.Errorf("ReadTimeout = %v, want 7s", hs.ReadTimeout)
	}
	if hs.WriteTimeout != 11*time.Second {
		t.Errorf("WriteTimeout = %v, want 11s", hs.WriteTimeout)
	}
}

func TestServerDefaultTimeouts(t *testing.T) {
	srv := newTestServer(t)

	// Zero values in the config fall back to the package defaults.
	if srv.cfg.WriteTimeout != defaultWriteTimeout {
		t.Errorf("WriteTimeout = %v, want %v", srv.cfg.WriteTimeout, defaultWriteTimeout)
	}
	if srv.cfg.ShutdownTimeout != defaultShutdownTimeout {
		t.Errorf("ShutdownTimeout = %v, want %v", srv.cfg.ShutdownTimeout, defaultShutdownTimeout)
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t)
	srv.Router().Get("/test", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/test")
	if err != nil {
		t.Fatalf("GET /test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestPanicRecovery(t *testing.T) {
	srv := newTestServer(t)
	srv.Router().Get("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/panic")
	if err != nil {
		t.Fatalf("GET /panic: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestCORSHeaders(t *testing.T) {
	srv := newTestServer(t)
	srv.Router().Get("/test", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	req, _ := http.NewRequest("OPTIONS", ts.URL+"/test", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS /test: %v", err)
	}
	defer resp.Body.Close()

	if v := resp.Header.Get("Access-Control-Allow-Origin"); v != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", v, "*")
	}
}
