// Command spindle is the worker launch service. It resolves worker modules
// under a configured root, starts them as OS processes or in-process
// functions, and exposes the launch API over HTTP.
package main

import (
	"context"
	"log"
	"os"

	"github.com/spindlehq/spindle/internal/api"
	"github.com/spindlehq/spindle/internal/config"
	"github.com/spindlehq/spindle/internal/launcher"
	"github.com/spindlehq/spindle/internal/model"
	"github.com/spindlehq/spindle/internal/module"
	"github.com/spindlehq/spindle/internal/runtime"
	"github.com/spindlehq/spindle/internal/runtime/inproc"
	"github.com/spindlehq/spindle/internal/runtime/process"
	"github.com/spindlehq/spindle/internal/store"
	"github.com/spindlehq/spindle/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("spindle: starting",
		"listen_addr", cfg.Server.Addr,
		"db_path", cfg.Database.Path,
		"module_dir", cfg.Modules.Dir,
	)

	if cfg.Telemetry.Tracing.Enabled {
		shutdown, err := telemetry.SetupTracing(context.Background(),
			cfg.Telemetry.Tracing.Endpoint, cfg.Telemetry.Tracing.SampleRate)
		if err != nil {
			log.Fatalf("failed to set up tracing: %v", err)
		}
		defer shutdown(context.Background())
	}

	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	loc, err := module.NewLocator(cfg.Modules.Dir)
	if err != nil {
		log.Fatalf("failed to open module root: %v", err)
	}

	reg := runtime.NewRegistry()
	reg.Register(model.KindProcess, process.New(logger))
	reg.Register(model.KindInproc, inproc.New(logger))

	l := launcher.New(db, reg, loc, logger, launcher.Options{
		Label:         cfg.Worker.Label,
		DefaultModule: cfg.Worker.Module,
	})

	srv := api.NewServer(cfg.Server, db, reg, l, logger)

	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}

	// Stop any workers still running and record their final state.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	l.Shutdown(shutdownCtx)
}
