// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package daemon wires the hearthd components together and owns their
// startup and shutdown order.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tombee/hearth/internal/backup"
	"github.com/tombee/hearth/internal/config"
	"github.com/tombee/hearth/internal/daemon/api"
	"github.com/tombee/hearth/internal/daemon/backend"
	"github.com/tombee/hearth/internal/daemon/backend/memory"
	"github.com/tombee/hearth/internal/daemon/backend/sqlite"
	"github.com/tombee/hearth/internal/daemon/listener"
	"github.com/tombee/hearth/internal/daemon/scheduler"
	"github.com/tombee/hearth/internal/daemon/worker"
	"github.com/tombee/hearth/internal/lifecycle"
	internallog "github.com/tombee/hearth/internal/log"
	"github.com/tombee/hearth/internal/logsink"
	"github.com/tombee/hearth/internal/metrics"
	"github.com/tombee/hearth/internal/provision"
	"github.com/tombee/hearth/internal/registry"
	"github.com/tombee/hearth/internal/session"
	"github.com/tombee/hearth/internal/tasks"
	"github.com/tombee/hearth/internal/tracing"
)

// Options contains daemon options set at build time.
type Options struct {
	Version   string
	Commit    string
	BuildDate string
}

// Daemon is the main hearthd daemon.
type Daemon struct {
	cfg       *config.Config
	opts      Options
	logger    *slog.Logger
	server    *http.Server
	ln        net.Listener
	router    *api.Router
	handler   http.Handler
	tracer    *tracing.Provider
	workloads *api.WorkloadsHandler
	backend   backend.Backend
	mux       session.Multiplexer
	pool      *worker.Pool
	scheduler *scheduler.Scheduler
	pid       *pidFile

	mu      sync.Mutex
	started bool
}

// New creates a daemon and every component behind it. Persisted tasks and
// backup policies are registered with the scheduler here; the scheduler
// starts ticking in Start.
func New(ctx context.Context, cfg *config.Config, opts Options, logger *slog.Logger) (*Daemon, error) {
	logger = internallog.WithComponent(logger, "daemon")

	be, err := openBackend(cfg.Daemon.Backend)
	if err != nil {
		return nil, err
	}

	pool := worker.New(cfg.Daemon.MaxBackgroundJobs, logger)
	sched := scheduler.New(logger,
		scheduler.WithLocation(cfg.Daemon.Location()),
		scheduler.WithDispatcher(func(key string, job scheduler.Job) {
			if err := pool.Submit(jobKind(key), worker.Job(job)); err != nil {
				logger.Warn("dropping scheduled job", slog.String("key", key), internallog.Error(err))
			}
		}),
	)

	sink := logsink.New()
	mux := session.NewScreen(cfg.Daemon.Multiplexer.Binary, cfg.Daemon.Multiplexer.Wrapper, logger)
	ctrl := lifecycle.New(be, mux, sink, pool, logger, lifecycle.WithShell(cfg.Daemon.Shell))
	installer := provision.New(be, sink, pool, cfg.Daemon.Shell, logger)

	engine, err := tasks.NewEngine(ctx, be, sched, ctrl, logger)
	if err != nil {
		be.Close()
		return nil, fmt.Errorf("failed to create task engine: %w", err)
	}
	backups, err := backup.NewService(ctx, be, sched, pool, logger)
	if err != nil {
		be.Close()
		return nil, fmt.Errorf("failed to create backup service: %w", err)
	}
	reg := registry.New(be, cfg.Daemon.ServersDir, ctrl, engine, backups, logger)

	tracer, err := tracing.Setup(ctx, cfg.Daemon.Tracing, opts.Version, os.Stdout)
	if err != nil {
		be.Close()
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}

	workloads := api.NewWorkloadsHandler(reg, ctrl, installer, api.ConsoleLimits{
		Rate:  cfg.Daemon.Console.Rate,
		Burst: cfg.Daemon.Console.Burst,
	}, logger)
	router := api.NewRouter(api.RouterConfig{
		Version:   opts.Version,
		Commit:    opts.Commit,
		BuildDate: opts.BuildDate,
	}, logger)
	router.Register(
		workloads,
		api.NewTasksHandler(engine),
		api.NewBackupHandler(backups),
		api.NewSchedulesHandler(sched),
	)
	if cfg.Daemon.Metrics.Enabled {
		router.SetMetricsHandler(metrics.Handler())
	}

	return &Daemon{
		cfg:       cfg,
		opts:      opts,
		logger:    logger,
		router:    router,
		handler:   tracing.Middleware(router),
		tracer:    tracer,
		workloads: workloads,
		backend:   be,
		mux:       mux,
		pool:      pool,
		scheduler: sched,
	}, nil
}

func openBackend(cfg config.BackendConfig) (backend.Backend, error) {
	switch cfg.Type {
	case config.BackendMemory:
		return memory.New(), nil
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		be, err := sqlite.New(sqlite.Config{Path: cfg.SQLite.Path, WAL: cfg.SQLite.WAL})
		if err != nil {
			return nil, fmt.Errorf("failed to create sqlite backend: %w", err)
		}
		return be, nil
	}
}

// jobKind labels scheduler keys for the worker pool, e.g. "task" for
// "task:survival:1".
func jobKind(key string) string {
	kind, _, _ := strings.Cut(key, ":")
	return kind
}

// Handler returns the API handler. Used by tests.
func (d *Daemon) Handler() http.Handler {
	return d.handler
}

// Start opens the listener, starts the scheduler, and serves the API until
// Shutdown is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return errors.New("daemon already started")
	}

	if err := os.MkdirAll(d.cfg.Daemon.ServersDir, 0o755); err != nil {
		d.mu.Unlock()
		return fmt.Errorf("failed to create servers directory: %w", err)
	}

	if d.cfg.Daemon.PIDFile != "" {
		pid, err := acquirePIDFile(d.cfg.Daemon.PIDFile)
		if err != nil {
			d.mu.Unlock()
			return err
		}
		d.pid = pid
	}

	ln, err := listener.New(d.cfg.Daemon.Listen)
	if err != nil {
		d.pid.release()
		d.pid = nil
		d.mu.Unlock()
		return fmt.Errorf("failed to create listener: %w", err)
	}
	d.ln = ln

	d.server = &http.Server{
		Handler:           d.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		// No WriteTimeout: stop can take over half a minute and log
		// streams stay open until the client leaves.
	}
	d.server.RegisterOnShutdown(d.workloads.CloseStreams)

	d.checkMultiplexer(ctx)

	d.scheduler.Start(ctx)
	d.started = true
	server := d.server
	d.mu.Unlock()

	d.logger.Info("hearthd starting",
		slog.String("version", d.opts.Version),
		slog.String("listen_addr", ln.Addr().String()),
		slog.Int("schedule_count", d.scheduler.Len()))

	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// checkMultiplexer warns early when the session tool is unusable. The daemon
// still serves; lifecycle calls fail until the tool is installed.
func (d *Daemon) checkMultiplexer(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := d.mux.List(ctx); err != nil {
		d.logger.Error("session multiplexer unavailable",
			slog.String("binary", d.cfg.Daemon.Multiplexer.Binary),
			internallog.Error(err))
	}
}

// Shutdown stops the API server, the scheduler, and the worker pool, then
// closes the backend and flushes traces. Running workload sessions are left
// alone.
func (d *Daemon) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return nil
	}

	d.logger.Info("graceful shutdown initiated",
		slog.Int("pending_jobs", d.pool.Pending()))

	// Shutdown HTTP server so no new work arrives.
	if d.server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, d.cfg.Daemon.ShutdownTimeout)
		defer cancel()

		if err := d.server.Shutdown(shutdownCtx); err != nil {
			d.logger.Error("HTTP server shutdown error",
				internallog.Error(err))
		}
	}

	d.scheduler.Stop()

	d.pool.StartDraining()
	if err := d.pool.WaitForDrain(ctx, d.cfg.Daemon.DrainTimeout); err != nil {
		d.logger.Warn("drain timeout exceeded",
			slog.Int("remaining_jobs", d.pool.Pending()),
			slog.Duration("drain_timeout", d.cfg.Daemon.DrainTimeout))
	} else {
		d.logger.Info("all background jobs completed during drain")
	}

	if err := d.backend.Close(); err != nil {
		d.logger.Error("failed to close backend",
			internallog.Error(err))
	}

	if err := d.tracer.Shutdown(ctx); err != nil {
		d.logger.Warn("failed to flush traces", internallog.Error(err))
	}

	if err := d.pid.release(); err != nil {
		d.logger.Error("failed to remove PID file",
			internallog.Error(err),
			slog.String("path", d.cfg.Daemon.PIDFile))
	}
	d.pid = nil

	// Clean up Unix socket file if it exists
	if d.cfg.Daemon.Listen.TCPAddr == "" && d.cfg.Daemon.Listen.SocketPath != "" {
		if err := os.Remove(d.cfg.Daemon.Listen.SocketPath); err != nil && !os.IsNotExist(err) {
			d.logger.Error("failed to remove socket file",
				internallog.Error(err),
				slog.String("path", d.cfg.Daemon.Listen.SocketPath))
		}
	}

	d.started = false
	d.logger.Info("daemon stopped")
	return nil
}
