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

// Package lifecycle starts, stops, and restarts workloads inside detached
// multiplexer sessions.
//
// Start is asynchronous: it validates preconditions, hands the launch to a
// background worker, and returns. Stop blocks: it asks the workload to shut
// down, polls for the session to disappear, and falls back to terminating the
// session outright. Neither operation holds a process handle; liveness always
// comes from the session probe.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tombee/hearth/internal/daemon/backend"
	"github.com/tombee/hearth/internal/daemon/worker"
	"github.com/tombee/hearth/internal/log"
	"github.com/tombee/hearth/internal/logsink"
	"github.com/tombee/hearth/internal/metrics"
	"github.com/tombee/hearth/internal/session"
	"github.com/tombee/hearth/internal/tracing"
	"github.com/tombee/hearth/internal/workload"
)

// Stop and restart timing. These bound the observable difference between a
// graceful and a forced stop and are not configurable.
const (
	StopPollAttempts = 30
	StopPollInterval = time.Second
	ForceSettleDelay = 2 * time.Second
	RestartCooldown  = 5 * time.Second
)

// LogTag marks lines the controller writes into a workload log.
const LogTag = "Controller"

// Messages returned in successful Results.
const (
	MsgStarting   = "is starting"
	MsgRestarting = "is restarting"
	MsgGraceful   = "stopped gracefully"
	MsgForced     = "was unresponsive and has been force-quit"
)

// Result is the synchronous outcome of start, stop, and restart.
type Result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	// Forced is set when stop had to terminate the session.
	Forced bool `json:"forced,omitempty"`
}

// Submitter accepts fire-and-forget background jobs.
type Submitter interface {
	Submit(kind string, job worker.Job) error
}

type timing struct {
	pollAttempts int
	pollInterval time.Duration
	settle       time.Duration
	cooldown     time.Duration
}

var defaultTiming = timing{
	pollAttempts: StopPollAttempts,
	pollInterval: StopPollInterval,
	settle:       ForceSettleDelay,
	cooldown:     RestartCooldown,
}

// Controller runs lifecycle operations against workloads.
type Controller struct {
	store  backend.WorkloadStore
	mux    session.Multiplexer
	probe  *session.Probe
	sink   *logsink.Sink
	pool   Submitter
	shell  string
	logger *slog.Logger
	timing timing

	mu       sync.Mutex
	starting map[string]struct{}
}

// Option configures a Controller.
type Option func(*Controller)

// WithShell sets the shell used to run start commands. Default: bash.
func WithShell(shell string) Option {
	return func(c *Controller) {
		if shell != "" {
			c.shell = shell
		}
	}
}

// New creates a Controller.
func New(store backend.WorkloadStore, mux session.Multiplexer, sink *logsink.Sink, pool Submitter, logger *slog.Logger, opts ...Option) *Controller {
	logger = log.WithComponent(logger, "lifecycle")
	c := &Controller{
		store:    store,
		mux:      mux,
		probe:    session.NewProbe(mux, logger),
		sink:     sink,
		pool:     pool,
		shell:    "bash",
		logger:   logger,
		timing:   defaultTiming,
		starting: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsRunning reports whether the workload's session exists.
func (c *Controller) IsRunning(ctx context.Context, name string) bool {
	return c.probe.IsRunning(ctx, name)
}

// Status reports the observed state of a workload.
func (c *Controller) Status(ctx context.Context, name string) (workload.State, error) {
	if _, err := c.store.GetWorkload(ctx, name); err != nil {
		return "", err
	}
	if c.isStarting(name) {
		return workload.StateStarting, nil
	}
	if c.probe.IsRunning(ctx, name) {
		return workload.StateRunning, nil
	}
	return workload.StateStopped, nil
}

func (c *Controller) isStarting(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.starting[name]
	return ok
}

// claim marks name as starting. It fails if a start is already in flight.
func (c *Controller) claim(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.starting[name]; busy {
		return false
	}
	c.starting[name] = struct{}{}
	return true
}

func (c *Controller) release(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.starting, name)
}

func reject(op, name string, state workload.State, err error, detail string) (Result, error) {
	metrics.RecordLifecycle(op, metrics.OutcomeRejected)
	return Result{}, workload.NewOpError(op, name, state, err, detail)
}

// Start launches the workload's start commands in a new detached session.
// It returns as soon as the launch is queued; the session may not be
// visible yet. Launch failures are written to the workload log.
func (c *Controller) Start(ctx context.Context, name string) (res Result, err error) {
	ctx, span := tracing.Start(ctx, "lifecycle.start", name)
	defer func() { tracing.End(span, err) }()

	w, err := c.store.GetWorkload(ctx, name)
	if err != nil {
		return Result{}, err
	}

	if !c.claim(name) {
		return reject("start", name, workload.StateStarting, workload.ErrAlreadyRunning, "a start is already in progress")
	}
	if c.probe.IsRunning(ctx, name) {
		c.release(name)
		return reject("start", name, workload.StateRunning, workload.ErrAlreadyRunning, "session "+w.SessionName()+" exists")
	}
	if len(w.StartCommands) == 0 {
		c.release(name)
		return reject("start", name, workload.StateStopped, workload.ErrConfigurationMissing, "")
	}

	spec := session.LaunchSpec{
		Session: w.SessionName(),
		Dir:     w.WorkingDirectory,
		LogFile: w.LogPath(),
		Shell:   c.shell,
		Command: session.Chain(w.WorkingDirectory, w.StartCommands),
	}
	if err := c.pool.Submit("start", func(ctx context.Context) { c.launch(ctx, name, spec) }); err != nil {
		c.release(name)
		metrics.RecordLifecycle("start", metrics.OutcomeFailed)
		return Result{}, fmt.Errorf("queueing start of %s: %w", name, err)
	}

	metrics.RecordLifecycle("start", metrics.OutcomeOK)
	return Result{OK: true, Message: fmt.Sprintf("%s %s", name, MsgStarting)}, nil
}

func (c *Controller) launch(ctx context.Context, name string, spec session.LaunchSpec) {
	defer c.release(name)
	logger := log.WithWorkload(c.logger, name)

	ctx, span := tracing.Start(ctx, "lifecycle.launch", name)
	var err error
	defer func() { tracing.End(span, err) }()

	if err := c.sink.Prepare(spec.LogFile); err != nil {
		logger.Error("preparing log directory", log.Error(err))
	}

	start := time.Now()
	if err = c.mux.Launch(ctx, spec); err != nil {
		logger.Error("launching session failed", slog.String(log.SessionKey, spec.Session), log.Error(err))
		if werr := c.sink.Printf(spec.LogFile, LogTag, "failed to launch session: %v", err); werr != nil {
			logger.Error("writing workload log", log.Error(werr))
		}
		return
	}
	logger.Info("session launched", slog.String(log.SessionKey, spec.Session), log.Duration(time.Since(start)))
}

// Stop asks the workload to shut down and blocks until its session is gone.
// If the session survives the polling window it is terminated; if it
// survives that too, ErrForceStopFailed is returned.
func (c *Controller) Stop(ctx context.Context, name string) (res Result, err error) {
	ctx, span := tracing.Start(ctx, "lifecycle.stop", name)
	defer func() { tracing.End(span, err) }()

	w, err := c.store.GetWorkload(ctx, name)
	if err != nil {
		return Result{}, err
	}
	if !c.probe.IsRunning(ctx, name) {
		return reject("stop", name, workload.StateStopped, workload.ErrNotRunning, "")
	}

	logger := log.WithWorkload(c.logger, name)
	sess := w.SessionName()
	began := time.Now()

	if err := c.mux.Send(ctx, sess, "stop"); err != nil {
		if errors.Is(err, session.ErrNoSession) {
			return reject("stop", name, workload.StateStopped, workload.ErrNotRunning, "")
		}
		metrics.RecordLifecycle("stop", metrics.OutcomeFailed)
		return Result{}, fmt.Errorf("sending stop to %s: %w", name, err)
	}

	for i := 0; i < c.timing.pollAttempts; i++ {
		if !c.probe.IsRunning(ctx, name) {
			metrics.RecordLifecycle("stop", metrics.OutcomeOK)
			metrics.ObserveStop("graceful", time.Since(began))
			logger.Info("workload stopped gracefully", log.Duration(time.Since(began)))
			return Result{OK: true, Message: fmt.Sprintf("%s %s", name, MsgGraceful)}, nil
		}
		if err := sleep(ctx, c.timing.pollInterval); err != nil {
			return Result{}, err
		}
	}

	logger.Warn("workload did not stop in time, terminating session", slog.String(log.SessionKey, sess))
	if err := c.sink.Printf(w.LogPath(), LogTag, "server did not stop in time, terminating session"); err != nil {
		logger.Error("writing workload log", log.Error(err))
	}
	if err := c.mux.Quit(ctx, sess); err != nil && !errors.Is(err, session.ErrNoSession) {
		logger.Error("terminating session", log.Error(err))
	}
	if err := sleep(ctx, c.timing.settle); err != nil {
		return Result{}, err
	}

	if c.probe.IsRunning(ctx, name) {
		metrics.RecordLifecycle("stop", metrics.OutcomeFailed)
		logger.Error("session survived forced termination", slog.String(log.SessionKey, sess))
		return Result{}, workload.NewOpError("stop", name, workload.StateRunning, workload.ErrForceStopFailed, "manual intervention required")
	}

	metrics.RecordLifecycle("stop", metrics.OutcomeOK)
	metrics.ObserveStop("forced", time.Since(began))
	return Result{OK: true, Message: fmt.Sprintf("%s %s", name, MsgForced), Forced: true}, nil
}

// Restart stops the workload, waits out a fixed cooldown, and starts it. A
// workload that was not running is simply started; any other stop failure
// aborts the restart.
func (c *Controller) Restart(ctx context.Context, name string) (res Result, err error) {
	ctx, span := tracing.Start(ctx, "lifecycle.restart", name)
	defer func() { tracing.End(span, err) }()

	if _, err := c.Stop(ctx, name); err != nil && !errors.Is(err, workload.ErrNotRunning) {
		metrics.RecordLifecycle("restart", metrics.OutcomeFailed)
		return Result{}, err
	}

	if err := sleep(ctx, c.timing.cooldown); err != nil {
		return Result{}, err
	}

	if _, err := c.Start(ctx, name); err != nil {
		metrics.RecordLifecycle("restart", metrics.OutcomeFailed)
		return Result{}, err
	}
	metrics.RecordLifecycle("restart", metrics.OutcomeOK)
	return Result{OK: true, Message: fmt.Sprintf("%s %s", name, MsgRestarting)}, nil
}

// SendCommand types line into the workload's console. line must not contain
// line breaks.
func (c *Controller) SendCommand(ctx context.Context, name, line string) error {
	if err := workload.ValidateCommand(line); err != nil {
		return err
	}
	w, err := c.store.GetWorkload(ctx, name)
	if err != nil {
		return err
	}
	if !c.probe.IsRunning(ctx, name) {
		_, err := reject("command", name, workload.StateStopped, workload.ErrNotRunning, "")
		return err
	}
	if err := c.mux.Send(ctx, w.SessionName(), line); err != nil {
		if errors.Is(err, session.ErrNoSession) {
			_, err := reject("command", name, workload.StateStopped, workload.ErrNotRunning, "")
			return err
		}
		metrics.RecordLifecycle("command", metrics.OutcomeFailed)
		return fmt.Errorf("sending command to %s: %w", name, err)
	}
	metrics.RecordLifecycle("command", metrics.OutcomeOK)
	return nil
}

// ClearLogs truncates the workload log and, if the workload is running,
// clears its console as well.
func (c *Controller) ClearLogs(ctx context.Context, name string) error {
	w, err := c.store.GetWorkload(ctx, name)
	if err != nil {
		return err
	}
	if err := c.sink.Clear(w.LogPath()); err != nil {
		return fmt.Errorf("clearing log of %s: %w", name, err)
	}
	if c.probe.IsRunning(ctx, name) {
		if err := c.mux.Send(ctx, w.SessionName(), "clear"); err != nil {
			c.logger.Warn("clearing console", slog.String(log.WorkloadKey, name), log.Error(err))
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
