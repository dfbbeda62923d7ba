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

// Package provision runs a workload's install commands in the background,
// streaming their output into the workload log.
package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"

	"github.com/tombee/hearth/internal/daemon/backend"
	"github.com/tombee/hearth/internal/daemon/worker"
	"github.com/tombee/hearth/internal/log"
	"github.com/tombee/hearth/internal/logsink"
	"github.com/tombee/hearth/internal/metrics"
	"github.com/tombee/hearth/internal/tracing"
	"github.com/tombee/hearth/internal/workload"
	"go.opentelemetry.io/otel/attribute"
)

// LogTag marks installer lines in the workload log.
const LogTag = "Installer"

// Submitter accepts fire-and-forget background jobs.
type Submitter interface {
	Submit(kind string, job worker.Job) error
}

// Runner executes install commands.
type Runner struct {
	store  backend.WorkloadStore
	sink   *logsink.Sink
	pool   Submitter
	shell  string
	logger *slog.Logger
}

// New creates a Runner. An empty shell defaults to bash.
func New(store backend.WorkloadStore, sink *logsink.Sink, pool Submitter, shell string, logger *slog.Logger) *Runner {
	if shell == "" {
		shell = "bash"
	}
	return &Runner{
		store:  store,
		sink:   sink,
		pool:   pool,
		shell:  shell,
		logger: log.WithComponent(logger, "provision"),
	}
}

// RunInstall queues the workload's install commands and returns once they
// are accepted. Progress and the final outcome appear only in the workload
// log; there is no other completion signal.
func (r *Runner) RunInstall(ctx context.Context, name string) error {
	w, err := r.store.GetWorkload(ctx, name)
	if err != nil {
		return err
	}
	if len(w.InstallCommands) == 0 {
		metrics.RecordInstall(metrics.OutcomeRejected)
		return workload.NewOpError("install", name, "", workload.ErrScriptNotFound, "")
	}

	commands := append([]string(nil), w.InstallCommands...)
	dir, logPath := w.WorkingDirectory, w.LogPath()
	err = r.pool.Submit("install", func(ctx context.Context) {
		r.run(ctx, name, dir, logPath, commands)
	})
	if err != nil {
		return fmt.Errorf("queueing install of %s: %w", name, err)
	}
	return nil
}

func (r *Runner) run(ctx context.Context, name, dir, logPath string, commands []string) {
	logger := log.WithWorkload(r.logger, name)
	start := time.Now()

	ctx, span := tracing.Start(ctx, "provision.install", name, attribute.Int("hearth.commands", len(commands)))
	var failure error
	defer func() { tracing.End(span, failure) }()

	out, err := r.sink.Open(logPath, LogTag)
	if err != nil {
		logger.Error("opening workload log", log.Error(err))
		metrics.RecordInstall(metrics.OutcomeFailed)
		failure = err
		return
	}
	defer out.Close()

	note := func(format string, args ...any) {
		if err := out.Line(fmt.Sprintf(format, args...)); err != nil {
			logger.Warn("writing workload log", log.Error(err))
		}
	}

	note("Starting installation for %s...", name)
	for i, command := range commands {
		note("Running command: %s", command)

		code, err := r.exec(ctx, dir, command, out)
		if err != nil {
			note("Command failed: %v", err)
			logger.Error("install command failed", slog.Int("step", i+1), log.Error(err))
			metrics.RecordInstall(metrics.OutcomeFailed)
			failure = err
			return
		}
		if code != 0 {
			note("Command failed with exit code %d.", code)
			logger.Warn("install command exited non-zero", slog.Int("step", i+1), slog.Int("exit_code", code))
			metrics.RecordInstall(metrics.OutcomeFailed)
			failure = fmt.Errorf("step %d exited with code %d", i+1, code)
			return
		}
	}

	note("Installation script finished successfully.")
	logger.Info("install finished", slog.Int("commands", len(commands)), log.Duration(time.Since(start)))
	metrics.RecordInstall(metrics.OutcomeOK)
}

// exec runs one command with stdout and stderr merged into out. A non-zero
// exit is reported through the code, not the error.
func (r *Runner) exec(ctx context.Context, dir, command string, out *logsink.Writer) (int, error) {
	pr, pw := io.Pipe()
	copied := make(chan error, 1)
	go func() {
		err := out.Copy(pr)
		_, _ = io.Copy(io.Discard, pr)
		copied <- err
	}()

	cmd := exec.CommandContext(ctx, r.shell, "-c", command)
	cmd.Dir = dir
	cmd.Stdout = pw
	cmd.Stderr = pw

	runErr := cmd.Run()
	_ = pw.Close()
	if err := <-copied; err != nil {
		r.logger.Warn("copying command output", log.Error(err))
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, runErr
	}
	return 0, nil
}
