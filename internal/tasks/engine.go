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

// Package tasks manages cron-triggered lifecycle and console actions.
//
// Each workload's tasks are persisted as one document. Every enabled task
// holds exactly one registration in the shared scheduler, keyed by workload
// and task ID; mutations persist first and then replace or remove that
// registration.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tombee/hearth/internal/daemon/backend"
	"github.com/tombee/hearth/internal/daemon/scheduler"
	"github.com/tombee/hearth/internal/lifecycle"
	"github.com/tombee/hearth/internal/log"
	"github.com/tombee/hearth/internal/metrics"
	"github.com/tombee/hearth/internal/tracing"
	"github.com/tombee/hearth/internal/workload"
	hearterrors "github.com/tombee/hearth/pkg/errors"
)

// Store is the persistence the engine needs.
type Store interface {
	GetWorkload(ctx context.Context, name string) (*workload.Workload, error)
	backend.TaskStore
}

// Registry holds live cron registrations.
type Registry interface {
	Set(key, spec string, job scheduler.Job) error
	Remove(key string) bool
}

// Lifecycle is the subset of the controller that tasks drive.
type Lifecycle interface {
	Start(ctx context.Context, name string) (lifecycle.Result, error)
	Stop(ctx context.Context, name string) (lifecycle.Result, error)
	Restart(ctx context.Context, name string) (lifecycle.Result, error)
	IsRunning(ctx context.Context, name string) bool
	SendCommand(ctx context.Context, name, line string) error
}

// Key returns the scheduler key of a task.
func Key(name, id string) string {
	return "task:" + name + ":" + id
}

// Engine owns scheduled tasks.
type Engine struct {
	store  Store
	sched  Registry
	ctrl   Lifecycle
	logger *slog.Logger

	// mu serializes load, modify, persist, and re-register.
	mu sync.Mutex
}

// NewEngine registers every persisted, enabled task. Tasks whose cron no
// longer parses are logged and left unregistered.
func NewEngine(ctx context.Context, store Store, sched Registry, ctrl Lifecycle, logger *slog.Logger) (*Engine, error) {
	e := &Engine{
		store:  store,
		sched:  sched,
		ctrl:   ctrl,
		logger: log.WithComponent(logger, "tasks"),
	}

	all, err := store.ListAllTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading tasks: %w", err)
	}

	registered := 0
	for name, list := range all {
		for _, t := range list {
			if !t.Enabled {
				continue
			}
			if err := e.register(name, t); err != nil {
				log.WithTask(e.logger, name, t.ID).Error("skipping task with invalid schedule",
					slog.String("cron", t.Cron), log.Error(err))
				continue
			}
			registered++
		}
	}
	e.logger.Info("scheduled tasks loaded", slog.Int("registered", registered), slog.Int("workloads", len(all)))
	return e, nil
}

func (e *Engine) register(name string, t workload.Task) error {
	return e.sched.Set(Key(name, t.ID), t.Cron, func(ctx context.Context) {
		e.fire(ctx, name, t)
	})
}

// List returns the tasks of a workload.
func (e *Engine) List(ctx context.Context, name string) ([]workload.Task, error) {
	if _, err := e.store.GetWorkload(ctx, name); err != nil {
		return nil, err
	}
	return e.store.GetTasks(ctx, name)
}

// Get returns one task.
func (e *Engine) Get(ctx context.Context, name, id string) (*workload.Task, error) {
	list, err := e.List(ctx, name)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].ID == id {
			return &list[i], nil
		}
	}
	return nil, workload.NotFound("task", id)
}

// Upsert validates t, assigns an ID if it has none, and replaces the task
// with the same ID or appends it. The live registration follows the saved
// definition: replaced when enabled, removed when disabled.
func (e *Engine) Upsert(ctx context.Context, name string, t workload.Task) (workload.Task, error) {
	if err := t.Validate(); err != nil {
		return workload.Task{}, err
	}
	if _, err := scheduler.ParseCron(t.Cron); err != nil {
		return workload.Task{}, workload.NewOpError("upsert task", name, "", workload.ErrInvalidSchedule,
			fmt.Sprintf("%q: %v", t.Cron, err))
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	list, err := e.List(ctx, name)
	if err != nil {
		return workload.Task{}, err
	}

	replaced := false
	for i := range list {
		if list[i].ID == t.ID {
			list[i] = t
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, t)
	}

	if err := e.store.SaveTasks(ctx, name, list); err != nil {
		metrics.RecordPersistenceError("save_tasks", hearterrors.Type(err))
		return workload.Task{}, hearterrors.Wrapf(err, "saving tasks of %s", name)
	}

	logger := log.WithTask(e.logger, name, t.ID)
	if t.Enabled {
		if err := e.register(name, t); err != nil {
			return workload.Task{}, workload.NewOpError("upsert task", name, "", workload.ErrInvalidSchedule, err.Error())
		}
		logger.Info("task scheduled", slog.String("cron", t.Cron), slog.String(log.ActionKey, string(t.Action)))
	} else {
		e.sched.Remove(Key(name, t.ID))
		logger.Info("task disabled")
	}
	return t, nil
}

// Delete removes a task and its registration. Deleting an absent task
// returns an error matching workload.ErrNotFound and changes nothing.
func (e *Engine) Delete(ctx context.Context, name, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	list, err := e.List(ctx, name)
	if err != nil {
		return err
	}

	idx := -1
	for i := range list {
		if list[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return workload.NotFound("task", id)
	}

	list = append(list[:idx], list[idx+1:]...)
	if err := e.store.SaveTasks(ctx, name, list); err != nil {
		metrics.RecordPersistenceError("save_tasks", hearterrors.Type(err))
		return hearterrors.Wrapf(err, "saving tasks of %s", name)
	}
	e.sched.Remove(Key(name, id))
	log.WithTask(e.logger, name, id).Info("task deleted")
	return nil
}

// DeleteAll removes every task of a workload along with its registrations.
func (e *Engine) DeleteAll(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	list, err := e.store.GetTasks(ctx, name)
	if err != nil {
		return err
	}
	if err := e.store.DeleteTasks(ctx, name); err != nil {
		metrics.RecordPersistenceError("delete_tasks", hearterrors.Type(err))
		return hearterrors.Wrapf(err, "deleting tasks of %s", name)
	}
	for _, t := range list {
		e.sched.Remove(Key(name, t.ID))
	}
	return nil
}

// fire runs one trigger of t. Failures are logged; nothing is retried.
func (e *Engine) fire(ctx context.Context, name string, t workload.Task) {
	logger := log.WithTask(e.logger, name, t.ID).With(slog.String(log.ActionKey, string(t.Action)))

	ctx, span := tracing.Start(ctx, "task.fire", name,
		tracing.ActionKey.String(string(t.Action)),
		attribute.String("hearth.task_id", t.ID))
	var err error
	defer func() { tracing.End(span, err) }()
	switch t.Action {
	case workload.ActionStart:
		_, err = e.ctrl.Start(ctx, name)
	case workload.ActionStop:
		_, err = e.ctrl.Stop(ctx, name)
	case workload.ActionRestart:
		_, err = e.ctrl.Restart(ctx, name)
	case workload.ActionCommand:
		if !e.ctrl.IsRunning(ctx, name) {
			logger.Info("workload not running, skipping scheduled command")
			metrics.RecordTaskFire(string(t.Action), metrics.OutcomeSkipped)
			return
		}
		err = e.ctrl.SendCommand(ctx, name, t.Command)
	default:
		err = fmt.Errorf("unknown action %q", t.Action)
	}

	switch {
	case err == nil:
		logger.Info("scheduled task ran")
		metrics.RecordTaskFire(string(t.Action), metrics.OutcomeOK)
	case errors.Is(err, workload.ErrAlreadyRunning), errors.Is(err, workload.ErrNotRunning):
		logger.Info("scheduled task rejected", log.Error(err))
		metrics.RecordTaskFire(string(t.Action), metrics.OutcomeRejected)
	default:
		logger.Error("scheduled task failed", log.Error(err))
		metrics.RecordTaskFire(string(t.Action), metrics.OutcomeFailed)
	}
}
