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

// Package registry creates, edits, and removes workload records.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tombee/hearth/internal/daemon/backend"
	"github.com/tombee/hearth/internal/lifecycle"
	"github.com/tombee/hearth/internal/log"
	"github.com/tombee/hearth/internal/metrics"
	"github.com/tombee/hearth/internal/workload"
	hearterrors "github.com/tombee/hearth/pkg/errors"
)

// Stopper stops a running workload.
type Stopper interface {
	Stop(ctx context.Context, name string) (lifecycle.Result, error)
}

// TaskRemover drops every scheduled task of a workload.
type TaskRemover interface {
	DeleteAll(ctx context.Context, name string) error
}

// PolicyRemover drops the backup policy of a workload.
type PolicyRemover interface {
	DeletePolicy(ctx context.Context, name string) error
}

// CreateRequest describes a new workload.
type CreateRequest struct {
	Name             string   `json:"name"`
	WorkingDirectory string   `json:"working_directory,omitempty"`
	StartCommands    []string `json:"start_commands,omitempty"`
	InstallCommands  []string `json:"install_commands,omitempty"`
}

// Registry manages workload records and their working directories.
type Registry struct {
	store      backend.WorkloadStore
	serversDir string
	ctrl       Stopper
	tasks      TaskRemover
	backups    PolicyRemover
	logger     *slog.Logger

	// mu serializes read-modify-write of workload records.
	mu sync.Mutex
}

// New creates a Registry. Workloads created without a working directory
// get <serversDir>/<name>.
func New(store backend.WorkloadStore, serversDir string, ctrl Stopper, tasks TaskRemover, backups PolicyRemover, logger *slog.Logger) *Registry {
	return &Registry{
		store:      store,
		serversDir: serversDir,
		ctrl:       ctrl,
		tasks:      tasks,
		backups:    backups,
		logger:     log.WithComponent(logger, "registry"),
	}
}

// Create validates req, creates the working directory, and stores the record.
func (r *Registry) Create(ctx context.Context, req CreateRequest) (*workload.Workload, error) {
	if err := workload.ValidateName(req.Name); err != nil {
		return nil, err
	}

	dir := req.WorkingDirectory
	switch {
	case dir == "":
		dir = filepath.Join(r.serversDir, req.Name)
	case !filepath.IsAbs(dir):
		dir = filepath.Join(r.serversDir, dir)
	}
	dir = filepath.Clean(dir)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, hearterrors.Wrapf(err, "creating working directory %s", dir)
	}

	w := &workload.Workload{
		Name:             req.Name,
		WorkingDirectory: dir,
		StartCommands:    nonNil(req.StartCommands),
		InstallCommands:  nonNil(req.InstallCommands),
	}
	if err := r.store.CreateWorkload(ctx, w); err != nil {
		if !errors.Is(err, backend.ErrConflict) {
			metrics.RecordPersistenceError("create_workload", hearterrors.Type(err))
		}
		return nil, err
	}

	log.WithWorkload(r.logger, w.Name).Info("workload created", slog.String("dir", dir))
	return w, nil
}

// Get returns one workload.
func (r *Registry) Get(ctx context.Context, name string) (*workload.Workload, error) {
	return r.store.GetWorkload(ctx, name)
}

// List returns every workload ordered by name.
func (r *Registry) List(ctx context.Context) ([]*workload.Workload, error) {
	return r.store.ListWorkloads(ctx)
}

// Delete stops the workload if it is running, then removes its tasks,
// backup policy, and record. With purge the working directory is removed
// too; purge is refused for directories outside the servers directory.
func (r *Registry) Delete(ctx context.Context, name string, purge bool) error {
	w, err := r.store.GetWorkload(ctx, name)
	if err != nil {
		return err
	}
	if purge && !r.owns(w.WorkingDirectory) {
		return &hearterrors.ValidationError{
			Field:   "purge",
			Message: fmt.Sprintf("working directory %s is outside %s", w.WorkingDirectory, r.serversDir),
		}
	}

	logger := log.WithWorkload(r.logger, name)
	if _, err := r.ctrl.Stop(ctx, name); err != nil && !errors.Is(err, workload.ErrNotRunning) {
		return err
	}

	if err := r.tasks.DeleteAll(ctx, name); err != nil {
		return err
	}
	if err := r.backups.DeletePolicy(ctx, name); err != nil && !errors.Is(err, workload.ErrNotFound) {
		return err
	}
	if err := r.store.DeleteWorkload(ctx, name); err != nil {
		metrics.RecordPersistenceError("delete_workload", hearterrors.Type(err))
		return err
	}

	if purge {
		if err := os.RemoveAll(w.WorkingDirectory); err != nil {
			return hearterrors.Wrapf(err, "removing %s", w.WorkingDirectory)
		}
	}
	logger.Info("workload deleted", slog.Bool("purge", purge))
	return nil
}

// owns reports whether dir lies strictly inside the servers directory.
func (r *Registry) owns(dir string) bool {
	if r.serversDir == "" {
		return false
	}
	rel, err := filepath.Rel(r.serversDir, dir)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// GetScript returns one of the workload's command lists.
func (r *Registry) GetScript(ctx context.Context, name string, kind workload.ScriptKind) (workload.Script, error) {
	w, err := r.store.GetWorkload(ctx, name)
	if err != nil {
		return workload.Script{}, err
	}
	s := w.Script(kind)
	s.Commands = nonNil(s.Commands)
	return s, nil
}

// SetScript replaces one of the workload's command lists.
func (r *Registry) SetScript(ctx context.Context, name string, kind workload.ScriptKind, s workload.Script) (workload.Script, error) {
	for i, c := range s.Commands {
		if strings.TrimSpace(c) == "" {
			return workload.Script{}, &hearterrors.ValidationError{Field: fmt.Sprintf("commands[%d]", i), Message: "cannot be blank"}
		}
	}
	s.Commands = nonNil(s.Commands)

	r.mu.Lock()
	defer r.mu.Unlock()

	w, err := r.store.GetWorkload(ctx, name)
	if err != nil {
		return workload.Script{}, err
	}
	w.SetScript(kind, s)
	if err := r.store.UpdateWorkload(ctx, w); err != nil {
		metrics.RecordPersistenceError("update_workload", hearterrors.Type(err))
		return workload.Script{}, err
	}

	log.WithWorkload(r.logger, name).Info("script saved", slog.String("kind", string(kind)), slog.Int("commands", len(s.Commands)))
	return s, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
