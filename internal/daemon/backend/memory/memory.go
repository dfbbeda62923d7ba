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

// Package memory provides an in-memory backend implementation.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/tombee/hearth/internal/daemon/backend"
	"github.com/tombee/hearth/internal/workload"
)

// Compile-time interface assertions.
var (
	_ backend.WorkloadStore     = (*Backend)(nil)
	_ backend.TaskStore         = (*Backend)(nil)
	_ backend.BackupPolicyStore = (*Backend)(nil)
	_ backend.Backend           = (*Backend)(nil)
)

// Backend is an in-memory storage backend. Records are copied on the way in
// and out so callers never share state with the store.
type Backend struct {
	mu        sync.RWMutex
	workloads map[string]*workload.Workload
	tasks     map[string][]workload.Task
	policies  map[string]workload.BackupPolicy
}

// New creates a new in-memory backend.
func New() *Backend {
	return &Backend{
		workloads: make(map[string]*workload.Workload),
		tasks:     make(map[string][]workload.Task),
		policies:  make(map[string]workload.BackupPolicy),
	}
}

func cloneWorkload(w *workload.Workload) *workload.Workload {
	c := *w
	c.StartCommands = slices.Clone(w.StartCommands)
	c.InstallCommands = slices.Clone(w.InstallCommands)
	return &c
}

func clonePolicy(p workload.BackupPolicy) workload.BackupPolicy {
	p.Exclude = slices.Clone(p.Exclude)
	return p
}

// CreateWorkload stores a new workload.
func (b *Backend) CreateWorkload(ctx context.Context, w *workload.Workload) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.workloads[w.Name]; exists {
		return fmt.Errorf("workload %s: %w", w.Name, backend.ErrConflict)
	}

	w.CreatedAt = time.Now()
	w.UpdatedAt = w.CreatedAt
	b.workloads[w.Name] = cloneWorkload(w)
	return nil
}

// GetWorkload retrieves a workload by name.
func (b *Backend) GetWorkload(ctx context.Context, name string) (*workload.Workload, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	w, exists := b.workloads[name]
	if !exists {
		return nil, workload.NotFound("workload", name)
	}
	return cloneWorkload(w), nil
}

// ListWorkloads returns all workloads ordered by name.
func (b *Backend) ListWorkloads(ctx context.Context) ([]*workload.Workload, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]*workload.Workload, 0, len(b.workloads))
	for _, w := range b.workloads {
		result = append(result, cloneWorkload(w))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// UpdateWorkload replaces an existing workload record.
func (b *Backend) UpdateWorkload(ctx context.Context, w *workload.Workload) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	existing, exists := b.workloads[w.Name]
	if !exists {
		return workload.NotFound("workload", w.Name)
	}

	w.CreatedAt = existing.CreatedAt
	w.UpdatedAt = time.Now()
	b.workloads[w.Name] = cloneWorkload(w)
	return nil
}

// DeleteWorkload removes a workload record.
func (b *Backend) DeleteWorkload(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.workloads[name]; !exists {
		return workload.NotFound("workload", name)
	}
	delete(b.workloads, name)
	return nil
}

// GetTasks returns the task list of a workload.
func (b *Backend) GetTasks(ctx context.Context, name string) ([]workload.Task, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	tasks := slices.Clone(b.tasks[name])
	if tasks == nil {
		tasks = []workload.Task{}
	}
	return tasks, nil
}

// SaveTasks replaces the task list of a workload.
func (b *Backend) SaveTasks(ctx context.Context, name string, tasks []workload.Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tasks[name] = slices.Clone(tasks)
	return nil
}

// DeleteTasks removes the task list of a workload.
func (b *Backend) DeleteTasks(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.tasks, name)
	return nil
}

// ListAllTasks returns every saved task list keyed by workload name.
func (b *Backend) ListAllTasks(ctx context.Context) (map[string][]workload.Task, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make(map[string][]workload.Task, len(b.tasks))
	for name, tasks := range b.tasks {
		result[name] = slices.Clone(tasks)
	}
	return result, nil
}

// GetBackupPolicy returns the saved policy of a workload.
func (b *Backend) GetBackupPolicy(ctx context.Context, name string) (*workload.BackupPolicy, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	p, exists := b.policies[name]
	if !exists {
		return nil, workload.NotFound("backup policy", name)
	}
	p = clonePolicy(p)
	return &p, nil
}

// SaveBackupPolicy replaces the policy of a workload.
func (b *Backend) SaveBackupPolicy(ctx context.Context, name string, p workload.BackupPolicy) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.policies[name] = clonePolicy(p)
	return nil
}

// DeleteBackupPolicy removes the policy of a workload.
func (b *Backend) DeleteBackupPolicy(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.policies, name)
	return nil
}

// ListBackupPolicies returns every saved policy keyed by workload name.
func (b *Backend) ListBackupPolicies(ctx context.Context) (map[string]workload.BackupPolicy, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make(map[string]workload.BackupPolicy, len(b.policies))
	for name, p := range b.policies {
		result[name] = clonePolicy(p)
	}
	return result, nil
}

// Close is a no-op for the in-memory backend.
func (b *Backend) Close() error {
	return nil
}
