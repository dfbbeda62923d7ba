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

// Package backend provides storage backends for hearthd.
//
// # Interface Hierarchy
//
// Storage is split by record kind so components depend only on what they use:
//
//   - WorkloadStore: workload records and their start/install scripts
//   - TaskStore: the scheduled task list of each workload, saved whole
//   - BackupPolicyStore: the backup policy of each workload, saved whole
//   - io.Closer: release of underlying resources
//
// The Backend interface composes all of these.
package backend

import (
	"context"
	"errors"
	"io"

	"github.com/tombee/hearth/internal/workload"
)

// ErrConflict is returned when creating a workload whose name is taken.
var ErrConflict = errors.New("already exists")

// WorkloadStore persists workload records.
type WorkloadStore interface {
	// CreateWorkload stores a new workload. Returns ErrConflict if the name exists.
	CreateWorkload(ctx context.Context, w *workload.Workload) error

	// GetWorkload retrieves a workload by name.
	GetWorkload(ctx context.Context, name string) (*workload.Workload, error)

	// ListWorkloads returns all workloads ordered by name.
	ListWorkloads(ctx context.Context) ([]*workload.Workload, error)

	// UpdateWorkload replaces an existing workload record.
	UpdateWorkload(ctx context.Context, w *workload.Workload) error

	// DeleteWorkload removes a workload record.
	DeleteWorkload(ctx context.Context, name string) error
}

// TaskStore persists scheduled tasks as one document per workload.
type TaskStore interface {
	// GetTasks returns the task list of a workload; empty when none was saved.
	GetTasks(ctx context.Context, name string) ([]workload.Task, error)

	// SaveTasks replaces the task list of a workload.
	SaveTasks(ctx context.Context, name string, tasks []workload.Task) error

	// DeleteTasks removes the task list of a workload.
	DeleteTasks(ctx context.Context, name string) error

	// ListAllTasks returns every saved task list keyed by workload name.
	ListAllTasks(ctx context.Context) (map[string][]workload.Task, error)
}

// BackupPolicyStore persists one backup policy per workload.
type BackupPolicyStore interface {
	// GetBackupPolicy returns the saved policy, or an error matching
	// workload.ErrNotFound when none was saved.
	GetBackupPolicy(ctx context.Context, name string) (*workload.BackupPolicy, error)

	// SaveBackupPolicy replaces the policy of a workload.
	SaveBackupPolicy(ctx context.Context, name string, p workload.BackupPolicy) error

	// DeleteBackupPolicy removes the policy of a workload.
	DeleteBackupPolicy(ctx context.Context, name string) error

	// ListBackupPolicies returns every saved policy keyed by workload name.
	ListBackupPolicies(ctx context.Context) (map[string]workload.BackupPolicy, error)
}

// Backend defines the full storage interface.
type Backend interface {
	WorkloadStore
	TaskStore
	BackupPolicyStore
	io.Closer
}
