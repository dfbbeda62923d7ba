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

// Package backendtest holds a conformance suite run against every backend.
package backendtest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/hearth/internal/daemon/backend"
	"github.com/tombee/hearth/internal/workload"
)

// Run exercises b. newBackend must return an empty backend.
func Run(t *testing.T, newBackend func(t *testing.T) backend.Backend) {
	t.Run("workload CRUD", func(t *testing.T) { testWorkloads(t, newBackend(t)) })
	t.Run("task lists", func(t *testing.T) { testTasks(t, newBackend(t)) })
	t.Run("backup policies", func(t *testing.T) { testPolicies(t, newBackend(t)) })
}

func testWorkloads(t *testing.T, b backend.Backend) {
	ctx := context.Background()

	w := &workload.Workload{
		Name:             "alpha",
		WorkingDirectory: "/srv/alpha",
		StartCommands:    []string{"java -Xmx2G -jar server.jar nogui"},
	}
	require.NoError(t, b.CreateWorkload(ctx, w))
	assert.False(t, w.CreatedAt.IsZero())

	err := b.CreateWorkload(ctx, &workload.Workload{Name: "alpha", WorkingDirectory: "/elsewhere"})
	assert.True(t, errors.Is(err, backend.ErrConflict), "got %v", err)

	require.NoError(t, b.CreateWorkload(ctx, &workload.Workload{Name: "beta", WorkingDirectory: "/srv/beta"}))

	got, err := b.GetWorkload(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, "/srv/alpha", got.WorkingDirectory)
	assert.Equal(t, w.StartCommands, got.StartCommands)
	assert.Empty(t, got.InstallCommands)

	got.InstallCommands = []string{"curl -o server.jar https://example.invalid/server.jar", "echo eula=true > eula.txt"}
	require.NoError(t, b.UpdateWorkload(ctx, got))

	again, err := b.GetWorkload(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, got.InstallCommands, again.InstallCommands)

	list, err := b.ListWorkloads(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, "beta", list[1].Name)

	require.NoError(t, b.DeleteWorkload(ctx, "alpha"))
	_, err = b.GetWorkload(ctx, "alpha")
	assert.True(t, errors.Is(err, workload.ErrNotFound), "got %v", err)
	assert.True(t, errors.Is(b.DeleteWorkload(ctx, "alpha"), workload.ErrNotFound))
	assert.True(t, errors.Is(b.UpdateWorkload(ctx, &workload.Workload{Name: "ghost"}), workload.ErrNotFound))
}

func testTasks(t *testing.T, b backend.Backend) {
	ctx := context.Background()

	empty, err := b.GetTasks(ctx, "alpha")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	tasks := []workload.Task{
		{ID: "t1", Name: "Nightly", Cron: "0 4 * * *", Action: workload.ActionRestart, Enabled: true},
		{ID: "t2", Cron: "*/15  * * * *", Action: workload.ActionCommand, Command: "say \"backup soon\"", Enabled: false},
	}
	require.NoError(t, b.SaveTasks(ctx, "alpha", tasks))
	require.NoError(t, b.SaveTasks(ctx, "beta", tasks[:1]))

	got, err := b.GetTasks(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, tasks, got)

	all, err := b.ListAllTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Len(t, all["beta"], 1)

	require.NoError(t, b.SaveTasks(ctx, "alpha", tasks[1:]))
	got, err = b.GetTasks(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, tasks[1:], got)

	require.NoError(t, b.DeleteTasks(ctx, "alpha"))
	got, err = b.GetTasks(ctx, "alpha")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testPolicies(t *testing.T, b backend.Backend) {
	ctx := context.Background()

	_, err := b.GetBackupPolicy(ctx, "alpha")
	assert.True(t, errors.Is(err, workload.ErrNotFound), "got %v", err)

	p := workload.BackupPolicy{
		Location:  "/backups/alpha",
		Frequency: workload.FrequencyWeekly,
		Retention: 4,
		Exclude:   []string{"logs/**", "cache/**"},
	}
	require.NoError(t, b.SaveBackupPolicy(ctx, "alpha", p))

	got, err := b.GetBackupPolicy(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, p, *got)

	p.Frequency = workload.FrequencyDisabled
	p.Exclude = nil
	require.NoError(t, b.SaveBackupPolicy(ctx, "alpha", p))
	got, err = b.GetBackupPolicy(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, workload.FrequencyDisabled, got.Frequency)
	assert.Empty(t, got.Exclude)

	require.NoError(t, b.SaveBackupPolicy(ctx, "beta", workload.BackupPolicy{Frequency: workload.FrequencyDaily}))
	all, err := b.ListBackupPolicies(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, workload.FrequencyDaily, all["beta"].Frequency)

	require.NoError(t, b.DeleteBackupPolicy(ctx, "alpha"))
	_, err = b.GetBackupPolicy(ctx, "alpha")
	assert.True(t, errors.Is(err, workload.ErrNotFound))
}
