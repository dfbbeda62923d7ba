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

package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/tombee/hearth/internal/daemon/backend"
	"github.com/tombee/hearth/internal/daemon/backend/backendtest"
	"github.com/tombee/hearth/internal/workload"
)

// createTestBackend creates a SQLite backend for testing in a temporary directory.
func createTestBackend(t *testing.T) (*Backend, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	be, err := New(Config{Path: dbPath, WAL: true})
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	t.Cleanup(func() { be.Close() })
	return be, dbPath
}

func TestConformance(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) backend.Backend {
		be, _ := createTestBackend(t)
		return be
	})
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	be, dbPath := createTestBackend(t)

	if err := be.CreateWorkload(ctx, &workload.Workload{Name: "alpha", WorkingDirectory: "/srv/alpha"}); err != nil {
		t.Fatalf("failed to create workload: %v", err)
	}
	tasks := []workload.Task{{ID: "t1", Cron: "0 4 * * *", Action: workload.ActionRestart, Enabled: true}}
	if err := be.SaveTasks(ctx, "alpha", tasks); err != nil {
		t.Fatalf("failed to save tasks: %v", err)
	}
	if err := be.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}

	reopened, err := New(Config{Path: dbPath})
	if err != nil {
		t.Fatalf("failed to reopen: %v", err)
	}
	defer reopened.Close()

	w, err := reopened.GetWorkload(ctx, "alpha")
	if err != nil {
		t.Fatalf("failed to get workload: %v", err)
	}
	if w.WorkingDirectory != "/srv/alpha" {
		t.Errorf("expected working directory /srv/alpha, got %s", w.WorkingDirectory)
	}

	all, err := reopened.ListAllTasks(ctx)
	if err != nil {
		t.Fatalf("failed to list tasks: %v", err)
	}
	if len(all["alpha"]) != 1 || all["alpha"][0].Cron != "0 4 * * *" {
		t.Errorf("unexpected tasks after reopen: %+v", all)
	}
}
