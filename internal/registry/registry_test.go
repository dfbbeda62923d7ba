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

package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/hearth/internal/daemon/backend"
	"github.com/tombee/hearth/internal/daemon/backend/memory"
	"github.com/tombee/hearth/internal/lifecycle"
	"github.com/tombee/hearth/internal/log"
	"github.com/tombee/hearth/internal/workload"
	hearterrors "github.com/tombee/hearth/pkg/errors"
)

type stubStopper struct {
	err   error
	calls int
}

func (s *stubStopper) Stop(ctx context.Context, name string) (lifecycle.Result, error) {
	s.calls++
	return lifecycle.Result{OK: s.err == nil}, s.err
}

type stubRemover struct {
	err     error
	removed []string
}

func (s *stubRemover) DeleteAll(ctx context.Context, name string) error {
	s.removed = append(s.removed, name)
	return s.err
}

func (s *stubRemover) DeletePolicy(ctx context.Context, name string) error {
	s.removed = append(s.removed, name)
	return s.err
}

type fixture struct {
	reg     *Registry
	store   *memory.Backend
	stopper *stubStopper
	tasks   *stubRemover
	backups *stubRemover
	servers string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   memory.New(),
		stopper: &stubStopper{err: workload.ErrNotRunning},
		tasks:   &stubRemover{},
		backups: &stubRemover{err: workload.NotFound("backup policy", "alpha")},
		servers: t.TempDir(),
	}
	f.reg = New(f.store, f.servers, f.stopper, f.tasks, f.backups, log.Discard())
	return f
}

func TestCreateDefaultsWorkingDirectory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	w, err := f.reg.Create(ctx, CreateRequest{Name: "alpha", StartCommands: []string{"java -jar server.jar"}})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.servers, "alpha"), w.WorkingDirectory)
	assert.Equal(t, []string{}, w.InstallCommands)

	info, err := os.Stat(w.WorkingDirectory)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = f.reg.Create(ctx, CreateRequest{Name: "alpha"})
	assert.ErrorIs(t, err, backend.ErrConflict)
}

func TestCreateValidatesName(t *testing.T) {
	f := newFixture(t)

	_, err := f.reg.Create(context.Background(), CreateRequest{Name: "../etc"})
	var verr *hearterrors.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "name", verr.Field)
}

func TestScripts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.reg.Create(ctx, CreateRequest{Name: "alpha"})
	require.NoError(t, err)

	s, err := f.reg.GetScript(ctx, "alpha", workload.ScriptInstall)
	require.NoError(t, err)
	assert.Equal(t, []string{}, s.Commands)

	_, err = f.reg.SetScript(ctx, "alpha", workload.ScriptInstall, workload.Script{Commands: []string{"curl -o server.jar https://example.invalid/server.jar"}})
	require.NoError(t, err)

	w, err := f.reg.Get(ctx, "alpha")
	require.NoError(t, err)
	assert.Len(t, w.InstallCommands, 1)
	assert.Empty(t, w.StartCommands)

	_, err = f.reg.SetScript(ctx, "alpha", workload.ScriptStart, workload.Script{Commands: []string{"  "}})
	var verr *hearterrors.ValidationError
	assert.True(t, errors.As(err, &verr))

	_, err = f.reg.GetScript(ctx, "ghost", workload.ScriptStart)
	assert.ErrorIs(t, err, workload.ErrNotFound)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w, err := f.reg.Create(ctx, CreateRequest{Name: "alpha"})
	require.NoError(t, err)

	require.NoError(t, f.reg.Delete(ctx, "alpha", false))
	assert.Equal(t, 1, f.stopper.calls)
	assert.Equal(t, []string{"alpha"}, f.tasks.removed)
	assert.Equal(t, []string{"alpha"}, f.backups.removed)

	_, err = f.reg.Get(ctx, "alpha")
	assert.ErrorIs(t, err, workload.ErrNotFound)
	_, err = os.Stat(w.WorkingDirectory)
	assert.NoError(t, err, "directory kept without purge")

	assert.ErrorIs(t, f.reg.Delete(ctx, "alpha", false), workload.ErrNotFound)
}

func TestDeletePurge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w, err := f.reg.Create(ctx, CreateRequest{Name: "alpha"})
	require.NoError(t, err)

	require.NoError(t, f.reg.Delete(ctx, "alpha", true))
	_, err = os.Stat(w.WorkingDirectory)
	assert.True(t, os.IsNotExist(err))
}

func TestDeletePurgeOutsideServersDir(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	outside := t.TempDir()
	_, err := f.reg.Create(ctx, CreateRequest{Name: "alpha", WorkingDirectory: outside})
	require.NoError(t, err)

	err = f.reg.Delete(ctx, "alpha", true)
	var verr *hearterrors.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, 0, f.stopper.calls)

	_, err = f.reg.Get(ctx, "alpha")
	assert.NoError(t, err, "nothing is deleted when purge is refused")
}

func TestDeleteAbortsWhenStopFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.reg.Create(ctx, CreateRequest{Name: "alpha"})
	require.NoError(t, err)

	f.stopper.err = workload.NewOpError("stop", "alpha", workload.StateRunning, workload.ErrForceStopFailed, "")
	err = f.reg.Delete(ctx, "alpha", false)
	require.ErrorIs(t, err, workload.ErrForceStopFailed)
	assert.Empty(t, f.tasks.removed)

	_, err = f.reg.Get(ctx, "alpha")
	assert.NoError(t, err)
}
