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

package lifecycle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/hearth/internal/daemon/backend/memory"
	"github.com/tombee/hearth/internal/daemon/worker"
	"github.com/tombee/hearth/internal/log"
	"github.com/tombee/hearth/internal/logsink"
	"github.com/tombee/hearth/internal/session"
	"github.com/tombee/hearth/internal/session/sessiontest"
	"github.com/tombee/hearth/internal/workload"
	hearterrors "github.com/tombee/hearth/pkg/errors"
)

var fastTiming = timing{
	pollAttempts: StopPollAttempts,
	pollInterval: 5 * time.Millisecond,
	settle:       5 * time.Millisecond,
	cooldown:     5 * time.Millisecond,
}

type fixture struct {
	ctrl *Controller
	mux  *sessiontest.Fake
	pool *worker.Pool
	dir  string
}

func newFixture(t *testing.T, startCommands ...string) *fixture {
	t.Helper()
	ctx := context.Background()

	store := memory.New()
	dir := t.TempDir()
	require.NoError(t, store.CreateWorkload(ctx, &workload.Workload{
		Name:             "alpha",
		WorkingDirectory: dir,
		StartCommands:    startCommands,
	}))

	mux := sessiontest.NewFake()
	pool := worker.New(4, log.Discard())
	t.Cleanup(func() {
		pool.StartDraining()
		_ = pool.WaitForDrain(context.Background(), 5*time.Second)
	})

	ctrl := New(store, mux, logsink.New(), pool, log.Discard())
	ctrl.timing = fastTiming
	return &fixture{ctrl: ctrl, mux: mux, pool: pool, dir: dir}
}

func TestStartLaunchesSession(t *testing.T) {
	f := newFixture(t, "./fetch.sh", "java -jar server.jar nogui")
	ctx := context.Background()

	res, err := f.ctrl.Start(ctx, "alpha")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, "alpha is starting", res.Message)

	require.Eventually(t, func() bool { return f.ctrl.IsRunning(ctx, "alpha") }, 2*time.Second, 5*time.Millisecond)

	require.Equal(t, 1, f.mux.LaunchCount())
	spec := f.mux.Launches[0]
	assert.Equal(t, "mc_alpha", spec.Session)
	assert.Equal(t, filepath.Join(f.dir, "logs", "latest.log"), spec.LogFile)
	assert.Equal(t, "bash", spec.Shell)
	assert.Equal(t, session.Chain(f.dir, []string{"./fetch.sh", "java -jar server.jar nogui"}), spec.Command)

	_, err = os.Stat(filepath.Join(f.dir, "logs"))
	assert.NoError(t, err, "log directory should exist before launch")
}

func TestStartRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("already running", func(t *testing.T) {
		f := newFixture(t, "echo hi")
		f.mux.Add("mc_alpha")

		_, err := f.ctrl.Start(ctx, "alpha")
		require.ErrorIs(t, err, workload.ErrAlreadyRunning)

		var opErr *workload.OpError
		require.True(t, errors.As(err, &opErr))
		assert.Equal(t, workload.StateRunning, opErr.State)
		assert.Equal(t, 0, f.mux.LaunchCount())
	})

	t.Run("no start commands", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.ctrl.Start(ctx, "alpha")
		assert.ErrorIs(t, err, workload.ErrConfigurationMissing)
		assert.Equal(t, 0, f.mux.LaunchCount())
	})

	t.Run("unknown workload", func(t *testing.T) {
		f := newFixture(t, "echo hi")
		_, err := f.ctrl.Start(ctx, "ghost")
		assert.ErrorIs(t, err, workload.ErrNotFound)
	})
}

func TestConcurrentStartsLaunchOnce(t *testing.T) {
	f := newFixture(t, "echo hi")
	f.mux.LaunchDelay = 50 * time.Millisecond
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.ctrl.Start(ctx, "alpha")
		}(i)
	}
	wg.Wait()

	var ok, busy int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, workload.ErrAlreadyRunning):
			busy++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, busy)

	require.Eventually(t, func() bool { return f.ctrl.IsRunning(ctx, "alpha") }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, f.mux.LaunchCount())
}

func TestStatusReportsStarting(t *testing.T) {
	f := newFixture(t, "echo hi")
	f.mux.LaunchDelay = 100 * time.Millisecond
	ctx := context.Background()

	state, err := f.ctrl.Status(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, workload.StateStopped, state)

	_, err = f.ctrl.Start(ctx, "alpha")
	require.NoError(t, err)

	state, err = f.ctrl.Status(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, workload.StateStarting, state)

	require.Eventually(t, func() bool {
		s, _ := f.ctrl.Status(ctx, "alpha")
		return s == workload.StateRunning
	}, 2*time.Second, 5*time.Millisecond)

	_, err = f.ctrl.Status(ctx, "ghost")
	assert.ErrorIs(t, err, workload.ErrNotFound)
}

func TestLaunchFailureIsLogged(t *testing.T) {
	f := newFixture(t, "echo hi")
	f.mux.LaunchErr = errors.New("screen exploded")
	ctx := context.Background()

	_, err := f.ctrl.Start(ctx, "alpha")
	require.NoError(t, err, "launch failures surface in the log, not the result")

	logPath := filepath.Join(f.dir, "logs", "latest.log")
	require.Eventually(t, func() bool {
		page, err := logsink.Tail(logPath, 0)
		return err == nil && len(page.Lines) == 1
	}, 2*time.Second, 5*time.Millisecond)

	page, err := logsink.Tail(logPath, 0)
	require.NoError(t, err)
	assert.Regexp(t, `^\[\d{2}:\d{2}:\d{2}\] \[Controller\] failed to launch session: screen exploded$`, page.Lines[0])

	require.Eventually(t, func() bool {
		s, _ := f.ctrl.Status(ctx, "alpha")
		return s == workload.StateStopped
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStopNotRunning(t *testing.T) {
	f := newFixture(t, "echo hi")

	_, err := f.ctrl.Stop(context.Background(), "alpha")
	require.ErrorIs(t, err, workload.ErrNotRunning)
	assert.Empty(t, f.mux.SentTexts())
	assert.Equal(t, 0, f.mux.QuitCount())
}

func TestStopGraceful(t *testing.T) {
	f := newFixture(t, "echo hi")
	f.mux.Add("mc_alpha")
	f.mux.StopAfter = 20 * time.Millisecond

	res, err := f.ctrl.Stop(context.Background(), "alpha")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.False(t, res.Forced)
	assert.Equal(t, "alpha stopped gracefully", res.Message)
	assert.Equal(t, []string{"mc_alpha:stop"}, f.mux.SentTexts())
	assert.Equal(t, 0, f.mux.QuitCount())
}

func TestStopForced(t *testing.T) {
	f := newFixture(t, "echo hi")
	f.mux.Add("mc_alpha")
	f.mux.StopAfter = -1

	res, err := f.ctrl.Stop(context.Background(), "alpha")
	require.NoError(t, err)
	assert.True(t, res.Forced)
	assert.Contains(t, res.Message, MsgForced)
	assert.Equal(t, 1, f.mux.QuitCount())
	assert.False(t, f.mux.Running("mc_alpha"))

	page, err := logsink.Tail(filepath.Join(f.dir, "logs", "latest.log"), 0)
	require.NoError(t, err)
	require.Len(t, page.Lines, 1)
	assert.Contains(t, page.Lines[0], "[Controller]")
}

func TestStopForceFails(t *testing.T) {
	f := newFixture(t, "echo hi")
	f.mux.Add("mc_alpha")
	f.mux.StopAfter = -1
	f.mux.QuitFails = true

	_, err := f.ctrl.Stop(context.Background(), "alpha")
	require.ErrorIs(t, err, workload.ErrForceStopFailed)
	assert.Equal(t, 1, f.mux.QuitCount(), "exactly one forced termination")
}

func TestStopHonoursContext(t *testing.T) {
	f := newFixture(t, "echo hi")
	f.mux.Add("mc_alpha")
	f.mux.StopAfter = -1
	f.ctrl.timing.pollInterval = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.ctrl.Stop(ctx, "alpha")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRestart(t *testing.T) {
	ctx := context.Background()

	t.Run("running workload is stopped then started", func(t *testing.T) {
		f := newFixture(t, "echo hi")
		f.mux.Add("mc_alpha")

		res, err := f.ctrl.Restart(ctx, "alpha")
		require.NoError(t, err)
		assert.Equal(t, "alpha is restarting", res.Message)
		assert.Equal(t, []string{"mc_alpha:stop"}, f.mux.SentTexts())

		require.Eventually(t, func() bool { return f.mux.LaunchCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	})

	t.Run("stopped workload is started", func(t *testing.T) {
		f := newFixture(t, "echo hi")

		_, err := f.ctrl.Restart(ctx, "alpha")
		require.NoError(t, err)
		require.Eventually(t, func() bool { return f.mux.LaunchCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	})

	t.Run("failed stop aborts", func(t *testing.T) {
		f := newFixture(t, "echo hi")
		f.mux.Add("mc_alpha")
		f.mux.StopAfter = -1
		f.mux.QuitFails = true

		_, err := f.ctrl.Restart(ctx, "alpha")
		require.ErrorIs(t, err, workload.ErrForceStopFailed)

		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, 0, f.mux.LaunchCount())
	})
}

func TestSendCommand(t *testing.T) {
	f := newFixture(t, "echo hi")
	ctx := context.Background()

	err := f.ctrl.SendCommand(ctx, "alpha", "say hello")
	require.ErrorIs(t, err, workload.ErrNotRunning)

	f.mux.Add("mc_alpha")
	require.NoError(t, f.ctrl.SendCommand(ctx, "alpha", "say hello"))
	assert.Equal(t, []string{"mc_alpha:say hello"}, f.mux.SentTexts())
}

func TestSendCommandRejectsLineBreaks(t *testing.T) {
	f := newFixture(t, "echo hi")
	f.mux.Add("mc_alpha")

	for _, line := range []string{"say bye\nstop", "say bye\r\nstop", "stop\r"} {
		err := f.ctrl.SendCommand(context.Background(), "alpha", line)
		var verr *hearterrors.ValidationError
		if !errors.As(err, &verr) || verr.Field != "command" {
			t.Errorf("SendCommand(%q) error = %v, want command validation error", line, err)
		}
	}
	assert.Empty(t, f.mux.SentTexts())
}

func TestClearLogs(t *testing.T) {
	f := newFixture(t, "echo hi")
	ctx := context.Background()
	logPath := filepath.Join(f.dir, "logs", "latest.log")

	require.NoError(t, os.MkdirAll(filepath.Dir(logPath), 0o755))
	require.NoError(t, os.WriteFile(logPath, []byte("old\nlines\n"), 0o644))

	require.NoError(t, f.ctrl.ClearLogs(ctx, "alpha"))
	page, err := logsink.Tail(logPath, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{logsink.ClearedMarker}, page.Lines)
	assert.Empty(t, f.mux.SentTexts(), "stopped workloads get no console clear")

	f.mux.Add("mc_alpha")
	require.NoError(t, f.ctrl.ClearLogs(ctx, "alpha"))
	assert.Equal(t, []string{"mc_alpha:clear"}, f.mux.SentTexts())
}
