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

package session

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/hearth/internal/log"
)

func TestListed(t *testing.T) {
	listing := "There are screens on:\n" +
		"\t4242.mc_alpha2\t(Detached)\n" +
		"\t4243.mc_beta\t(Attached)\n" +
		"2 Sockets in /run/screen/S-mc.\n"

	tests := []struct {
		session string
		want    bool
	}{
		{"mc_beta", true},
		{"mc_alpha2", true},
		{"mc_alpha", false},
		{"alpha2", false},
		{"mc_bet", false},
	}
	for _, tt := range tests {
		t.Run(tt.session, func(t *testing.T) {
			assert.Equal(t, tt.want, Listed(listing, tt.session))
		})
	}

	assert.False(t, Listed("No Sockets found in /run/screen/S-mc.\n", "mc_alpha"))
}

func TestChain(t *testing.T) {
	got := Chain("/srv/my server", []string{"./fetch.sh", "java -jar server.jar nogui"})
	assert.Equal(t, "cd '/srv/my server' && ./fetch.sh && java -jar server.jar nogui", got)
}

type listStub struct {
	Multiplexer
	out string
	err error
}

func (l listStub) List(context.Context) (string, error) { return l.out, l.err }

func TestProbe(t *testing.T) {
	ctx := context.Background()

	p := NewProbe(listStub{out: "\t1.mc_alpha\t(Detached)\n"}, log.Discard())
	assert.True(t, p.IsRunning(ctx, "alpha"))
	assert.False(t, p.IsRunning(ctx, "beta"))

	var buf bytes.Buffer
	logger := log.New(&log.Config{Level: "info", Format: log.FormatJSON, Output: &buf})
	missing := NewProbe(listStub{err: ErrToolMissing}, logger)
	assert.False(t, missing.IsRunning(ctx, "alpha"))
	assert.Contains(t, buf.String(), "listing sessions failed")
	assert.Contains(t, buf.String(), "\"workload\":\"alpha\"")
}

func TestScreenMissingBinary(t *testing.T) {
	s := NewScreen(filepath.Join(t.TempDir(), "no-such-screen"), nil, log.Discard())
	_, err := s.List(context.Background())
	assert.True(t, errors.Is(err, ErrToolMissing), "got %v", err)
}

func requireScreen(t *testing.T) string {
	t.Helper()
	bin, err := exec.LookPath("screen")
	if err != nil {
		t.Skip("screen not installed")
	}
	out, _ := exec.Command(bin, "-v").CombinedOutput()
	if strings.Contains(string(out), "4.00") || strings.Contains(string(out), "4.01") {
		t.Skip("screen too old for -Logfile")
	}
	return bin
}

func TestScreenLifecycle(t *testing.T) {
	bin := requireScreen(t)
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "logs"), 0o755))

	s := NewScreen(bin, nil, log.Discard())
	name := "mc_hearth_test_" + filepath.Base(dir)

	err := s.Launch(ctx, LaunchSpec{
		Session: name,
		Dir:     dir,
		LogFile: filepath.Join(dir, "logs", "latest.log"),
		Command: Chain(dir, []string{"sleep 30"}),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Quit(context.Background(), name) })

	require.Eventually(t, func() bool {
		out, err := s.List(ctx)
		return err == nil && Listed(out, name)
	}, 5*time.Second, 100*time.Millisecond)

	require.NoError(t, s.Quit(ctx, name))

	require.Eventually(t, func() bool {
		out, err := s.List(ctx)
		return err == nil && !Listed(out, name)
	}, 5*time.Second, 100*time.Millisecond)

	err = s.Send(ctx, name, "stop")
	assert.Error(t, err)
}
