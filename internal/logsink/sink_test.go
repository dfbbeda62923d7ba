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

package logsink

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedSink() *Sink {
	s := New()
	s.now = func() time.Time { return time.Date(2024, 5, 1, 9, 7, 3, 0, time.Local) }
	return s
}

func TestPrintfTagsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "latest.log")
	s := fixedSink()

	require.NoError(t, s.Printf(path, "Installer", "Running command: %s", "echo hi"))
	require.NoError(t, s.Printf(path, "Installer", "two\nlines"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"[09:07:03] [Installer] Running command: echo hi\n"+
			"[09:07:03] [Installer] two\n"+
			"[09:07:03] [Installer] lines\n",
		string(data))
}

func TestWriterCopy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latest.log")
	s := fixedSink()

	w, err := s.Open(path, "Installer")
	require.NoError(t, err)
	require.NoError(t, w.Copy(strings.NewReader("a\nb\nc")))
	require.NoError(t, w.Close())

	page, err := Tail(path, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"[09:07:03] [Installer] a",
		"[09:07:03] [Installer] b",
		"[09:07:03] [Installer] c",
	}, page.Lines)
}

func TestConcurrentWritersDoNotInterleave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latest.log")
	s := New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = s.Printf(path, "Installer", "%s", strings.Repeat("x", 200))
			}
		}()
	}
	wg.Wait()

	page, err := Tail(path, 0)
	require.NoError(t, err)
	assert.Equal(t, 400, page.LineCount)
	for _, l := range page.Lines {
		assert.True(t, strings.HasSuffix(l, strings.Repeat("x", 200)))
	}
}

func TestTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latest.log")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\nthree\n"), 0o644))

	tests := []struct {
		since int
		want  []string
	}{
		{0, []string{"one", "two", "three"}},
		{-4, []string{"one", "two", "three"}},
		{2, []string{"three"}},
		{3, []string{}},
		{10, []string{}},
	}
	for _, tt := range tests {
		page, err := Tail(path, tt.since)
		require.NoError(t, err)
		assert.Equal(t, tt.want, page.Lines, "since=%d", tt.since)
		assert.Equal(t, 3, page.LineCount)
	}
}

func TestTailMissingFile(t *testing.T) {
	page, err := Tail(filepath.Join(t.TempDir(), "nope.log"), 0)
	require.NoError(t, err)
	assert.Empty(t, page.Lines)
	assert.Zero(t, page.LineCount)
}

func TestClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "latest.log")
	s := New()
	require.NoError(t, s.Printf(path, "Controller", "hello"))
	require.NoError(t, s.Clear(path))

	page, err := Tail(path, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{ClearedMarker}, page.Lines)
}

func TestTrackerHoldsPartialLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latest.log")
	require.NoError(t, os.WriteFile(path, []byte("a\nb"), 0o644))

	tr := &tracker{path: path}
	lines, err := tr.read()
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, lines)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, _ = f.WriteString("c\nd\n")
	require.NoError(t, f.Close())

	lines, err = tr.read()
	require.NoError(t, err)
	assert.Equal(t, []string{"bc", "d"}, lines)

	require.NoError(t, os.WriteFile(path, []byte("x\n"), 0o644))
	lines, err = tr.read()
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, lines)
}

func TestFollow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "latest.log")
	s := New()
	require.NoError(t, s.Printf(path, "Controller", "first"))
	require.NoError(t, s.Printf(path, "Controller", "second"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []string
	done := make(chan error, 1)
	go func() {
		done <- Follow(ctx, path, 1, func(lines []string) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, lines...)
			return nil
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, s.Printf(path, "Controller", "third"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	assert.Contains(t, got[0], "second")
	assert.Contains(t, got[1], "third")
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Follow did not return after cancel")
	}
}
