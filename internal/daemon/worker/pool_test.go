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

package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/hearth/internal/log"
)

func TestSubmitRunsJob(t *testing.T) {
	p := New(2, log.Discard())
	done := make(chan struct{})

	require.NoError(t, p.Submit("test", func(ctx context.Context) { close(done) }))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run")
	}
}

func TestConcurrencyBound(t *testing.T) {
	p := New(2, log.Discard())

	var running, peak atomic.Int32
	release := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit("test", func(ctx context.Context) {
			defer wg.Done()
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			<-release
			running.Add(-1)
		}))
	}

	require.Eventually(t, func() bool { return running.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 6, p.Pending())
	close(release)
	wg.Wait()
	assert.Equal(t, int32(2), peak.Load())
}

func TestDraining(t *testing.T) {
	p := New(1, log.Discard())
	assert.False(t, p.IsDraining())

	release := make(chan struct{})
	require.NoError(t, p.Submit("slow", func(ctx context.Context) { <-release }))

	p.StartDraining()
	assert.True(t, p.IsDraining())
	assert.ErrorIs(t, p.Submit("late", func(ctx context.Context) {}), ErrDraining)

	err := p.WaitForDrain(context.Background(), 50*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "drain timeout: 1 job(s) still running")

	close(release)
	assert.NoError(t, p.WaitForDrain(context.Background(), 2*time.Second))
}

func TestWaitForDrainContextCancelled(t *testing.T) {
	p := New(1, log.Discard())
	release := make(chan struct{})
	defer close(release)
	require.NoError(t, p.Submit("slow", func(ctx context.Context) { <-release }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.WaitForDrain(ctx, time.Second), context.Canceled)
}

func TestPanicIsContained(t *testing.T) {
	p := New(1, log.Discard())
	require.NoError(t, p.Submit("boom", func(ctx context.Context) { panic("boom") }))
	require.NoError(t, p.WaitForDrain(context.Background(), 2*time.Second))

	ran := make(chan struct{})
	require.NoError(t, p.Submit("after", func(ctx context.Context) { close(ran) }))
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("pool unusable after panic")
	}
}
