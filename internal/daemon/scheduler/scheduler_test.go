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

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/hearth/internal/log"
)

type recorder struct {
	mu    sync.Mutex
	fired []string
}

func (r *recorder) dispatch(key string, job Job) {
	job(context.Background())
}

func (r *recorder) job(label string) Job {
	return func(ctx context.Context) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.fired = append(r.fired, label)
	}
}

func (r *recorder) labels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.fired...)
}

var ref = time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)

func newTestScheduler(r *recorder) *Scheduler {
	return New(log.Discard(),
		WithDispatcher(r.dispatch),
		WithLocation(time.UTC),
		WithClock(func() time.Time { return ref }))
}

func TestTickFiresDueEntries(t *testing.T) {
	r := &recorder{}
	s := newTestScheduler(r)

	require.NoError(t, s.Set("task:alpha:1", "* * * * *", r.job("every-minute")))
	require.NoError(t, s.Set("task:alpha:2", "0 3 * * *", r.job("nightly")))

	s.tick(ref.Add(30 * time.Second))
	assert.Empty(t, r.labels())

	s.tick(ref.Add(time.Minute))
	assert.Equal(t, []string{"every-minute"}, r.labels())

	// Same minute again: next run already advanced.
	s.tick(ref.Add(time.Minute + 10*time.Second))
	assert.Equal(t, []string{"every-minute"}, r.labels())

	status := s.Status()
	require.Len(t, status, 2)
	assert.Equal(t, "task:alpha:1", status[0].Key)
	assert.EqualValues(t, 1, status[0].RunCount)
	assert.Equal(t, ref.Add(2*time.Minute), status[0].NextRun)
	assert.Nil(t, status[1].LastRun)
}

func TestSetReplacesEntry(t *testing.T) {
	r := &recorder{}
	s := newTestScheduler(r)

	require.NoError(t, s.Set("k", "* * * * *", r.job("old")))
	require.NoError(t, s.Set("k", "* * * * *", r.job("new")))
	assert.Equal(t, 1, s.Len())

	s.tick(ref.Add(time.Minute))
	assert.Equal(t, []string{"new"}, r.labels())
}

func TestSetInvalidKeepsExisting(t *testing.T) {
	r := &recorder{}
	s := newTestScheduler(r)

	require.NoError(t, s.Set("k", "* * * * *", r.job("kept")))
	err := s.Set("k", "61 * * * *", r.job("bad"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "61 * * * *")

	s.tick(ref.Add(time.Minute))
	assert.Equal(t, []string{"kept"}, r.labels())
}

func TestRemove(t *testing.T) {
	r := &recorder{}
	s := newTestScheduler(r)

	require.NoError(t, s.Set("k", "* * * * *", r.job("x")))
	assert.True(t, s.Has("k"))
	assert.True(t, s.Remove("k"))
	assert.False(t, s.Remove("k"))
	assert.False(t, s.Has("k"))

	s.tick(ref.Add(time.Minute))
	assert.Empty(t, r.labels())
}

func TestConcurrentMutationAndFiring(t *testing.T) {
	var fired atomic.Int64
	s := New(log.Discard(), WithLocation(time.UTC), WithClock(func() time.Time { return ref }),
		WithDispatcher(func(key string, job Job) { job(context.Background()) }))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("k%d", j%5)
				if j%3 == 0 {
					s.Remove(key)
					continue
				}
				_ = s.Set(key, "* * * * *", func(ctx context.Context) { fired.Add(1) })
			}
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 200; j++ {
			s.tick(ref.Add(time.Duration(j+1) * time.Minute))
		}
	}()
	wg.Wait()

	assert.LessOrEqual(t, s.Len(), 5)
}

func TestStartStop(t *testing.T) {
	var clock atomic.Int64
	clock.Store(ref.UnixNano())
	done := make(chan struct{}, 1)

	s := New(log.Discard(), WithLocation(time.UTC),
		WithClock(func() time.Time { return time.Unix(0, clock.Load()).UTC() }))
	s.interval = 10 * time.Millisecond

	require.NoError(t, s.Set("k", "* * * * *", func(ctx context.Context) {
		select {
		case done <- struct{}{}:
		default:
		}
	}))

	s.Start(context.Background())
	s.Start(context.Background())
	clock.Store(ref.Add(time.Minute).UnixNano())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not fire")
	}
	s.Stop()
	s.Stop()
}
