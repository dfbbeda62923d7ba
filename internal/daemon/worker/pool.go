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

// Package worker runs fire-and-forget background jobs with bounded
// concurrency. Submitters get no handle back: once accepted, a job runs to
// completion independently of the request that queued it.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tombee/hearth/internal/log"
	"github.com/tombee/hearth/internal/metrics"
)

// ErrDraining is returned by Submit once shutdown has begun.
var ErrDraining = errors.New("worker pool is draining")

// Job is a unit of background work. The context is never cancelled by the pool.
type Job func(ctx context.Context)

// Pool executes Jobs on goroutines, at most max at a time.
type Pool struct {
	sem      *semaphore.Weighted
	wg       sync.WaitGroup
	draining atomic.Bool
	pending  atomic.Int64
	logger   *slog.Logger
}

// New creates a Pool running at most max jobs concurrently.
func New(max int, logger *slog.Logger) *Pool {
	if max < 1 {
		max = 1
	}
	return &Pool{
		sem:    semaphore.NewWeighted(int64(max)),
		logger: log.WithComponent(logger, "worker"),
	}
}

// Submit queues job under kind (used for logs and metrics). It never blocks
// on pool capacity.
func (p *Pool) Submit(kind string, job Job) error {
	if p.draining.Load() {
		return ErrDraining
	}
	metrics.RecordJobSubmitted(kind)
	p.wg.Add(1)
	p.pending.Add(1)
	go p.run(kind, job)
	return nil
}

func (p *Pool) run(kind string, job Job) {
	defer p.wg.Done()
	defer p.pending.Add(-1)

	ctx := context.Background()
	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.logger.Error("acquiring worker slot", slog.String("kind", kind), log.Error(err))
		return
	}
	defer p.sem.Release(1)

	metrics.JobStarted()
	defer metrics.JobFinished()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("background job panicked",
				slog.String("kind", kind),
				slog.String("panic", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	job(ctx)
	p.logger.Debug("background job finished", slog.String("kind", kind), log.Duration(time.Since(start)))
}

// Pending returns the number of accepted jobs that have not finished.
func (p *Pool) Pending() int {
	return int(p.pending.Load())
}

// StartDraining makes later Submit calls fail with ErrDraining.
func (p *Pool) StartDraining() {
	p.draining.Store(true)
}

// IsDraining reports whether StartDraining was called.
func (p *Pool) IsDraining() bool {
	return p.draining.Load()
}

// WaitForDrain waits until every accepted job has finished, the timeout
// elapses, or ctx is done.
func (p *Pool) WaitForDrain(ctx context.Context, timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(timeout):
		return fmt.Errorf("drain timeout: %d job(s) still running", p.Pending())
	}
}
