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

// Package scheduler provides the single cron scheduler shared by the task
// engine and the backup scheduler. Entries are keyed; setting a key replaces
// its previous entry atomically with respect to firing.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/tombee/hearth/internal/log"
	"github.com/tombee/hearth/internal/metrics"
)

// Job is the work run when an entry fires.
type Job func(ctx context.Context)

// Dispatcher hands a due job to whatever executes it. It must not block.
type Dispatcher func(key string, job Job)

type entry struct {
	key      string
	spec     string
	expr     *CronExpr
	job      Job
	nextRun  time.Time
	lastRun  *time.Time
	runCount int64
}

// Scheduler fires registered jobs at their cron times.
type Scheduler struct {
	mu       sync.Mutex
	entries  map[string]*entry
	dispatch Dispatcher
	now      func() time.Time
	loc      *time.Location
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
	logger   *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithDispatcher routes due jobs through d instead of bare goroutines.
func WithDispatcher(d Dispatcher) Option {
	return func(s *Scheduler) { s.dispatch = d }
}

// WithLocation evaluates cron expressions in loc. Default: time.Local.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.loc = loc }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a stopped scheduler.
func New(logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		entries:  make(map[string]*entry),
		now:      time.Now,
		loc:      time.Local,
		interval: time.Second,
		logger:   log.WithComponent(logger, "scheduler"),
	}
	s.dispatch = func(key string, job Job) { go job(context.Background()) }
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Set registers job under key, replacing any existing entry. If spec does
// not parse, the existing entry is left in place and the error is returned.
func (s *Scheduler) Set(key, spec string, job Job) error {
	expr, err := ParseCron(spec)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := &entry{
		key:     key,
		spec:    spec,
		expr:    expr,
		job:     job,
		nextRun: expr.Next(s.now().In(s.loc)),
	}
	if old, ok := s.entries[key]; ok {
		e.lastRun = old.lastRun
		e.runCount = old.runCount
	}
	s.entries[key] = e
	metrics.SetScheduledEntries(len(s.entries))

	s.logger.Debug("schedule set", slog.String("key", key), slog.String("cron", spec), slog.Time("next_run", e.nextRun))
	return nil
}

// Remove unregisters key. It reports whether an entry existed.
func (s *Scheduler) Remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.entries[key]
	delete(s.entries, key)
	metrics.SetScheduledEntries(len(s.entries))
	return ok
}

// Has reports whether key is registered.
func (s *Scheduler) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	return ok
}

// Len returns the number of registered entries.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Start starts the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.run(ctx)
}

// Stop stops the scheduler loop and waits for it to exit. Jobs already
// dispatched keep running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	<-s.doneCh
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick(s.now())
		}
	}
}

// tick dispatches every entry due at now. It holds the lock for the whole
// scan so no entry can be replaced between being found due and dispatched.
func (s *Scheduler) tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now = now.In(s.loc)
	for _, e := range s.entries {
		if e.nextRun.IsZero() || now.Before(e.nextRun) {
			continue
		}

		s.dispatch(e.key, e.job)

		fired := now
		e.lastRun = &fired
		e.runCount++
		e.nextRun = e.expr.Next(now)
		s.logger.Debug("schedule fired", slog.String("key", e.key), slog.Time("next_run", e.nextRun))
	}
}

// EntryStatus describes one registration.
type EntryStatus struct {
	Key      string     `json:"key"`
	Cron     string     `json:"cron"`
	NextRun  time.Time  `json:"next_run"`
	LastRun  *time.Time `json:"last_run,omitempty"`
	RunCount int64      `json:"run_count"`
}

// Status returns every registration ordered by key.
func (s *Scheduler) Status() []EntryStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]EntryStatus, 0, len(s.entries))
	for _, e := range s.entries {
		result = append(result, EntryStatus{
			Key:      e.key,
			Cron:     e.spec,
			NextRun:  e.nextRun,
			LastRun:  e.lastRun,
			RunCount: e.runCount,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result
}
