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

// Package backup archives workload directories on a fixed cadence and prunes
// old archives.
//
// Scheduled and manual runs share RunBackup. A run writes
// <workload>-YYYYMMDD-HHMMSS.tar.gz into the policy location, skipping the
// location itself and any excluded paths, and then applies retention.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tombee/hearth/internal/daemon/backend"
	"github.com/tombee/hearth/internal/daemon/scheduler"
	"github.com/tombee/hearth/internal/daemon/worker"
	"github.com/tombee/hearth/internal/log"
	"github.com/tombee/hearth/internal/metrics"
	"github.com/tombee/hearth/internal/tracing"
	"github.com/tombee/hearth/internal/workload"
	hearterrors "github.com/tombee/hearth/pkg/errors"
)

// Trigger labels what started a backup run.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

// Store is the persistence the service needs.
type Store interface {
	GetWorkload(ctx context.Context, name string) (*workload.Workload, error)
	backend.BackupPolicyStore
}

// Registry holds live cron registrations.
type Registry interface {
	Set(key, spec string, job scheduler.Job) error
	Remove(key string) bool
}

// Submitter accepts fire-and-forget background jobs.
type Submitter interface {
	Submit(kind string, job worker.Job) error
}

// Key returns the scheduler key of a workload's backup policy.
func Key(name string) string {
	return "backup:" + name
}

// Service owns backup policies and runs.
type Service struct {
	store  Store
	sched  Registry
	pool   Submitter
	logger *slog.Logger
	now    func() time.Time

	// mu serializes policy mutations with their registrations.
	mu sync.Mutex

	runMu sync.Mutex
	runs  map[string]*sync.Mutex
}

// NewService registers every persisted policy that is enabled.
func NewService(ctx context.Context, store Store, sched Registry, pool Submitter, logger *slog.Logger) (*Service, error) {
	s := &Service{
		store:  store,
		sched:  sched,
		pool:   pool,
		logger: log.WithComponent(logger, "backup"),
		now:    time.Now,
		runs:   make(map[string]*sync.Mutex),
	}

	policies, err := store.ListBackupPolicies(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading backup policies: %w", err)
	}
	registered := 0
	for name, p := range policies {
		if !p.Enabled() {
			continue
		}
		if err := s.register(name, p); err != nil {
			log.WithWorkload(s.logger, name).Error("skipping backup policy", log.Error(err))
			continue
		}
		registered++
	}
	s.logger.Info("backup policies loaded", slog.Int("registered", registered))
	return s, nil
}

func (s *Service) register(name string, p workload.BackupPolicy) error {
	return s.sched.Set(Key(name), p.Frequency.Cron(), func(ctx context.Context) {
		if _, err := s.RunBackup(ctx, name, TriggerScheduled); err != nil {
			log.WithWorkload(s.logger, name).Error("scheduled backup failed", log.Error(err))
		}
	})
}

// GetPolicy returns the workload's policy, or the default policy when none
// was saved.
func (s *Service) GetPolicy(ctx context.Context, name string) (workload.BackupPolicy, error) {
	if _, err := s.store.GetWorkload(ctx, name); err != nil {
		return workload.BackupPolicy{}, err
	}
	p, err := s.store.GetBackupPolicy(ctx, name)
	if errors.Is(err, workload.ErrNotFound) {
		return workload.DefaultBackupPolicy(), nil
	}
	if err != nil {
		return workload.BackupPolicy{}, err
	}
	return *p, nil
}

// SetPolicy replaces the workload's policy and its schedule.
func (s *Service) SetPolicy(ctx context.Context, name string, p workload.BackupPolicy) (workload.BackupPolicy, error) {
	if err := p.Validate(); err != nil {
		return workload.BackupPolicy{}, err
	}
	if _, err := s.store.GetWorkload(ctx, name); err != nil {
		return workload.BackupPolicy{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.SaveBackupPolicy(ctx, name, p); err != nil {
		metrics.RecordPersistenceError("save_backup_policy", hearterrors.Type(err))
		return workload.BackupPolicy{}, hearterrors.Wrapf(err, "saving backup policy of %s", name)
	}

	logger := log.WithWorkload(s.logger, name)
	if p.Enabled() {
		if err := s.register(name, p); err != nil {
			return workload.BackupPolicy{}, workload.NewOpError("set backup policy", name, "", workload.ErrInvalidSchedule, err.Error())
		}
		logger.Info("backup scheduled", slog.String("frequency", string(p.Frequency)), slog.String("location", p.Location))
	} else {
		s.sched.Remove(Key(name))
		logger.Info("backup schedule cleared")
	}
	return p, nil
}

// DeletePolicy removes the workload's policy and its schedule. Archives
// already written are left alone. Deleting an absent policy returns an
// error matching workload.ErrNotFound.
func (s *Service) DeletePolicy(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.store.GetBackupPolicy(ctx, name); err != nil {
		return err
	}
	if err := s.store.DeleteBackupPolicy(ctx, name); err != nil {
		metrics.RecordPersistenceError("delete_backup_policy", hearterrors.Type(err))
		return hearterrors.Wrapf(err, "deleting backup policy of %s", name)
	}
	s.sched.Remove(Key(name))
	log.WithWorkload(s.logger, name).Info("backup policy deleted")
	return nil
}

// RunNow queues a backup run and returns once it is accepted.
func (s *Service) RunNow(ctx context.Context, name string) error {
	if _, err := s.store.GetWorkload(ctx, name); err != nil {
		return err
	}
	return s.pool.Submit("backup", func(ctx context.Context) {
		if _, err := s.RunBackup(ctx, name, TriggerManual); err != nil {
			log.WithWorkload(s.logger, name).Error("manual backup failed", log.Error(err))
		}
	})
}

// RunBackup archives the workload and applies retention. It returns the
// archive path, or "" when the policy is disabled or has no location.
// Runs for the same workload are serialized.
func (s *Service) RunBackup(ctx context.Context, name string, trigger Trigger) (path string, err error) {
	ctx, span := tracing.Start(ctx, "backup.run", name, tracing.TriggerKey.String(string(trigger)))
	defer func() { tracing.End(span, err) }()

	w, err := s.store.GetWorkload(ctx, name)
	if err != nil {
		return "", err
	}
	p, err := s.GetPolicy(ctx, name)
	if err != nil {
		return "", err
	}

	logger := log.WithWorkload(s.logger, name).With(slog.String("trigger", string(trigger)))
	if !p.Enabled() {
		logger.Info("backup skipped, policy disabled or has no location")
		metrics.RecordBackup(string(trigger), metrics.OutcomeSkipped)
		return "", nil
	}

	l := s.lockFor(name)
	l.Lock()
	defer l.Unlock()

	dest := Destination(w, p)
	start := time.Now()
	path, size, err := writeArchive(ctx, w.Name, w.WorkingDirectory, dest, p.Exclude, s.now())
	if err != nil {
		metrics.RecordBackup(string(trigger), metrics.OutcomeFailed)
		return "", fmt.Errorf("backing up %s: %w", name, err)
	}
	logger.Info("backup written",
		slog.String("archive", path),
		slog.String("size", humanize.Bytes(uint64(size))),
		log.Duration(time.Since(start)))

	removed, err := EnforceRetention(dest, name, p.Retention)
	if err != nil {
		metrics.RecordBackup(string(trigger), metrics.OutcomeFailed)
		return path, fmt.Errorf("applying retention for %s: %w", name, err)
	}
	if len(removed) > 0 {
		metrics.AddPruned(len(removed))
		logger.Info("old backups removed", slog.Int("count", len(removed)))
	}

	metrics.RecordBackup(string(trigger), metrics.OutcomeOK)
	return path, nil
}

// ListArchives returns the workload's archives, newest first. A policy
// without a location has none.
func (s *Service) ListArchives(ctx context.Context, name string) ([]Archive, error) {
	w, err := s.store.GetWorkload(ctx, name)
	if err != nil {
		return nil, err
	}
	p, err := s.GetPolicy(ctx, name)
	if err != nil {
		return nil, err
	}
	if p.Location == "" {
		return []Archive{}, nil
	}
	return ListArchives(Destination(w, p), name)
}

func (s *Service) lockFor(name string) *sync.Mutex {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	l, ok := s.runs[name]
	if !ok {
		l = &sync.Mutex{}
		s.runs[name] = l
	}
	return l
}

// Destination resolves the policy location. Relative locations are taken
// from the workload's working directory.
func Destination(w *workload.Workload, p workload.BackupPolicy) string {
	if filepath.IsAbs(p.Location) {
		return filepath.Clean(p.Location)
	}
	return filepath.Join(w.WorkingDirectory, p.Location)
}
