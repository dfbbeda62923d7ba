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

// Package sqlite provides a SQLite backend implementation for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tombee/hearth/internal/daemon/backend"
	"github.com/tombee/hearth/internal/workload"
)

// Compile-time interface assertions.
var (
	_ backend.WorkloadStore     = (*Backend)(nil)
	_ backend.TaskStore         = (*Backend)(nil)
	_ backend.BackupPolicyStore = (*Backend)(nil)
	_ backend.Backend           = (*Backend)(nil)
)

// Backend is a SQLite storage backend.
type Backend struct {
	db *sql.DB
}

// Config contains SQLite connection configuration.
type Config struct {
	// Path is the database file path.
	Path string

	// WAL enables Write-Ahead Logging mode for concurrent reads.
	WAL bool
}

// New opens (creating if needed) the database at cfg.Path and migrates it.
func New(cfg Config) (*Backend, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writes, so only 1 connection
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	b := &Backend{db: db}

	if err := b.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure pragmas: %w", err)
	}

	if err := b.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return b, nil
}

func (b *Backend) configurePragmas(ctx context.Context, enableWAL bool) error {
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	if enableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}

	for _, pragma := range pragmas {
		if _, err := b.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (b *Backend) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS workloads (
			name TEXT PRIMARY KEY,
			working_directory TEXT NOT NULL,
			start_commands TEXT,
			install_commands TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS task_lists (
			workload TEXT PRIMARY KEY,
			tasks TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS backup_policies (
			workload TEXT PRIMARY KEY,
			location TEXT,
			frequency TEXT NOT NULL,
			retention INTEGER NOT NULL DEFAULT 0,
			exclude TEXT,
			updated_at TEXT NOT NULL
		)`,
	}

	for _, migration := range migrations {
		if _, err := b.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// CreateWorkload stores a new workload.
func (b *Backend) CreateWorkload(ctx context.Context, w *workload.Workload) error {
	startJSON, installJSON, err := marshalScripts(w)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Truncate(time.Second)
	_, err = b.db.ExecContext(ctx, `
		INSERT INTO workloads (name, working_directory, start_commands, install_commands, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		w.Name, w.WorkingDirectory, nullString(startJSON), nullString(installJSON),
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("workload %s: %w", w.Name, backend.ErrConflict)
		}
		return fmt.Errorf("failed to create workload: %w", err)
	}

	w.CreatedAt = now
	w.UpdatedAt = now
	return nil
}

const selectWorkload = `SELECT name, working_directory, start_commands, install_commands, created_at, updated_at FROM workloads`

type scanner interface {
	Scan(dest ...any) error
}

func scanWorkload(row scanner) (*workload.Workload, error) {
	var w workload.Workload
	var startJSON, installJSON sql.NullString
	var createdAt, updatedAt string

	if err := row.Scan(&w.Name, &w.WorkingDirectory, &startJSON, &installJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if startJSON.Valid && startJSON.String != "" {
		if err := json.Unmarshal([]byte(startJSON.String), &w.StartCommands); err != nil {
			return nil, fmt.Errorf("failed to unmarshal start_commands: %w", err)
		}
	}
	if installJSON.Valid && installJSON.String != "" {
		if err := json.Unmarshal([]byte(installJSON.String), &w.InstallCommands); err != nil {
			return nil, fmt.Errorf("failed to unmarshal install_commands: %w", err)
		}
	}
	w.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	w.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &w, nil
}

// GetWorkload retrieves a workload by name.
func (b *Backend) GetWorkload(ctx context.Context, name string) (*workload.Workload, error) {
	w, err := scanWorkload(b.db.QueryRowContext(ctx, selectWorkload+` WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, workload.NotFound("workload", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workload: %w", err)
	}
	return w, nil
}

// ListWorkloads returns all workloads ordered by name.
func (b *Backend) ListWorkloads(ctx context.Context) ([]*workload.Workload, error) {
	rows, err := b.db.QueryContext(ctx, selectWorkload+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list workloads: %w", err)
	}
	defer rows.Close()

	result := []*workload.Workload{}
	for rows.Next() {
		w, err := scanWorkload(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workload: %w", err)
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

// UpdateWorkload replaces an existing workload record.
func (b *Backend) UpdateWorkload(ctx context.Context, w *workload.Workload) error {
	startJSON, installJSON, err := marshalScripts(w)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Truncate(time.Second)
	res, err := b.db.ExecContext(ctx, `
		UPDATE workloads SET working_directory = ?, start_commands = ?, install_commands = ?, updated_at = ?
		WHERE name = ?`,
		w.WorkingDirectory, nullString(startJSON), nullString(installJSON), now.Format(time.RFC3339), w.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to update workload: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return workload.NotFound("workload", w.Name)
	}
	w.UpdatedAt = now
	return nil
}

// DeleteWorkload removes a workload record.
func (b *Backend) DeleteWorkload(ctx context.Context, name string) error {
	res, err := b.db.ExecContext(ctx, `DELETE FROM workloads WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete workload: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return workload.NotFound("workload", name)
	}
	return nil
}

// GetTasks returns the task list of a workload.
func (b *Backend) GetTasks(ctx context.Context, name string) ([]workload.Task, error) {
	var doc string
	err := b.db.QueryRowContext(ctx, `SELECT tasks FROM task_lists WHERE workload = ?`, name).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return []workload.Task{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tasks: %w", err)
	}
	return unmarshalTasks(doc)
}

// SaveTasks replaces the task list of a workload.
func (b *Backend) SaveTasks(ctx context.Context, name string, tasks []workload.Task) error {
	if tasks == nil {
		tasks = []workload.Task{}
	}
	doc, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("failed to marshal tasks: %w", err)
	}

	_, err = b.db.ExecContext(ctx, `
		INSERT INTO task_lists (workload, tasks, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(workload) DO UPDATE SET tasks = excluded.tasks, updated_at = excluded.updated_at`,
		name, string(doc), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save tasks: %w", err)
	}
	return nil
}

// DeleteTasks removes the task list of a workload.
func (b *Backend) DeleteTasks(ctx context.Context, name string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM task_lists WHERE workload = ?`, name); err != nil {
		return fmt.Errorf("failed to delete tasks: %w", err)
	}
	return nil
}

// ListAllTasks returns every saved task list keyed by workload name.
func (b *Backend) ListAllTasks(ctx context.Context) (map[string][]workload.Task, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT workload, tasks FROM task_lists`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]workload.Task)
	for rows.Next() {
		var name, doc string
		if err := rows.Scan(&name, &doc); err != nil {
			return nil, fmt.Errorf("failed to scan tasks: %w", err)
		}
		tasks, err := unmarshalTasks(doc)
		if err != nil {
			return nil, fmt.Errorf("tasks of %s: %w", name, err)
		}
		result[name] = tasks
	}
	return result, rows.Err()
}

// GetBackupPolicy returns the saved policy of a workload.
func (b *Backend) GetBackupPolicy(ctx context.Context, name string) (*workload.BackupPolicy, error) {
	p, err := scanPolicy(b.db.QueryRowContext(ctx,
		`SELECT location, frequency, retention, exclude FROM backup_policies WHERE workload = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, workload.NotFound("backup policy", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get backup policy: %w", err)
	}
	return p, nil
}

func scanPolicy(row scanner, extra ...any) (*workload.BackupPolicy, error) {
	var p workload.BackupPolicy
	var location, exclude sql.NullString
	var frequency string

	dest := append(extra, &location, &frequency, &p.Retention, &exclude)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	p.Location = location.String
	p.Frequency = workload.Frequency(frequency)
	if exclude.Valid && exclude.String != "" {
		if err := json.Unmarshal([]byte(exclude.String), &p.Exclude); err != nil {
			return nil, fmt.Errorf("failed to unmarshal exclude: %w", err)
		}
	}
	return &p, nil
}

// SaveBackupPolicy replaces the policy of a workload.
func (b *Backend) SaveBackupPolicy(ctx context.Context, name string, p workload.BackupPolicy) error {
	var exclude string
	if len(p.Exclude) > 0 {
		data, err := json.Marshal(p.Exclude)
		if err != nil {
			return fmt.Errorf("failed to marshal exclude: %w", err)
		}
		exclude = string(data)
	}

	_, err := b.db.ExecContext(ctx, `
		INSERT INTO backup_policies (workload, location, frequency, retention, exclude, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(workload) DO UPDATE SET
			location = excluded.location,
			frequency = excluded.frequency,
			retention = excluded.retention,
			exclude = excluded.exclude,
			updated_at = excluded.updated_at`,
		name, nullString(p.Location), string(p.Frequency), p.Retention, nullString(exclude),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save backup policy: %w", err)
	}
	return nil
}

// DeleteBackupPolicy removes the policy of a workload.
func (b *Backend) DeleteBackupPolicy(ctx context.Context, name string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM backup_policies WHERE workload = ?`, name); err != nil {
		return fmt.Errorf("failed to delete backup policy: %w", err)
	}
	return nil
}

// ListBackupPolicies returns every saved policy keyed by workload name.
func (b *Backend) ListBackupPolicies(ctx context.Context) (map[string]workload.BackupPolicy, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT workload, location, frequency, retention, exclude FROM backup_policies`)
	if err != nil {
		return nil, fmt.Errorf("failed to list backup policies: %w", err)
	}
	defer rows.Close()

	result := make(map[string]workload.BackupPolicy)
	for rows.Next() {
		var name string
		p, err := scanPolicy(rows, &name)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backup policy: %w", err)
		}
		result[name] = *p
	}
	return result, rows.Err()
}

// Close closes the database.
func (b *Backend) Close() error {
	return b.db.Close()
}

func marshalScripts(w *workload.Workload) (string, string, error) {
	var startJSON, installJSON string
	if w.StartCommands != nil {
		data, err := json.Marshal(w.StartCommands)
		if err != nil {
			return "", "", fmt.Errorf("failed to marshal start_commands: %w", err)
		}
		startJSON = string(data)
	}
	if w.InstallCommands != nil {
		data, err := json.Marshal(w.InstallCommands)
		if err != nil {
			return "", "", fmt.Errorf("failed to marshal install_commands: %w", err)
		}
		installJSON = string(data)
	}
	return startJSON, installJSON, nil
}

func unmarshalTasks(doc string) ([]workload.Task, error) {
	tasks := []workload.Task{}
	if err := json.Unmarshal([]byte(doc), &tasks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tasks: %w", err)
	}
	return tasks, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
