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

package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Format represents the log output format.
type Format string

const (
	// FormatJSON outputs logs in JSON format for machine parsing.
	FormatJSON Format = "json"
	// FormatText outputs logs in human-readable text format.
	FormatText Format = "text"
)

// LevelTrace is more verbose than Debug. Used for raw multiplexer output.
const LevelTrace = slog.Level(-8)

// Standard field keys for structured logging.
const (
	// WorkloadKey is the field key for workload names.
	WorkloadKey = "workload"
	// TaskIDKey is the field key for scheduled task identifiers.
	TaskIDKey = "task_id"
	// ActionKey is the field key for lifecycle actions (start, stop, ...).
	ActionKey = "action"
	// SessionKey is the field key for multiplexer session names.
	SessionKey = "session"
	// ComponentKey is the field key for the emitting component.
	ComponentKey = "component"
	// DurationKey is the field key for duration in milliseconds.
	DurationKey = "duration_ms"
)

// Config holds the logging configuration.
type Config struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	// Default: info
	Level string

	// Format sets the output format (json, text).
	// Default: json
	Format Format

	// Output is the writer for log output.
	// Default: os.Stderr
	Output io.Writer

	// AddSource adds source file and line information to logs.
	AddSource bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: FormatJSON,
		Output: os.Stderr,
	}
}

// FromEnv creates a Config from environment variables.
// Supported environment variables:
//   - HEARTH_DEBUG: true/1 enables debug level and source logging (takes precedence)
//   - HEARTH_LOG_LEVEL: trace, debug, info, warn, error
//   - HEARTH_LOG_FORMAT: json, text
//   - HEARTH_LOG_SOURCE: 1 to enable source file/line
func FromEnv() *Config {
	cfg := DefaultConfig()

	debug := os.Getenv("HEARTH_DEBUG")
	if debug == "true" || debug == "1" {
		cfg.Level = "debug"
		cfg.AddSource = true
	} else if level := os.Getenv("HEARTH_LOG_LEVEL"); level != "" {
		cfg.Level = strings.ToLower(level)
	}

	if format := os.Getenv("HEARTH_LOG_FORMAT"); format != "" {
		cfg.Format = Format(strings.ToLower(format))
	}

	if os.Getenv("HEARTH_LOG_SOURCE") == "1" {
		cfg.AddSource = true
	}

	return cfg
}

// New creates a new structured logger from the given configuration.
func New(cfg *Config) *slog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatText:
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler)
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel converts a string level to slog.Level. Unknown values map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent returns a new logger with a component name field.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(ComponentKey, component)
}

// WithWorkload returns a new logger scoped to a single workload.
func WithWorkload(logger *slog.Logger, workload string) *slog.Logger {
	return logger.With(slog.String(WorkloadKey, workload))
}

// WithTask returns a new logger scoped to a scheduled task of a workload.
func WithTask(logger *slog.Logger, workload, taskID string) *slog.Logger {
	return logger.With(
		slog.String(WorkloadKey, workload),
		slog.String(TaskIDKey, taskID),
	)
}

// Error creates an error attribute.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

// Duration creates a duration attribute in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(DurationKey, d.Milliseconds())
}

// Trace logs a message at trace level.
func Trace(logger *slog.Logger, msg string, attrs ...slog.Attr) {
	ctx := context.Background()
	if !logger.Enabled(ctx, LevelTrace) {
		return
	}
	logger.LogAttrs(ctx, LevelTrace, msg, attrs...)
}
