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

// Package config loads hearthd configuration from defaults, an optional YAML
// file, and HEARTH_* environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	hearterrors "github.com/tombee/hearth/pkg/errors"
)

// Backend types.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config represents the complete hearth configuration.
type Config struct {
	Log    LogConfig    `yaml:"log"`
	Daemon DaemonConfig `yaml:"daemon"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	Level string `yaml:"level"`

	// Format sets the output format (json, text).
	Format string `yaml:"format"`

	// AddSource adds source file and line information to logs.
	AddSource bool `yaml:"add_source"`
}

// DaemonConfig configures hearthd.
type DaemonConfig struct {
	Listen ListenConfig `yaml:"listen"`

	// DataDir holds the database and, by default, the servers directory.
	DataDir string `yaml:"data_dir"`

	// ServersDir is the parent of default workload working directories.
	ServersDir string `yaml:"servers_dir"`

	// PIDFile is written on start and removed on shutdown when set.
	PIDFile string `yaml:"pid_file"`

	Backend BackendConfig `yaml:"backend"`

	// MaxBackgroundJobs bounds concurrent launches, installs, backups,
	// and task firings.
	MaxBackgroundJobs int `yaml:"max_background_jobs"`

	// ShutdownTimeout bounds HTTP server shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// DrainTimeout bounds the wait for background jobs on shutdown.
	DrainTimeout time.Duration `yaml:"drain_timeout"`

	Multiplexer MultiplexerConfig `yaml:"multiplexer"`

	// Shell runs start and install commands. Default: bash.
	Shell string `yaml:"shell"`

	// Timezone is the IANA zone cron expressions are evaluated in.
	// Empty means the host's local zone.
	Timezone string `yaml:"timezone"`

	Console ConsoleConfig `yaml:"console"`

	Metrics MetricsConfig `yaml:"metrics"`

	Tracing TracingConfig `yaml:"tracing"`
}

// ListenConfig selects where the API listens.
type ListenConfig struct {
	// SocketPath is the Unix socket path. Ignored when TCPAddr is set.
	SocketPath string `yaml:"socket_path"`

	// TCPAddr listens on TCP instead of the socket, e.g. "127.0.0.1:9181".
	TCPAddr string `yaml:"tcp_addr"`

	// AllowRemote permits binding TCPAddr to a non-loopback address.
	AllowRemote bool `yaml:"allow_remote"`
}

// BackendConfig selects the storage backend.
type BackendConfig struct {
	// Type is "sqlite" or "memory".
	Type string `yaml:"type"`

	SQLite SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig struct {
	// Path defaults to <data_dir>/hearth.db.
	Path string `yaml:"path"`

	// WAL enables write-ahead logging.
	WAL bool `yaml:"wal"`
}

// MultiplexerConfig configures the session multiplexer.
type MultiplexerConfig struct {
	// Binary is the screen executable. Default: screen.
	Binary string `yaml:"binary"`

	// Wrapper is prepended to every invocation, e.g. ["wsl"].
	Wrapper []string `yaml:"wrapper"`
}

// ConsoleConfig rate-limits console commands per workload.
type ConsoleConfig struct {
	// Rate is the sustained commands per second.
	Rate float64 `yaml:"rate"`

	// Burst is the number of commands allowed at once.
	Burst int `yaml:"burst"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Trace exporters.
const (
	ExporterStdout   = "stdout"
	ExporterOTLPHTTP = "otlp-http"
	ExporterOTLPGRPC = "otlp-grpc"
)

// TracingConfig controls OpenTelemetry trace export.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Exporter is one of stdout, otlp-http, or otlp-grpc.
	Exporter string `yaml:"exporter"`

	// Endpoint is the collector host:port for the OTLP exporters.
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS to the collector.
	Insecure bool `yaml:"insecure"`

	// Headers are sent with every export request.
	Headers map[string]string `yaml:"headers"`

	// SampleRate is the fraction of root spans recorded, from 0 to 1.
	SampleRate float64 `yaml:"sample_rate"`
}

// Default returns a Config with default values. Paths derived from the data
// directory are filled in by Load.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Daemon: DaemonConfig{
			DataDir: defaultDataDir(),
			Backend: BackendConfig{
				Type:   BackendSQLite,
				SQLite: SQLiteConfig{WAL: true},
			},
			MaxBackgroundJobs: 8,
			ShutdownTimeout:   30 * time.Second,
			DrainTimeout:      60 * time.Second,
			Multiplexer:       MultiplexerConfig{Binary: "screen"},
			Shell:             "bash",
			Console:           ConsoleConfig{Rate: 5, Burst: 10},
			Metrics:           MetricsConfig{Enabled: true},
			Tracing:           TracingConfig{Exporter: ExporterStdout, SampleRate: 1},
		},
	}
}

// Override adjusts a Config after the file and environment are applied,
// e.g. from command-line flags.
type Override func(*Config)

// Load loads configuration from defaults, the YAML file at configPath (if
// non-empty), the environment, and overrides, then validates it.
func Load(configPath string, overrides ...Override) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &hearterrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	cfg.loadFromEnv()
	for _, o := range overrides {
		o(cfg)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile overlays the YAML file at path. Fields absent from the file
// keep their current values.
func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// loadFromEnv applies HEARTH_* overrides. Unparseable numbers are ignored.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("HEARTH_LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("HEARTH_LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("HEARTH_SOCKET"); val != "" {
		c.Daemon.Listen.SocketPath = val
	}
	if val := os.Getenv("HEARTH_TCP_ADDR"); val != "" {
		c.Daemon.Listen.TCPAddr = val
	}
	if val := os.Getenv("HEARTH_DATA_DIR"); val != "" {
		c.Daemon.DataDir = val
	}
	if val := os.Getenv("HEARTH_SERVERS_DIR"); val != "" {
		c.Daemon.ServersDir = val
	}
	if val := os.Getenv("HEARTH_BACKEND"); val != "" {
		c.Daemon.Backend.Type = strings.ToLower(val)
	}
	if val := os.Getenv("HEARTH_SCREEN_BIN"); val != "" {
		c.Daemon.Multiplexer.Binary = val
	}
	if val := os.Getenv("HEARTH_MAX_JOBS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Daemon.MaxBackgroundJobs = n
		}
	}
	if val := os.Getenv("HEARTH_TIMEZONE"); val != "" {
		c.Daemon.Timezone = val
	}
	if val := os.Getenv("HEARTH_TRACING_EXPORTER"); val != "" {
		c.Daemon.Tracing.Enabled = true
		c.Daemon.Tracing.Exporter = val
	}
	if val := os.Getenv("HEARTH_OTLP_ENDPOINT"); val != "" {
		c.Daemon.Tracing.Endpoint = val
	}
}

// applyDefaults fills paths derived from the data directory.
func (c *Config) applyDefaults() {
	if c.Daemon.Listen.SocketPath == "" && c.Daemon.Listen.TCPAddr == "" {
		c.Daemon.Listen.SocketPath = defaultSocketPath(c.Daemon.DataDir)
	}
	if c.Daemon.ServersDir == "" {
		c.Daemon.ServersDir = filepath.Join(c.Daemon.DataDir, "servers")
	}
	if c.Daemon.Backend.SQLite.Path == "" {
		c.Daemon.Backend.SQLite.Path = filepath.Join(c.Daemon.DataDir, "hearth.db")
	}
	if c.Daemon.Multiplexer.Binary == "" {
		c.Daemon.Multiplexer.Binary = "screen"
	}
	if c.Daemon.Shell == "" {
		c.Daemon.Shell = "bash"
	}
}

// Validate checks the configuration and returns a *errors.ConfigError
// naming the first invalid key.
func (c *Config) Validate() error {
	invalid := func(key, format string, args ...any) error {
		return &hearterrors.ConfigError{Key: key, Reason: fmt.Sprintf(format, args...)}
	}

	switch c.Log.Level {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return invalid("log.level", "must be one of [trace, debug, info, warn, error], got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return invalid("log.format", "must be one of [json, text], got %q", c.Log.Format)
	}

	d := &c.Daemon
	if d.Listen.SocketPath == "" && d.Listen.TCPAddr == "" {
		return invalid("daemon.listen", "one of socket_path or tcp_addr is required")
	}
	if d.DataDir == "" {
		return invalid("daemon.data_dir", "is required")
	}
	switch d.Backend.Type {
	case BackendSQLite, BackendMemory:
	default:
		return invalid("daemon.backend.type", "must be one of [sqlite, memory], got %q", d.Backend.Type)
	}
	if d.MaxBackgroundJobs < 1 {
		return invalid("daemon.max_background_jobs", "must be at least 1, got %d", d.MaxBackgroundJobs)
	}
	if d.ShutdownTimeout <= 0 {
		return invalid("daemon.shutdown_timeout", "must be positive, got %v", d.ShutdownTimeout)
	}
	if d.DrainTimeout <= 0 {
		return invalid("daemon.drain_timeout", "must be positive, got %v", d.DrainTimeout)
	}
	if d.Timezone != "" {
		if _, err := time.LoadLocation(d.Timezone); err != nil {
			return &hearterrors.ConfigError{Key: "daemon.timezone", Reason: "unknown time zone", Cause: err}
		}
	}
	if d.Console.Rate <= 0 {
		return invalid("daemon.console.rate", "must be positive, got %v", d.Console.Rate)
	}
	if d.Console.Burst < 1 {
		return invalid("daemon.console.burst", "must be at least 1, got %d", d.Console.Burst)
	}
	if t := d.Tracing; t.Enabled {
		switch t.Exporter {
		case ExporterStdout:
		case ExporterOTLPHTTP, ExporterOTLPGRPC:
			if t.Endpoint == "" {
				return invalid("daemon.tracing.endpoint", "is required for the %s exporter", t.Exporter)
			}
		default:
			return invalid("daemon.tracing.exporter", "must be one of [stdout, otlp-http, otlp-grpc], got %q", t.Exporter)
		}
		if t.SampleRate < 0 || t.SampleRate > 1 {
			return invalid("daemon.tracing.sample_rate", "must be between 0 and 1, got %v", t.SampleRate)
		}
	}
	return nil
}

// Location returns the zone cron expressions are evaluated in.
func (d *DaemonConfig) Location() *time.Location {
	if d.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
