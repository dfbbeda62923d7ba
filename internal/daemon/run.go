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

package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/tombee/hearth/internal/config"
	"github.com/tombee/hearth/internal/log"
)

// RunOptions configures daemon execution.
type RunOptions struct {
	Version   string
	Commit    string
	BuildDate string

	// ConfigPath is the YAML config file. Empty means the default path,
	// when that file exists.
	ConfigPath string

	// Config overrides
	BackendType string
	SocketPath  string
	TCPAddr     string
	DataDir     string
	ServersDir  string
	AllowRemote bool
}

// Run starts the daemon and blocks until SIGINT or SIGTERM, then shuts it
// down.
func Run(opts RunOptions) error {
	bootstrap := log.New(log.FromEnv())

	cfg, err := loadConfig(opts)
	if err != nil {
		bootstrap.Error("Failed to load config", log.Error(err))
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := log.New(&log.Config{
		Level:     cfg.Log.Level,
		Format:    log.Format(cfg.Log.Format),
		Output:    os.Stderr,
		AddSource: cfg.Log.AddSource,
	})
	slog.SetDefault(logger)

	if cfg.Daemon.Listen.AllowRemote {
		logger.Warn("allow_remote is enabled. The daemon will accept connections from any network address and has no authentication.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := New(ctx, cfg, Options{
		Version:   opts.Version,
		Commit:    opts.Commit,
		BuildDate: opts.BuildDate,
	}, logger)
	if err != nil {
		logger.Error("Failed to create daemon", log.Error(err))
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return d.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil {
		logger.Error("Daemon error", log.Error(err))
		return fmt.Errorf("daemon error: %w", err)
	}
	return nil
}

func loadConfig(opts RunOptions) (*config.Config, error) {
	path := opts.ConfigPath
	if path == "" {
		if p, err := config.ConfigPath(); err == nil {
			if _, statErr := os.Stat(p); statErr == nil {
				path = p
			}
		}
	}

	cfg, err := config.Load(path, func(c *config.Config) {
		if opts.BackendType != "" {
			c.Daemon.Backend.Type = opts.BackendType
		}
		if opts.SocketPath != "" {
			c.Daemon.Listen.SocketPath = opts.SocketPath
		}
		if opts.TCPAddr != "" {
			c.Daemon.Listen.TCPAddr = opts.TCPAddr
		}
		if opts.DataDir != "" {
			c.Daemon.DataDir = opts.DataDir
		}
		if opts.ServersDir != "" {
			c.Daemon.ServersDir = opts.ServersDir
		}
		if opts.AllowRemote {
			c.Daemon.Listen.AllowRemote = true
		}
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
