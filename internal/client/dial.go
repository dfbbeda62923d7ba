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

package client

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/tombee/hearth/internal/config"
	"github.com/tombee/hearth/internal/daemon/listener"
)

// HostEnv overrides the daemon address, as unix:///path or tcp://host:port.
const HostEnv = "HEARTH_HOST"

// SocketEnv names the daemon socket, as hearthd reads it.
const SocketEnv = "HEARTH_SOCKET"

// ForAddress creates a client for the given socket path. When socketPath is
// empty it falls back to HEARTH_HOST, HEARTH_SOCKET, and the default socket.
func ForAddress(socketPath string) (*Client, error) {
	if socketPath != "" {
		return New(WithTransport(NewUnixTransport(socketPath)), withSocket(socketPath))
	}
	return FromEnvironment()
}

// FromEnvironment creates a client configured from environment variables.
func FromEnvironment() (*Client, error) {
	cfg, err := listener.ParseHost(os.Getenv(HostEnv))
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		path := os.Getenv(SocketEnv)
		if path == "" {
			path = config.DefaultSocketPath()
		}
		return New(WithTransport(NewUnixTransport(path)), withSocket(path))
	}
	if cfg.TCPAddr != "" {
		return New(WithTransport(NewTCPTransport(cfg.TCPAddr)))
	}
	return New(WithTransport(NewUnixTransport(cfg.SocketPath)), withSocket(cfg.SocketPath))
}

// DaemonNotRunningError indicates the daemon is not running.
type DaemonNotRunningError struct {
	SocketPath string
	Err        error
}

func (e *DaemonNotRunningError) Error() string {
	if e.SocketPath == "" {
		return "hearth daemon is not running"
	}
	return fmt.Sprintf("hearth daemon is not running (socket: %s)", e.SocketPath)
}

func (e *DaemonNotRunningError) Unwrap() error {
	return e.Err
}

// Guidance returns user-friendly guidance for starting the daemon.
func (e *DaemonNotRunningError) Guidance() string {
	return `Hearth daemon is not running.

Start the daemon with:
  hearthd                       # Foreground
  hearthd --config <path>       # With a config file`
}

// IsDaemonNotRunning checks if an error indicates the daemon is not running.
func IsDaemonNotRunning(err error) bool {
	var dnr *DaemonNotRunningError
	return errors.As(err, &dnr)
}

// isDialFailure reports whether err means nothing is listening.
func isDialFailure(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, os.ErrNotExist)
}
