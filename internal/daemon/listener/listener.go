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

// Package listener opens the API listener: a Unix socket by default, or TCP.
package listener

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/tombee/hearth/internal/config"
)

// New opens a TCP listener when cfg.TCPAddr is set and a Unix socket
// otherwise.
func New(cfg config.ListenConfig) (net.Listener, error) {
	if cfg.TCPAddr != "" {
		return newTCPListener(cfg)
	}
	return newUnixListener(cfg.SocketPath)
}

// newUnixListener replaces any stale socket file and restricts the new one
// to its owner.
func newUnixListener(socketPath string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove existing socket: %w", err)
	}

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on Unix socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("failed to set socket permissions: %w", err)
	}
	return ln, nil
}

func newTCPListener(cfg config.ListenConfig) (net.Listener, error) {
	if !cfg.AllowRemote && isRemoteAddr(cfg.TCPAddr) {
		return nil, fmt.Errorf(
			"binding to %s exposes workload control to the network.\n"+
				"hearthd performs no authorization of its own.\n\n"+
				"If you understand the risks, set daemon.listen.allow_remote",
			cfg.TCPAddr,
		)
	}

	ln, err := net.Listen("tcp", cfg.TCPAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on TCP: %w", err)
	}
	return ln, nil
}

// isRemoteAddr reports whether addr binds beyond the loopback interface.
func isRemoteAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
		if strings.HasPrefix(addr, ":") {
			host = ""
		}
	}

	switch host {
	case "", "0.0.0.0", "::":
		return true
	case "localhost", "127.0.0.1", "::1":
		return false
	}
	return true
}

// ParseHost parses a HEARTH_HOST value, unix:///path or tcp://host:port.
func ParseHost(host string) (*config.ListenConfig, error) {
	if host == "" {
		return nil, nil
	}

	cfg := &config.ListenConfig{}
	switch {
	case strings.HasPrefix(host, "unix://"):
		cfg.SocketPath = strings.TrimPrefix(host, "unix://")
	case strings.HasPrefix(host, "tcp://"):
		cfg.TCPAddr = strings.TrimPrefix(host, "tcp://")
	default:
		return nil, fmt.Errorf("invalid HEARTH_HOST format: %s (must start with unix:// or tcp://)", host)
	}
	return cfg, nil
}
