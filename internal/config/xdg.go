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

package config

import (
	"os"
	"path/filepath"
)

const appName = "hearth"

// ConfigDir returns the XDG config directory for hearth, ~/.config/hearth
// unless XDG_CONFIG_HOME is set. macOS follows XDG too.
func ConfigDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, appName), nil
}

// ConfigPath returns the full path to the config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// defaultDataDir returns $XDG_DATA_HOME/hearth, falling back to
// ~/.local/share/hearth.
func defaultDataDir() string {
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "hearth-data")
	}
	return filepath.Join(home, ".local", "share", appName)
}

// defaultSocketPath returns $XDG_RUNTIME_DIR/hearth/hearth.sock, falling back
// to a socket inside the data directory.
func defaultSocketPath(dataDir string) string {
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return filepath.Join(runtimeDir, appName, appName+".sock")
	}
	return filepath.Join(dataDir, appName+".sock")
}

// DefaultSocketPath is the socket the CLI dials when no other is configured.
func DefaultSocketPath() string {
	return defaultSocketPath(defaultDataDir())
}
