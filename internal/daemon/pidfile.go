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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

var (
	// ErrAlreadyRunning is returned when another hearthd holds the PID file lock.
	ErrAlreadyRunning = errors.New("another hearthd is already running")

	// ErrUnsafeDirectory is returned when the PID file parent is world-writable.
	ErrUnsafeDirectory = errors.New("PID file directory is world-writable")
)

// pidFile holds an exclusive flock on the daemon PID file for the lifetime
// of the process. A file left behind by a crashed daemon carries no lock and
// is taken over.
type pidFile struct {
	path string
	f    *os.File
}

func acquirePIDFile(path string) (*pidFile, error) {
	dir := filepath.Dir(path)
	if err := verifyDirectorySafety(dir); err != nil {
		return nil, fmt.Errorf("unsafe PID file location: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create PID file directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open PID file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			if pid, rerr := readPID(path); rerr == nil {
				return nil, fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
			}
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("failed to lock PID file: %w", err)
	}

	if err := writePID(f, os.Getpid()); err != nil {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
		return nil, err
	}
	return &pidFile{path: path, f: f}, nil
}

func writePID(f *os.File, pid int) error {
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate PID file: %w", err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(pid)+"\n"), 0); err != nil {
		return fmt.Errorf("failed to write PID: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync PID file: %w", err)
	}
	return nil
}

// release removes the file while still holding the lock, so a daemon racing
// to start never sees a half-removed file as its own.
func (p *pidFile) release() error {
	if p == nil || p.f == nil {
		return nil
	}
	err := os.Remove(p.path)
	syscall.Flock(int(p.f.Fd()), syscall.LOCK_UN)
	p.f.Close()
	p.f = nil
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(s)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID in file: %q", s)
	}
	return pid, nil
}

func verifyDirectorySafety(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	// Sticky directories like /tmp are world-writable but safe.
	mode := info.Mode()
	if mode&0o002 != 0 && mode&os.ModeSticky == 0 {
		return fmt.Errorf("%w: %s has mode %04o", ErrUnsafeDirectory, dir, mode&os.ModePerm)
	}
	return nil
}
