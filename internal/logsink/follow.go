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

package logsink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Follow calls emit with every complete line of path after the first since
// lines, then keeps calling it as lines are appended, until ctx is done or
// emit fails. A truncated file (see Clear) is re-read from the start.
func Follow(ctx context.Context, path string, since int, emit func(lines []string) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	// Watch the directory so a file created after Follow starts is seen.
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	t := &tracker{path: path}
	lines, err := t.read()
	if err != nil {
		return err
	}
	if since < 0 {
		since = 0
	}
	if since < len(lines) {
		if err := emit(lines[since:]); err != nil {
			return err
		}
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			lines, err := t.read()
			if err != nil {
				return err
			}
			if len(lines) == 0 {
				continue
			}
			if err := emit(lines); err != nil {
				return err
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

// tracker reads a growing file incrementally, holding back any trailing
// partial line until its newline arrives.
type tracker struct {
	path    string
	offset  int64
	partial []byte
}

func (t *tracker) read() ([]string, error) {
	f, err := os.Open(t.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() < t.offset {
		t.offset = 0
		t.partial = nil
	}
	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	t.offset += int64(len(data))

	buf := append(t.partial, data...)
	idx := bytes.LastIndexByte(buf, '\n')
	if idx < 0 {
		t.partial = buf
		return nil, nil
	}
	t.partial = append([]byte(nil), buf[idx+1:]...)

	lines := strings.Split(string(buf[:idx]), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines, nil
}
