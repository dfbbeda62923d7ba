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

// Package logsink owns the per-workload log file. The multiplexer appends
// raw session output to it while tagged writers (installer, controller)
// append timestamped lines; readers consume it by line offset.
package logsink

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ClearedMarker is the content left behind by Clear.
const ClearedMarker = "[Logs cleared]"

const maxLineBytes = 1 << 20

// Sink serializes tagged writes per log path.
type Sink struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
	now   func() time.Time
}

// New creates a Sink stamping lines with local wall-clock time.
func New() *Sink {
	return &Sink{
		locks: make(map[string]*sync.Mutex),
		now:   time.Now,
	}
}

func (s *Sink) lockFor(path string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[path]
	if !ok {
		l = &sync.Mutex{}
		s.locks[path] = l
	}
	return l
}

// Prepare creates the directory holding path.
func (s *Sink) Prepare(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

// Format renders a tagged line, without the trailing newline.
func (s *Sink) Format(tag, msg string) string {
	return fmt.Sprintf("[%s] [%s] %s", s.now().Format("15:04:05"), tag, msg)
}

// Printf appends one tagged line to path.
func (s *Sink) Printf(path, tag, format string, args ...any) error {
	w, err := s.Open(path, tag)
	if err != nil {
		return err
	}
	defer w.Close()
	return w.Line(fmt.Sprintf(format, args...))
}

// Open returns a writer that appends tagged lines to path until closed.
func (s *Sink) Open(path, tag string) (*Writer, error) {
	if err := s.Prepare(path); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &Writer{sink: s, lock: s.lockFor(path), f: f, tag: tag}, nil
}

// Clear truncates path to the cleared marker.
func (s *Sink) Clear(path string) error {
	if err := s.Prepare(path); err != nil {
		return err
	}
	l := s.lockFor(path)
	l.Lock()
	defer l.Unlock()
	return os.WriteFile(path, []byte(ClearedMarker+"\n"), 0o644)
}

// Writer appends tagged lines to a single log file.
type Writer struct {
	sink *Sink
	lock *sync.Mutex
	f    *os.File
	tag  string
}

// Line writes msg as one tagged line. Embedded newlines are split.
func (w *Writer) Line(msg string) error {
	w.lock.Lock()
	defer w.lock.Unlock()
	for _, part := range strings.Split(strings.TrimRight(msg, "\n"), "\n") {
		if _, err := io.WriteString(w.f, w.sink.Format(w.tag, part)+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// Copy writes every line read from r, until EOF, as a tagged line.
func (w *Writer) Copy(r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		if err := w.Line(sc.Text()); err != nil {
			return err
		}
	}
	return sc.Err()
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	return w.f.Close()
}

// Page is a slice of a log file starting at a line offset.
type Page struct {
	Lines     []string `json:"lines"`
	LineCount int      `json:"line_count"`
}

// Tail returns the lines of path after the first since lines, along with the
// total line count. A missing file is an empty page.
func Tail(path string, since int) (Page, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return Page{Lines: []string{}}, nil
	}
	if err != nil {
		return Page{}, err
	}
	defer f.Close()

	if since < 0 {
		since = 0
	}
	page := Page{Lines: []string{}}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		if page.LineCount >= since {
			page.Lines = append(page.Lines, sc.Text())
		}
		page.LineCount++
	}
	return page, sc.Err()
}
