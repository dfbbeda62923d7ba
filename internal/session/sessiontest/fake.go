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

// Package sessiontest provides an in-memory session.Multiplexer for tests.
package sessiontest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tombee/hearth/internal/session"
)

// Fake is an in-memory multiplexer. Sessions appear on Launch and vanish on
// Quit, or after StopAfter when the text "stop" is sent.
type Fake struct {
	mu       sync.Mutex
	sessions map[string]bool

	// StopAfter is how long a session takes to exit after receiving "stop".
	// Negative means the session ignores it.
	StopAfter time.Duration
	// QuitFails keeps the session alive across Quit.
	QuitFails bool
	// LaunchErr is returned by Launch when set.
	LaunchErr error
	// LaunchDelay is slept inside Launch before the session appears.
	LaunchDelay time.Duration
	// ListErr is returned by List when set.
	ListErr error

	Launches []session.LaunchSpec
	Sent     []string
	Quits    int
}

// NewFake returns a Fake whose sessions stop immediately on "stop".
func NewFake() *Fake {
	return &Fake{sessions: make(map[string]bool)}
}

// Add marks a session as running without recording a launch.
func (f *Fake) Add(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[name] = true
}

// Remove makes a session disappear, as if its process exited.
func (f *Fake) Remove(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, name)
}

// Running reports whether a session exists.
func (f *Fake) Running(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[name]
}

// LaunchCount returns the number of Launch calls.
func (f *Fake) LaunchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Launches)
}

// SentTexts returns a copy of everything passed to Send, as "session:text".
func (f *Fake) SentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Sent...)
}

// QuitCount returns the number of Quit calls.
func (f *Fake) QuitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Quits
}

func (f *Fake) List(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return "", f.ListErr
	}
	if len(f.sessions) == 0 {
		return "No Sockets found in /run/screen/S-test.\n", nil
	}
	var b strings.Builder
	b.WriteString("There are screens on:\n")
	pid := 1000
	for name := range f.sessions {
		fmt.Fprintf(&b, "\t%d.%s\t(Detached)\n", pid, name)
		pid++
	}
	return b.String(), nil
}

func (f *Fake) Launch(ctx context.Context, spec session.LaunchSpec) error {
	if f.LaunchDelay > 0 {
		time.Sleep(f.LaunchDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Launches = append(f.Launches, spec)
	if f.LaunchErr != nil {
		return f.LaunchErr
	}
	f.sessions[spec.Session] = true
	return nil
}

func (f *Fake) Send(ctx context.Context, name, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.sessions[name] {
		return session.ErrNoSession
	}
	f.Sent = append(f.Sent, name+":"+text)
	if text == "stop" && f.StopAfter >= 0 {
		delay := f.StopAfter
		go func() {
			time.Sleep(delay)
			f.Remove(name)
		}()
	}
	return nil
}

func (f *Fake) Quit(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Quits++
	if !f.sessions[name] {
		return session.ErrNoSession
	}
	if !f.QuitFails {
		delete(f.sessions, name)
	}
	return nil
}

var _ session.Multiplexer = (*Fake)(nil)
