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

// Package session detects and drives the terminal-multiplexer sessions that
// host workloads. Workloads are not children of the daemon: they live in
// detached sessions that outlive it, so liveness is decided by asking the
// multiplexer which sessions exist.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"al.essio.dev/pkg/shellescape"

	"github.com/tombee/hearth/internal/log"
	"github.com/tombee/hearth/internal/workload"
)

var (
	// ErrToolMissing is returned when the multiplexer binary cannot be found.
	ErrToolMissing = errors.New("multiplexer binary not found")

	// ErrNoSession is returned when a command targets a session that does not exist.
	ErrNoSession = errors.New("no such session")
)

// LaunchSpec describes a detached session to create.
type LaunchSpec struct {
	// Session is the multiplexer session name.
	Session string
	// Dir is the working directory of the launched shell.
	Dir string
	// LogFile receives the session's terminal output.
	LogFile string
	// Shell runs Command, e.g. "bash".
	Shell string
	// Command is passed to Shell with -c.
	Command string
}

// Multiplexer is the set of session operations the controller relies on.
type Multiplexer interface {
	// List returns the raw session listing.
	List(ctx context.Context) (string, error)
	// Launch creates a detached session. It returns once the session exists.
	Launch(ctx context.Context, spec LaunchSpec) error
	// Send types text followed by a newline into the session's first window.
	Send(ctx context.Context, session, text string) error
	// Quit terminates the session and everything running in it.
	Quit(ctx context.Context, session string) error
}

// Listed reports whether session appears in a listing. Entries have the form
// "<pid>.<session>\t(<state>)", so the name must be bounded by a dot on the
// left and a tab on the right; "mc_alpha" never matches "mc_alpha2".
func Listed(listing, session string) bool {
	return strings.Contains(listing, "."+session+"\t")
}

// Chain builds the launch command line: change into dir, then run every
// command in order, stopping at the first failure.
func Chain(dir string, commands []string) string {
	parts := make([]string, 0, len(commands)+1)
	parts = append(parts, "cd "+shellescape.Quote(dir))
	parts = append(parts, commands...)
	return strings.Join(parts, " && ")
}

// Probe answers whether a workload currently has a live session.
type Probe struct {
	mux    Multiplexer
	logger *slog.Logger
}

// NewProbe creates a Probe over mux.
func NewProbe(mux Multiplexer, logger *slog.Logger) *Probe {
	return &Probe{mux: mux, logger: log.WithComponent(logger, "probe")}
}

// IsRunning reports whether the workload's session is listed. Listing
// failures, including a missing multiplexer binary, count as not running
// and are logged.
func (p *Probe) IsRunning(ctx context.Context, name string) bool {
	out, err := p.mux.List(ctx)
	if err != nil {
		p.logger.Error("listing sessions failed",
			slog.String(log.WorkloadKey, name),
			log.Error(err))
		return false
	}
	return Listed(out, workload.SessionName(name))
}
