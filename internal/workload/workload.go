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

// Package workload defines the data model shared by the lifecycle, task,
// and backup components: workloads, their scripts, scheduled tasks, backup
// policies, and the error taxonomy returned by lifecycle operations.
package workload

import (
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"github.com/tombee/hearth/pkg/errors"
)

// SessionPrefix is prepended to workload names to form multiplexer session names.
const SessionPrefix = "mc_"

// LogRelPath is the workload log file, relative to its working directory.
var LogRelPath = filepath.Join("logs", "latest.log")

const maxNameLen = 64

var validName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Workload is one manageable server instance.
type Workload struct {
	Name             string    `json:"name"`
	WorkingDirectory string    `json:"working_directory"`
	StartCommands    []string  `json:"start_commands"`
	InstallCommands  []string  `json:"install_commands"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// SessionName returns the multiplexer session name for the workload.
func (w *Workload) SessionName() string {
	return SessionName(w.Name)
}

// LogPath returns the absolute path of the workload log file.
func (w *Workload) LogPath() string {
	return filepath.Join(w.WorkingDirectory, LogRelPath)
}

// SessionName returns the multiplexer session name for a workload name.
func SessionName(name string) string {
	return SessionPrefix + name
}

// ValidateName checks that name is usable as a session name and directory name.
func ValidateName(name string) error {
	if name == "" {
		return &errors.ValidationError{Field: "name", Message: "cannot be empty"}
	}
	if len(name) > maxNameLen {
		return &errors.ValidationError{Field: "name", Message: fmt.Sprintf("too long (max %d chars)", maxNameLen)}
	}
	if !validName.MatchString(name) {
		return &errors.ValidationError{Field: "name", Message: "may only contain letters, numbers, dashes, or underscores"}
	}
	return nil
}

// ScriptKind selects one of the two command lists held by a workload.
type ScriptKind string

const (
	ScriptStart   ScriptKind = "start"
	ScriptInstall ScriptKind = "install"
)

// ParseScriptKind validates a script kind taken from user input.
func ParseScriptKind(s string) (ScriptKind, error) {
	switch ScriptKind(s) {
	case ScriptStart, ScriptInstall:
		return ScriptKind(s), nil
	}
	return "", &errors.ValidationError{Field: "kind", Message: fmt.Sprintf("unknown script %q (want start or install)", s)}
}

// Script is the whole-document form of a command list.
type Script struct {
	Commands []string `json:"commands"`
}

// Script returns the command list for kind.
func (w *Workload) Script(kind ScriptKind) Script {
	if kind == ScriptInstall {
		return Script{Commands: w.InstallCommands}
	}
	return Script{Commands: w.StartCommands}
}

// SetScript replaces the command list for kind.
func (w *Workload) SetScript(kind ScriptKind, s Script) {
	if kind == ScriptInstall {
		w.InstallCommands = s.Commands
		return
	}
	w.StartCommands = s.Commands
}

// State is the observed runtime state of a workload.
type State string

const (
	StateRunning  State = "running"
	StateStarting State = "starting"
	StateStopped  State = "stopped"
)
