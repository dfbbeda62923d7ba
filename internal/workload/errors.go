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

package workload

import (
	"errors"
	"fmt"
	"strings"

	hearterrors "github.com/tombee/hearth/pkg/errors"
)

// Lifecycle outcome sentinels. Match with errors.Is.
var (
	ErrAlreadyRunning       = errors.New("already running")
	ErrNotRunning           = errors.New("not running")
	ErrConfigurationMissing = errors.New("start script missing or empty")
	ErrScriptNotFound       = errors.New("install script missing or empty")
	ErrForceStopFailed      = errors.New("session survived forced termination")
	ErrInvalidSchedule      = errors.New("invalid schedule")
	ErrNotFound             = errors.New("not found")
)

// OpError describes a rejected or failed operation on a workload. It carries
// the workload name and the state observed at rejection time so that callers
// can decide whether to poll and retry.
type OpError struct {
	Op       string
	Workload string
	State    State
	Detail   string
	Err      error
}

func (e *OpError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %v", e.Op, e.Workload, e.Err)
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

func (e *OpError) Unwrap() error { return e.Err }

// ErrorType returns a stable code for the wrapped sentinel.
func (e *OpError) ErrorType() string {
	return Code(e.Err)
}

// Code maps a sentinel (or an error wrapping one) to its wire code.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyRunning):
		return "already_running"
	case errors.Is(err, ErrNotRunning):
		return "not_running"
	case errors.Is(err, ErrConfigurationMissing):
		return "configuration_missing"
	case errors.Is(err, ErrScriptNotFound):
		return "script_not_found"
	case errors.Is(err, ErrForceStopFailed):
		return "force_stop_failed"
	case errors.Is(err, ErrInvalidSchedule):
		return "invalid_schedule"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	}
	return ""
}

// NewOpError is shorthand for constructing an *OpError.
func NewOpError(op, name string, state State, err error, detail string) *OpError {
	return &OpError{Op: op, Workload: name, State: state, Err: err, Detail: detail}
}

// NotFound returns an error matching both ErrNotFound and
// *errors.NotFoundError, for stores and engines reporting absent records.
func NotFound(resource, id string) error {
	return &notFoundError{NotFoundError: hearterrors.NotFoundError{Resource: resource, ID: id}}
}

type notFoundError struct {
	hearterrors.NotFoundError
}

func (e *notFoundError) Unwrap() []error {
	return []error{ErrNotFound, &e.NotFoundError}
}
