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

package shared

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tombee/hearth/internal/client"
)

// Exit codes for hearth commands
const (
	ExitSuccess          = 0
	ExitFailed           = 1
	ExitInvalidRequest   = 2
	ExitNotFound         = 3
	ExitStateConflict    = 4
	ExitDaemonNotRunning = 10
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewUsageError creates an error for bad command-line input.
func NewUsageError(msg string) *ExitError {
	return &ExitError{Code: ExitInvalidRequest, Message: msg}
}

// ExitCode maps err to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if client.IsDaemonNotRunning(err) {
		return ExitDaemonNotRunning
	}

	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "already_running", "not_running", "conflict":
			return ExitStateConflict
		case "not_found", "script_not_found":
			return ExitNotFound
		case "validation", "invalid_schedule", "configuration_missing", "config":
			return ExitInvalidRequest
		}
	}
	return ExitFailed
}

// PrintError writes err, plus guidance when the daemon is unreachable.
func PrintError(w io.Writer, err error) {
	fmt.Fprintln(w, RenderError(err.Error()))

	var dnr *client.DaemonNotRunningError
	if errors.As(err, &dnr) {
		fmt.Fprintf(w, "\n%s\n", dnr.Guidance())
	}
}

// HandleExitError prints err and exits with the matching code.
func HandleExitError(err error) {
	if err == nil {
		return
	}
	PrintError(os.Stderr, err)
	os.Exit(ExitCode(err))
}
