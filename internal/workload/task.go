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
	"fmt"
	"strings"

	"github.com/tombee/hearth/pkg/errors"
)

// Action is what a scheduled task does when its trigger fires.
type Action string

const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionRestart Action = "restart"
	ActionCommand Action = "command"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionStart, ActionStop, ActionRestart, ActionCommand:
		return true
	}
	return false
}

// Task is a cron-triggered lifecycle or console action bound to a workload.
// Cron is stored exactly as supplied.
type Task struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Cron    string `json:"cron"`
	Action  Action `json:"action"`
	Command string `json:"command,omitempty"`
	Enabled bool   `json:"enabled"`
}

// Validate checks the fields that do not need the cron parser. An empty
// cron is left to the parser so it reports as an invalid schedule.
func (t *Task) Validate() error {
	if !t.Action.Valid() {
		return &errors.ValidationError{Field: "action", Message: fmt.Sprintf("unknown action %q (want start, stop, restart, or command)", t.Action)}
	}
	if t.Action == ActionCommand && t.Command == "" {
		return &errors.ValidationError{Field: "command", Message: "is required for command tasks"}
	}
	if t.Action == ActionCommand {
		return ValidateCommand(t.Command)
	}
	return nil
}

// ValidateCommand rejects console text that would be typed as more than one
// line. The session sees every line break as Enter.
func ValidateCommand(line string) error {
	if strings.ContainsAny(line, "\r\n") {
		return &errors.ValidationError{Field: "command", Message: "must be a single line"}
	}
	return nil
}
