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
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"
)

// NonInteractiveEnv disables prompts when set to "true".
const NonInteractiveEnv = "HEARTH_NON_INTERACTIVE"

// ciVars are set by common CI systems. JENKINS_HOME holds a path.
var ciVars = []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "CIRCLECI", "JENKINS_HOME"}

// IsNonInteractive reports whether prompting is impossible or unwanted:
// HEARTH_NON_INTERACTIVE=true, a CI environment, or stdin not being a TTY.
func IsNonInteractive() bool {
	if os.Getenv(NonInteractiveEnv) == "true" {
		return true
	}
	if isCIEnvironment() {
		return true
	}
	return !term.IsTerminal(int(os.Stdin.Fd()))
}

func isCIEnvironment() bool {
	for _, v := range ciVars {
		value := os.Getenv(v)
		if value == "true" || value == "1" || (v == "JENKINS_HOME" && value != "") {
			return true
		}
	}
	return false
}

// ErrConfirmationRequired is returned by Confirm when it cannot prompt.
var ErrConfirmationRequired = errors.New("confirmation required: re-run with --yes")

// Confirm asks a yes/no question. --yes answers it up front; without a
// terminal it fails with ErrConfirmationRequired instead of guessing.
func Confirm(title, description string) (bool, error) {
	if GetYes() {
		return true, nil
	}
	if IsNonInteractive() {
		return false, ErrConfirmationRequired
	}

	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Description(description).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}
