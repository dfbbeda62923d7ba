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

	"github.com/bmatcuk/doublestar/v4"
	"github.com/tombee/hearth/pkg/errors"
)

// Frequency is one of the fixed backup cadences.
type Frequency string

const (
	FrequencyDisabled Frequency = "disabled"
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyMonthly  Frequency = "monthly"
)

// Cron returns the schedule for f, or "" when f is disabled or unknown.
// All cadences fire at 03:00 local time.
func (f Frequency) Cron() string {
	switch f {
	case FrequencyDaily:
		return "0 3 * * *"
	case FrequencyWeekly:
		return "0 3 * * 0"
	case FrequencyMonthly:
		return "0 3 1 * *"
	}
	return ""
}

// BackupPolicy is the periodic archival and retention rule for a workload.
type BackupPolicy struct {
	// Location is the destination directory. Relative paths resolve against
	// the workload's working directory.
	Location string `json:"location"`

	Frequency Frequency `json:"frequency"`

	// Retention is the number of archives kept. Zero keeps everything.
	Retention int `json:"retention"`

	// Exclude holds doublestar patterns, relative to the working directory,
	// of files left out of archives.
	Exclude []string `json:"exclude,omitempty"`
}

// DefaultBackupPolicy is returned for workloads that never saved a policy.
func DefaultBackupPolicy() BackupPolicy {
	return BackupPolicy{Frequency: FrequencyDisabled, Retention: 7}
}

// Enabled reports whether the policy produces archives at all.
func (p *BackupPolicy) Enabled() bool {
	return p.Frequency != FrequencyDisabled && p.Location != ""
}

// Validate checks the policy fields.
func (p *BackupPolicy) Validate() error {
	switch p.Frequency {
	case FrequencyDisabled, FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
	default:
		return &errors.ValidationError{Field: "frequency", Message: fmt.Sprintf("unknown frequency %q (want disabled, daily, weekly, or monthly)", p.Frequency)}
	}
	if p.Retention < 0 {
		return &errors.ValidationError{Field: "retention", Message: "must not be negative"}
	}
	for _, pat := range p.Exclude {
		if !doublestar.ValidatePattern(pat) {
			return &errors.ValidationError{Field: "exclude", Message: fmt.Sprintf("invalid pattern %q", pat)}
		}
	}
	return nil
}
