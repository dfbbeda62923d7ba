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
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/tombee/hearth/internal/client"
)

// Global flag values - set by root command
var (
	jsonFlag   bool
	socketFlag string
	yesFlag    bool

	// testClient replaces the socket client when set.
	testClient *client.Client

	// Build-time version information
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// RegisterFlagPointers returns pointers to flag variables for binding.
// Called by root command to register flags.
func RegisterFlagPointers() (jsonOut *bool, socket *string, yes *bool) {
	return &jsonFlag, &socketFlag, &yesFlag
}

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	version = v
	commit = c
	buildDate = b
}

// GetJSON returns the JSON output flag value
func GetJSON() bool {
	return jsonFlag
}

// GetSocket returns the --socket flag value
func GetSocket() string {
	return socketFlag
}

// GetYes reports whether confirmations should be skipped.
func GetYes() bool {
	return yesFlag
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return version, commit, buildDate
}

// NewClient returns a daemon client for --socket, HEARTH_HOST, or the
// default socket, in that order.
func NewClient() (*client.Client, error) {
	if testClient != nil {
		return testClient, nil
	}
	return client.ForAddress(socketFlag)
}

// SetClientForTest makes NewClient return c until ResetFlagsForTest.
func SetClientForTest(c *client.Client) {
	testClient = c
}

// QueryTimeout bounds read-only and configuration requests. Lifecycle
// actions are not bounded since a stop can legitimately take over 30s.
const QueryTimeout = 30 * time.Second

// QueryContext returns the command context bounded by QueryTimeout.
func QueryContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, QueryTimeout)
}

// ResetFlagsForTest restores flag defaults between tests.
func ResetFlagsForTest() {
	jsonFlag = false
	socketFlag = ""
	yesFlag = false
	testClient = nil
}
