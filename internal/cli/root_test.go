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

package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/hearth/internal/commands/shared"
	"github.com/tombee/hearth/internal/commands/shared/sharedtest"
)

func TestRootCommandTree(t *testing.T) {
	root := NewRootCommand()
	defer shared.ResetFlagsForTest()

	for _, path := range [][]string{
		{"workload", "list"},
		{"workload", "create"},
		{"workload", "show"},
		{"workload", "delete"},
		{"start"}, {"stop"}, {"restart"}, {"status"}, {"install"}, {"console"},
		{"logs"}, {"logs", "clear"},
		{"script", "show"}, {"script", "set"},
		{"task", "list"}, {"task", "set"}, {"task", "delete"},
		{"backup", "show"}, {"backup", "set"}, {"backup", "run"}, {"backup", "archives"},
		{"version"}, {"ping"}, {"schedules"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, strings.Join(path, " "))
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}

	for _, name := range []string{"json", "socket", "yes"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(name), name)
	}
}

func TestRootGroupsCommands(t *testing.T) {
	root := NewRootCommand()
	defer shared.ResetFlagsForTest()

	cmd, _, err := root.Find([]string{"start"})
	require.NoError(t, err)
	assert.Equal(t, "lifecycle", cmd.GroupID)
}

func TestGlobalJSONFlag(t *testing.T) {
	sharedtest.Serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sharedtest.JSON(w, http.StatusOK, map[string]any{"name": "survival", "state": "running", "running": true})
	}))

	out, err := sharedtest.Run(t, NewRootCommand(), "--json", "status", "survival")
	require.NoError(t, err)

	var st map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, true, st["running"])
}

func TestHelpCommandJSON(t *testing.T) {
	root := NewRootCommand()
	defer shared.ResetFlagsForTest()

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"help", "task", "--json"})
	require.NoError(t, root.Execute())

	var resp HelpResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "hearth task", resp.Command.Path)
	assert.Equal(t, "automation", resp.Command.Group)

	subs := map[string]bool{}
	for _, c := range resp.Command.Commands {
		subs[c.Path] = true
	}
	assert.True(t, subs["hearth task set"], "got %v", subs)
	assert.NotEmpty(t, resp.GlobalFlags)
	assert.Equal(t, shared.ExitDaemonNotRunning, resp.ExitCodes["daemon_not_running"])
}

func TestHelpUnknownCommand(t *testing.T) {
	root := NewRootCommand()
	defer shared.ResetFlagsForTest()

	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"help", "bogus"})
	err := root.Execute()
	assert.Equal(t, shared.ExitInvalidRequest, shared.ExitCode(err))
}

func TestHelpRequiredFlags(t *testing.T) {
	root := NewRootCommand()
	defer shared.ResetFlagsForTest()

	cmd, _, err := root.Find([]string{"task", "set"})
	require.NoError(t, err)

	required := map[string]bool{}
	for _, f := range describe(cmd).Flags {
		required[f.Name] = f.Required
	}
	assert.True(t, required["cron"])
	assert.False(t, required["id"])
}
