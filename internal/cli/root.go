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
	"github.com/spf13/cobra"
	"github.com/tombee/hearth/internal/commands/backup"
	"github.com/tombee/hearth/internal/commands/diagnostics"
	"github.com/tombee/hearth/internal/commands/lifecycle"
	"github.com/tombee/hearth/internal/commands/logs"
	"github.com/tombee/hearth/internal/commands/script"
	"github.com/tombee/hearth/internal/commands/shared"
	"github.com/tombee/hearth/internal/commands/task"
	"github.com/tombee/hearth/internal/commands/version"
	"github.com/tombee/hearth/internal/commands/workload"
)

// commandGroups orders the sections of the root help output. Commands opt
// in through their "group" annotation.
var commandGroups = []*cobra.Group{
	{ID: "workloads", Title: "Workloads:"},
	{ID: "lifecycle", Title: "Lifecycle:"},
	{ID: "automation", Title: "Automation:"},
	{ID: "diagnostics", Title: "Diagnostics:"},
}

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command for hearth
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hearth",
		Short: "Hearth - game server lifecycle control",
		Long: `Hearth talks to the hearthd daemon, which runs game servers in detached
terminal sessions, captures their output, and runs scheduled restarts,
console commands, and backups.

Run 'hearth workload create <name>' to register a server.
Run 'hearth ping' to check that the daemon is up.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
	}

	jsonOut, socket, yes := shared.RegisterFlagPointers()

	cmd.PersistentFlags().BoolVar(jsonOut, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(socket, "socket", "", "Daemon socket path (default: $HEARTH_HOST, $HEARTH_SOCKET, or the per-user socket)")
	cmd.PersistentFlags().BoolVarP(yes, "yes", "y", false, "Skip confirmation prompts")

	cmd.AddGroup(commandGroups...)

	cmd.AddCommand(workload.NewCommand(), script.NewCommand())
	cmd.AddCommand(lifecycle.NewCommands()...)
	cmd.AddCommand(logs.NewCommand())
	cmd.AddCommand(task.NewCommand(), backup.NewCommand())
	cmd.AddCommand(
		diagnostics.NewPingCommand(),
		diagnostics.NewSchedulesCommand(),
		diagnostics.NewCompletionCommand(),
		version.NewVersionCommand(),
	)

	for _, sub := range cmd.Commands() {
		if group, ok := sub.Annotations["group"]; ok {
			sub.GroupID = group
		}
	}

	diagnostics.RegisterWorkloadCompletion(cmd)
	cmd.SetHelpCommand(NewHelpCommand(cmd))
	return cmd
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// HandleExitError handles exit errors with proper exit codes
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
