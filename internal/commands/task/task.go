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

package task

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tombee/hearth/internal/commands/shared"
	"github.com/tombee/hearth/internal/workload"
)

// NewCommand creates the task command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "task",
		Aliases: []string{"tasks"},
		Short:   "Manage cron-scheduled tasks",
		Annotations: map[string]string{
			"group": "automation",
		},
	}
	cmd.AddCommand(newListCommand(), newSetCommand(), newDeleteCommand())
	return cmd
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list <name>",
		Short: "List a workload's scheduled tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := shared.QueryContext(cmd)
			defer cancel()

			c, err := shared.NewClient()
			if err != nil {
				return err
			}
			tasks, err := c.ListTasks(ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.EmitJSON(out, map[string]any{"tasks": tasks})
			}
			if len(tasks) == 0 {
				fmt.Fprintln(out, shared.Muted.Render("No tasks scheduled"))
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCRON\tACTION\tENABLED")
			for _, t := range tasks {
				action := string(t.Action)
				if t.Action == workload.ActionCommand {
					action = fmt.Sprintf("command %q", t.Command)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", t.ID, t.Name, t.Cron, action, t.Enabled)
			}
			return tw.Flush()
		},
	}
}

func newSetCommand() *cobra.Command {
	var (
		t        workload.Task
		action   string
		disabled bool
	)

	cmd := &cobra.Command{
		Use:   "set <name>",
		Short: "Create or replace a scheduled task",
		Long: `Create a task, or replace the task with --id. The cron expression has five
fields (minute hour day-of-month month day-of-week) and fires in the
daemon's time zone.

Examples:
  hearth task set survival --cron "0 4 * * *" --action restart --name nightly
  hearth task set survival --cron "*/30 * * * *" --action command --command "save-all"
  hearth task set survival --id 3f2a... --cron "0 5 * * *" --action restart`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t.Action = workload.Action(action)
			t.Enabled = !disabled
			if err := t.Validate(); err != nil {
				return shared.NewUsageError(err.Error())
			}

			ctx, cancel := shared.QueryContext(cmd)
			defer cancel()

			c, err := shared.NewClient()
			if err != nil {
				return err
			}
			saved, err := c.SetTask(ctx, args[0], t)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.EmitJSON(out, saved)
			}
			fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("Saved task %s (%s, %s)", saved.ID, saved.Cron, saved.Action)))
			return nil
		},
	}

	cmd.Flags().StringVar(&t.ID, "id", "", "Replace the task with this ID")
	cmd.Flags().StringVar(&t.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&t.Cron, "cron", "", "Five-field cron expression")
	cmd.Flags().StringVar(&action, "action", "", "start, stop, restart, or command")
	cmd.Flags().StringVar(&t.Command, "command", "", "Console line for command tasks")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "Save the task without scheduling it")
	_ = cmd.MarkFlagRequired("cron")
	_ = cmd.MarkFlagRequired("action")
	return cmd
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name> <id>",
		Short: "Delete a scheduled task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := shared.QueryContext(cmd)
			defer cancel()

			c, err := shared.NewClient()
			if err != nil {
				return err
			}
			if err := c.DeleteTask(ctx, args[0], args[1]); err != nil {
				return err
			}
			if shared.GetJSON() {
				return shared.EmitJSON(cmd.OutOrStdout(), map[string]any{"deleted": args[1]})
			}
			fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK("Deleted task "+args[1]))
			return nil
		},
	}
}
