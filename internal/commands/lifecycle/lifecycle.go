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

package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tombee/hearth/internal/client"
	"github.com/tombee/hearth/internal/commands/shared"
	"github.com/tombee/hearth/internal/lifecycle"
)

// NewCommands returns the top-level lifecycle commands.
func NewCommands() []*cobra.Command {
	return []*cobra.Command{
		newActionCommand("start", "Start a workload in a detached session", (*client.Client).Start),
		newActionCommand("stop", "Stop a workload, forcing it after 30s", (*client.Client).Stop),
		newActionCommand("restart", "Stop a workload and start it again", (*client.Client).Restart),
		newStatusCommand(),
		newInstallCommand(),
		newConsoleCommand(),
	}
}

type action func(c *client.Client, ctx context.Context, name string) (lifecycle.Result, error)

func newActionCommand(use, short string, do action) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		Annotations: map[string]string{
			"group": "lifecycle",
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := shared.NewClient()
			if err != nil {
				return err
			}
			res, err := do(c, cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.EmitJSON(out, res)
			}
			if res.Forced {
				fmt.Fprintln(out, shared.RenderWarn(res.Message))
				return nil
			}
			fmt.Fprintln(out, shared.RenderOK(res.Message))
			return nil
		},
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <name>",
		Short: "Show whether a workload is running",
		Args:  cobra.ExactArgs(1),
		Annotations: map[string]string{
			"group": "lifecycle",
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := shared.QueryContext(cmd)
			defer cancel()

			c, err := shared.NewClient()
			if err != nil {
				return err
			}
			st, err := c.Status(ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.EmitJSON(out, st)
			}
			fmt.Fprintf(out, "%s %s\n", st.Name, shared.RenderState(st.State))
			return nil
		},
	}
}

func newInstallCommand() *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:   "install <name>",
		Short: "Run the install script in the background",
		Long: `Queue the workload's install script on the daemon. Each line runs in
order in the working directory and its output is appended to the workload
log. Use --follow to watch the log until interrupted.`,
		Args: cobra.ExactArgs(1),
		Annotations: map[string]string{
			"group": "lifecycle",
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			c, err := shared.NewClient()
			if err != nil {
				return err
			}

			ctx, cancel := shared.QueryContext(cmd)
			defer cancel()

			// Remember where the log ends so --follow starts at the install output.
			var since int
			if follow {
				page, err := c.Log(ctx, name, 0)
				if err != nil {
					return err
				}
				since = page.LineCount
			}
			if err := c.Install(ctx, name); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.EmitJSON(out, map[string]any{"accepted": true})
			}
			fmt.Fprintln(out, shared.RenderOK("Install queued for "+name))
			if !follow {
				return nil
			}
			return c.FollowLog(cmd.Context(), name, since, func(line string) error {
				_, err := fmt.Fprintln(out, line)
				return err
			})
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Stream the workload log after queueing")
	return cmd
}

func newConsoleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "console <name> <command...>",
		Short: "Send a command to a running workload's console",
		Long: `Type a line into the workload's session followed by Enter. The remaining
arguments are joined with spaces.

Example:
  hearth console survival say hello`,
		Args: cobra.MinimumNArgs(2),
		Annotations: map[string]string{
			"group": "lifecycle",
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := shared.QueryContext(cmd)
			defer cancel()

			c, err := shared.NewClient()
			if err != nil {
				return err
			}
			command := strings.Join(args[1:], " ")
			if err := c.Console(ctx, args[0], command); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.EmitJSON(out, map[string]any{"ok": true})
			}
			fmt.Fprintln(out, shared.RenderOK("Sent: "+command))
			return nil
		},
	}
}
