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

package logs

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tombee/hearth/internal/commands/shared"
)

// NewCommand creates the logs command.
func NewCommand() *cobra.Command {
	var (
		since  int
		follow bool
	)

	cmd := &cobra.Command{
		Use:   "logs <name>",
		Short: "Print a workload's log",
		Long: `Print the captured output of a workload.

--since skips the first N lines, so a caller that remembers the previous
line count only sees new output. With --follow, lines are streamed as they
are written until interrupted.

Examples:
  hearth logs survival
  hearth logs survival --since 120
  hearth logs survival -f
  hearth logs clear survival`,
		Args: cobra.ExactArgs(1),
		Annotations: map[string]string{
			"group": "lifecycle",
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if since < 0 {
				return shared.NewUsageError("--since must not be negative")
			}
			c, err := shared.NewClient()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if follow {
				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				err := c.FollowLog(ctx, args[0], since, func(line string) error {
					if shared.GetJSON() {
						return shared.EmitJSON(out, map[string]string{"line": line})
					}
					_, err := fmt.Fprintln(out, line)
					return err
				})
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}

			ctx, cancel := shared.QueryContext(cmd)
			defer cancel()
			page, err := c.Log(ctx, args[0], since)
			if err != nil {
				return err
			}
			if shared.GetJSON() {
				return shared.EmitJSON(out, page)
			}
			for _, line := range page.Lines {
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&since, "since", 0, "Skip the first N lines")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Stream new lines until interrupted")

	cmd.AddCommand(newClearCommand())
	return cmd
}

func newClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <name>",
		Short: "Truncate a workload's log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := shared.QueryContext(cmd)
			defer cancel()

			c, err := shared.NewClient()
			if err != nil {
				return err
			}
			if err := c.ClearLog(ctx, args[0]); err != nil {
				return err
			}
			if shared.GetJSON() {
				return shared.EmitJSON(cmd.OutOrStdout(), map[string]any{"cleared": args[0]})
			}
			fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK("Cleared log for "+args[0]))
			return nil
		},
	}
}
