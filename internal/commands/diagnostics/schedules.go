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

package diagnostics

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/tombee/hearth/internal/commands/shared"
)

// NewSchedulesCommand lists the daemon's cron registrations.
func NewSchedulesCommand() *cobra.Command {
	return &cobra.Command{
		Use: "schedules",
		Annotations: map[string]string{
			"group": "diagnostics",
		},
		Short: "List live cron registrations with their next fire time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := shared.QueryContext(cmd)
			defer cancel()

			c, err := shared.NewClient()
			if err != nil {
				return err
			}
			entries, err := c.Schedules(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.EmitJSON(out, map[string]any{"schedules": entries})
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, shared.Muted.Render("Nothing scheduled"))
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tCRON\tNEXT\tLAST\tRUNS")
			for _, e := range entries {
				last := "-"
				if e.LastRun != nil {
					last = humanize.Time(*e.LastRun)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", e.Key, e.Cron, humanize.Time(e.NextRun), last, e.RunCount)
			}
			return tw.Flush()
		},
	}
}
