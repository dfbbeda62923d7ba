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
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/tombee/hearth/internal/client"
	"github.com/tombee/hearth/internal/commands/shared"
)

// NewCommand creates the workload command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workload",
		Aliases: []string{"workloads", "wl"},
		Short:   "Manage registered workloads",
		Annotations: map[string]string{
			"group": "workloads",
		},
	}

	cmd.AddCommand(
		newListCommand(),
		newCreateCommand(),
		newShowCommand(),
		newDeleteCommand(),
	)
	return cmd
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workloads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := shared.QueryContext(cmd)
			defer cancel()

			c, err := shared.NewClient()
			if err != nil {
				return err
			}
			workloads, err := c.ListWorkloads(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.EmitJSON(out, map[string]any{"workloads": workloads})
			}
			if len(workloads) == 0 {
				fmt.Fprintln(out, shared.Muted.Render("No workloads registered"))
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tDIRECTORY\tUPDATED")
			for _, w := range workloads {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", w.Name, w.WorkingDirectory, humanize.Time(w.UpdatedAt))
			}
			return tw.Flush()
		},
	}
}

func newCreateCommand() *cobra.Command {
	var (
		dir     string
		start   []string
		install []string
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Register a new workload",
		Long: `Register a new workload with the daemon.

The working directory defaults to <servers_dir>/<name> and is created if it
does not exist. Start and install scripts can be given here or set later
with 'hearth script set'.

Examples:
  hearth workload create survival --start "./run.sh"
  hearth workload create creative --dir /srv/creative --install "./fetch.sh"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := shared.QueryContext(cmd)
			defer cancel()

			c, err := shared.NewClient()
			if err != nil {
				return err
			}
			w, err := c.CreateWorkload(ctx, client.CreateWorkloadRequest{
				Name:             args[0],
				WorkingDirectory: dir,
				StartCommands:    start,
				InstallCommands:  install,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.EmitJSON(out, w)
			}
			fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("Created workload %s in %s", w.Name, w.WorkingDirectory)))
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Working directory (default: <servers_dir>/<name>)")
	cmd.Flags().StringArrayVar(&start, "start", nil, "Start command line (repeatable)")
	cmd.Flags().StringArrayVar(&install, "install", nil, "Install command line (repeatable)")
	return cmd
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show a workload and its current state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := shared.QueryContext(cmd)
			defer cancel()

			c, err := shared.NewClient()
			if err != nil {
				return err
			}
			w, err := c.GetWorkload(ctx, args[0])
			if err != nil {
				return err
			}
			status, err := c.Status(ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.EmitJSON(out, map[string]any{"workload": w, "state": status.State})
			}

			fmt.Fprintf(out, "%s %s\n", shared.Header.Render(w.Name), shared.RenderState(status.State))
			fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("directory:"), w.WorkingDirectory)
			fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("created:  "), w.CreatedAt.Format(time.RFC3339))
			printScript(cmd, "start", w.StartCommands)
			printScript(cmd, "install", w.InstallCommands)
			return nil
		},
	}
}

func printScript(cmd *cobra.Command, label string, lines []string) {
	out := cmd.OutOrStdout()
	if len(lines) == 0 {
		fmt.Fprintf(out, "%s %s\n", shared.RenderLabel(label+":"), shared.Muted.Render("(empty)"))
		return
	}
	fmt.Fprintf(out, "%s\n", shared.RenderLabel(label+":"))
	for _, l := range lines {
		fmt.Fprintf(out, "  %s\n", l)
	}
}

func newDeleteCommand() *cobra.Command {
	var purge bool

	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Stop and unregister a workload",
		Long: `Stop a workload if it is running and remove it with its tasks and backup
policy. With --purge the working directory is deleted as well, provided it
lies under the daemon's servers directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			desc := "The workload is stopped first. Its files are kept."
			if purge {
				desc = "The workload is stopped first and its working directory is deleted."
			}
			ok, err := shared.Confirm(fmt.Sprintf("Delete workload %s?", name), desc)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), shared.Muted.Render("Cancelled"))
				return nil
			}

			ctx, cancel := shared.QueryContext(cmd)
			defer cancel()

			c, err := shared.NewClient()
			if err != nil {
				return err
			}
			if err := c.DeleteWorkload(ctx, name, purge); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.EmitJSON(out, map[string]any{"deleted": name, "purged": purge})
			}
			fmt.Fprintln(out, shared.RenderOK("Deleted workload "+name))
			return nil
		},
	}

	cmd.Flags().BoolVar(&purge, "purge", false, "Also delete the working directory")
	return cmd
}
