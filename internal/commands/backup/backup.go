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

package backup

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/tombee/hearth/internal/commands/shared"
	"github.com/tombee/hearth/internal/workload"
)

// NewCommand creates the backup command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage periodic backups",
		Annotations: map[string]string{
			"group": "automation",
		},
	}
	cmd.AddCommand(
		newShowCommand(),
		newSetCommand(),
		newRunCommand(),
		newArchivesCommand(),
	)
	return cmd
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show a workload's backup policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := shared.QueryContext(cmd)
			defer cancel()

			c, err := shared.NewClient()
			if err != nil {
				return err
			}
			p, err := c.GetBackupPolicy(ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.EmitJSON(out, p)
			}
			printPolicy(cmd, p)
			return nil
		},
	}
}

func printPolicy(cmd *cobra.Command, p workload.BackupPolicy) {
	out := cmd.OutOrStdout()
	freq := shared.RenderActive(p.Enabled(), string(p.Frequency))
	retention := fmt.Sprintf("%d archives", p.Retention)
	if p.Retention == 0 {
		retention = "keep all"
	}
	location := p.Location
	if location == "" {
		location = shared.Muted.Render("(unset)")
	}

	fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("frequency:"), freq)
	fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("location: "), location)
	fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("retention:"), retention)
	if len(p.Exclude) > 0 {
		fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("exclude:  "), strings.Join(p.Exclude, ", "))
	}
}

func newSetCommand() *cobra.Command {
	var (
		location  string
		frequency string
		retention int
		exclude   []string
	)

	cmd := &cobra.Command{
		Use:   "set <name>",
		Short: "Update a workload's backup policy",
		Long: `Update the backup policy. Only the flags given are changed; the rest of
the current policy is kept. Frequencies are disabled, daily, weekly, and
monthly, and all fire at 03:00. A retention of 0 keeps every archive.

Examples:
  hearth backup set survival --location /backups/survival --frequency daily --retention 14
  hearth backup set survival --exclude "logs/**" --exclude "*.tmp"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := shared.QueryContext(cmd)
			defer cancel()

			c, err := shared.NewClient()
			if err != nil {
				return err
			}
			p, err := c.GetBackupPolicy(ctx, args[0])
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("location") {
				p.Location = location
			}
			if flags.Changed("frequency") {
				p.Frequency = workload.Frequency(frequency)
			}
			if flags.Changed("retention") {
				p.Retention = retention
			}
			if flags.Changed("exclude") {
				p.Exclude = exclude
			}

			saved, err := c.SetBackupPolicy(ctx, args[0], p)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.EmitJSON(out, saved)
			}
			fmt.Fprintln(out, shared.RenderOK("Saved backup policy for "+args[0]))
			printPolicy(cmd, saved)
			return nil
		},
	}

	cmd.Flags().StringVar(&location, "location", "", "Archive directory, relative to the working directory unless absolute")
	cmd.Flags().StringVar(&frequency, "frequency", "", "disabled, daily, weekly, or monthly")
	cmd.Flags().IntVar(&retention, "retention", 0, "Archives to keep (0 keeps all)")
	cmd.Flags().StringArrayVar(&exclude, "exclude", nil, "Glob of files to leave out (repeatable)")
	return cmd
}

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run <name>",
		Short: "Take a backup now",
		Long: `Queue an immediate backup. The result is written to the workload log and
the new archive shows up in 'hearth backup archives'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := shared.QueryContext(cmd)
			defer cancel()

			c, err := shared.NewClient()
			if err != nil {
				return err
			}
			if err := c.RunBackup(ctx, args[0]); err != nil {
				return err
			}
			if shared.GetJSON() {
				return shared.EmitJSON(cmd.OutOrStdout(), map[string]any{"accepted": true})
			}
			fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK("Backup queued for "+args[0]))
			return nil
		},
	}
}

func newArchivesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "archives <name>",
		Short: "List a workload's backup archives, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := shared.QueryContext(cmd)
			defer cancel()

			c, err := shared.NewClient()
			if err != nil {
				return err
			}
			archives, err := c.ListArchives(ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.EmitJSON(out, map[string]any{"archives": archives})
			}
			if len(archives) == 0 {
				fmt.Fprintln(out, shared.Muted.Render("No archives"))
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSIZE\tCREATED")
			for _, a := range archives {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", a.Name, humanize.Bytes(uint64(a.Size)), humanize.Time(a.ModTime))
			}
			return tw.Flush()
		},
	}
}
