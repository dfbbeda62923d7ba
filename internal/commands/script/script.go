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

package script

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tombee/hearth/internal/commands/shared"
	"github.com/tombee/hearth/internal/workload"
)

// NewCommand creates the script command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "script",
		Short: "Show or replace a workload's start and install scripts",
		Annotations: map[string]string{
			"group": "workloads",
		},
	}
	cmd.AddCommand(newShowCommand(), newSetCommand())
	return cmd
}

func parseKind(s string) (workload.ScriptKind, error) {
	kind, err := workload.ParseScriptKind(s)
	if err != nil {
		return "", shared.NewUsageError(err.Error())
	}
	return kind, nil
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name> <start|install>",
		Short: "Print a script, one command per line",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[1])
			if err != nil {
				return err
			}

			ctx, cancel := shared.QueryContext(cmd)
			defer cancel()

			c, err := shared.NewClient()
			if err != nil {
				return err
			}
			s, err := c.GetScript(ctx, args[0], kind)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.EmitJSON(out, s)
			}
			for _, line := range s.Commands {
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}

func newSetCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "set <name> <start|install> [cmd...]",
		Short: "Replace a script",
		Long: `Replace a script as a whole. Each remaining argument is one command line.
With --file the lines are read from a file instead, or from stdin when the
file is "-". Giving no commands clears the script.

Examples:
  hearth script set survival start "java -Xmx4G -jar server.jar nogui"
  hearth script set survival install --file install.sh`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[1])
			if err != nil {
				return err
			}

			lines := args[2:]
			if file != "" {
				if len(lines) > 0 {
					return shared.NewUsageError("give commands as arguments or --file, not both")
				}
				if lines, err = readLines(cmd, file); err != nil {
					return err
				}
			}

			ctx, cancel := shared.QueryContext(cmd)
			defer cancel()

			c, err := shared.NewClient()
			if err != nil {
				return err
			}
			saved, err := c.SetScript(ctx, args[0], kind, workload.Script{Commands: lines})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.EmitJSON(out, saved)
			}
			fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("Saved %s script for %s (%d lines)", kind, args[0], len(saved.Commands))))
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Read command lines from a file (- for stdin)")
	return cmd
}

// readLines returns the non-blank lines of path, or of stdin for "-".
func readLines(cmd *cobra.Command, path string) ([]string, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read script file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimRight(sc.Text(), "\r"); strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read script file: %w", err)
	}
	return lines, nil
}
