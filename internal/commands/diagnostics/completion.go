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
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tombee/hearth/internal/commands/shared"
)

// completionTimeout bounds the daemon lookup behind a tab press.
const completionTimeout = 2 * time.Second

// NewCompletionCommand prints a shell completion script.
func NewCompletionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "completion <bash|zsh|fish>",
		Short: "Generate shell completion scripts",
		Long: `Print a completion script for your shell. Workload names complete from
the running daemon.

  source <(hearth completion bash)
  hearth completion zsh > "${fpath[1]}/_hearth"
  hearth completion fish > ~/.config/fish/completions/hearth.fish`,
		Annotations:           map[string]string{"group": "diagnostics"},
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, out := cmd.Root(), cmd.OutOrStdout()
			switch args[0] {
			case "zsh":
				return root.GenZshCompletion(out)
			case "fish":
				return root.GenFishCompletion(out, true)
			default:
				return root.GenBashCompletionV2(out, true)
			}
		},
	}
}

// RegisterWorkloadCompletion attaches CompleteWorkloadNames to every command
// below root whose first argument is a workload name.
func RegisterWorkloadCompletion(root *cobra.Command) {
	for _, c := range root.Commands() {
		fields := strings.Fields(c.Use)
		if len(fields) > 1 && fields[1] == "<name>" && c.ValidArgsFunction == nil {
			c.ValidArgsFunction = CompleteWorkloadNames
		}
		RegisterWorkloadCompletion(c)
	}
}

// CompleteWorkloadNames completes the first argument from the daemon's
// workload list. It offers nothing when the daemon is unreachable.
func CompleteWorkloadNames(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	c, err := shared.NewClient()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	ctx, cancel := context.WithTimeout(context.Background(), completionTimeout)
	defer cancel()

	workloads, err := c.ListWorkloads(ctx)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var names []string
	for _, w := range workloads {
		if strings.HasPrefix(w.Name, toComplete) {
			names = append(names, w.Name)
		}
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}
