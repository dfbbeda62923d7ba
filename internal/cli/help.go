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
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tombee/hearth/internal/commands/shared"
)

// CommandInfo is one node of the command tree printed by help --json.
type CommandInfo struct {
	Path     string        `json:"path"`
	Summary  string        `json:"summary"`
	Usage    string        `json:"usage"`
	Group    string        `json:"group,omitempty"`
	Flags    []FlagInfo    `json:"flags,omitempty"`
	Commands []CommandInfo `json:"commands,omitempty"`
}

// FlagInfo describes a flag of a command.
type FlagInfo struct {
	Name      string `json:"name"`
	Shorthand string `json:"shorthand,omitempty"`
	Usage     string `json:"usage"`
	Default   string `json:"default,omitempty"`
	Required  bool   `json:"required,omitempty"`
}

// HelpResponse is the help --json document. Scripts use ExitCodes to
// interpret hearth's exit status without hardcoding it.
type HelpResponse struct {
	Command     CommandInfo    `json:"command"`
	GlobalFlags []FlagInfo     `json:"global_flags"`
	ExitCodes   map[string]int `json:"exit_codes"`
}

var exitCodes = map[string]int{
	"ok":                 shared.ExitSuccess,
	"failed":             shared.ExitFailed,
	"invalid_request":    shared.ExitInvalidRequest,
	"not_found":          shared.ExitNotFound,
	"state_conflict":     shared.ExitStateConflict,
	"daemon_not_running": shared.ExitDaemonNotRunning,
}

// NewHelpCommand replaces cobra's help so that --json prints the command
// tree below the requested command.
func NewHelpCommand(root *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:   "help [command]",
		Short: "Help about any command",
		Long: `Show help for hearth or one of its commands.

With --json the output is the command tree below the requested command,
including flags and the exit codes hearth uses.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			target := root
			if len(args) > 0 {
				found, rest, err := root.Find(args)
				if err != nil || len(rest) > 0 {
					return shared.NewUsageError(fmt.Sprintf("unknown command %q", strings.Join(args, " ")))
				}
				target = found
			}

			if !shared.GetJSON() {
				return target.Help()
			}
			return shared.EmitJSON(cmd.OutOrStdout(), HelpResponse{
				Command:     describe(target),
				GlobalFlags: flagInfos(root.PersistentFlags()),
				ExitCodes:   exitCodes,
			})
		},
	}
}

func describe(cmd *cobra.Command) CommandInfo {
	info := CommandInfo{
		Path:    cmd.CommandPath(),
		Summary: cmd.Short,
		Usage:   cmd.UseLine(),
		Group:   cmd.Annotations["group"],
		Flags:   flagInfos(cmd.LocalNonPersistentFlags()),
	}
	for _, sub := range cmd.Commands() {
		if sub.Hidden || sub.Name() == "help" {
			continue
		}
		info.Commands = append(info.Commands, describe(sub))
	}
	return info
}

func flagInfos(fs *pflag.FlagSet) []FlagInfo {
	var flags []FlagInfo
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Hidden || f.Name == "help" {
			return
		}
		_, required := f.Annotations[cobra.BashCompOneRequiredFlag]
		flags = append(flags, FlagInfo{
			Name:      f.Name,
			Shorthand: f.Shorthand,
			Usage:     f.Usage,
			Default:   f.DefValue,
			Required:  required,
		})
	})
	return flags
}
