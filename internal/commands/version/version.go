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

package version

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/tombee/hearth/internal/commands/shared"
)

// VersionInfo contains version metadata
type VersionInfo struct {
	Version   string      `json:"version"`
	Commit    string      `json:"commit"`
	BuildDate string      `json:"build_date"`
	Daemon    *DaemonInfo `json:"daemon,omitempty"`
}

// DaemonInfo is the version reported by a running hearthd.
type DaemonInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display version, commit hash, and build date for the hearth CLI, and for
hearthd when it is reachable.`,
		RunE: runVersion,
	}

	return cmd
}

func runVersion(cmd *cobra.Command, args []string) error {
	v, c, b := shared.GetVersion()

	info := VersionInfo{
		Version:   v,
		Commit:    c,
		BuildDate: b,
		Daemon:    daemonVersion(cmd),
	}

	if shared.GetJSON() {
		return shared.EmitJSON(cmd.OutOrStdout(), info)
	}

	cmd.Printf("hearth version %s\n", info.Version)
	cmd.Printf("  commit:     %s\n", info.Commit)
	cmd.Printf("  build date: %s\n", info.BuildDate)
	if info.Daemon != nil {
		cmd.Printf("hearthd version %s\n", info.Daemon.Version)
		cmd.Printf("  commit:     %s\n", info.Daemon.Commit)
		cmd.Printf("  build date: %s\n", info.Daemon.BuildDate)
	} else {
		cmd.Println(shared.Muted.Render("hearthd not reachable"))
	}

	return nil
}

// daemonVersion asks the daemon for its version. The CLI version is still
// printed when the daemon is down.
func daemonVersion(cmd *cobra.Command) *DaemonInfo {
	c, err := shared.NewClient()
	if err != nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
	defer cancel()

	resp, err := c.Version(ctx)
	if err != nil {
		return nil
	}
	return &DaemonInfo{Version: resp.Version, Commit: resp.Commit, BuildDate: resp.BuildDate}
}
