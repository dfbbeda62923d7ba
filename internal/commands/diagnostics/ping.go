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
	"time"

	"github.com/spf13/cobra"
	"github.com/tombee/hearth/internal/commands/shared"
)

// PingResult reports daemon reachability.
type PingResult struct {
	Healthy   bool          `json:"healthy"`
	Version   string        `json:"version,omitempty"`
	Commit    string        `json:"commit,omitempty"`
	Latency   time.Duration `json:"latency_ns"`
	Schedules int           `json:"schedules"`
}

// NewPingCommand creates the ping command.
func NewPingCommand() *cobra.Command {
	return &cobra.Command{
		Use: "ping",
		Annotations: map[string]string{
			"group": "diagnostics",
		},
		Short: "Check that the daemon is reachable",
		Long: `Check that hearthd answers on its socket and report its version and the
number of live cron registrations.

Exit codes:
  0  - Daemon is healthy
  10 - Daemon is not running`,
		Args: cobra.NoArgs,
		RunE: runPing,
	}
}

func runPing(cmd *cobra.Command, args []string) error {
	ctx, cancel := shared.QueryContext(cmd)
	defer cancel()

	c, err := shared.NewClient()
	if err != nil {
		return err
	}

	began := time.Now()
	health, err := c.Health(ctx)
	if err != nil {
		return err
	}
	result := PingResult{
		Healthy: health.Status == "ok",
		Latency: time.Since(began),
	}
	if v, err := c.Version(ctx); err == nil {
		result.Version = v.Version
		result.Commit = v.Commit
	}
	if sched, err := c.Schedules(ctx); err == nil {
		result.Schedules = len(sched)
	}

	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		return shared.EmitJSON(out, result)
	}
	fmt.Fprintln(out, shared.RenderHealth(result.Healthy, "daemon")+" "+shared.Muted.Render(result.Latency.Round(time.Millisecond).String()))
	if result.Version != "" {
		fmt.Fprintf(out, "%s %s (%s)\n", shared.RenderLabel("version:  "), result.Version, result.Commit)
	}
	fmt.Fprintf(out, "%s %d\n", shared.RenderLabel("schedules:"), result.Schedules)
	return nil
}
