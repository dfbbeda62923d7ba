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

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"github.com/tombee/hearth/internal/daemon"

	// Cron time zones must resolve on hosts without a zoneinfo database.
	_ "time/tzdata"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var (
		configPath  = pflag.String("config", "", "Path to config file (default: ~/.config/hearth/config.yaml)")
		backendType = pflag.String("backend", "", "Storage backend (memory, sqlite)")
		socketPath  = pflag.String("socket", "", "Unix socket path")
		tcpAddr     = pflag.String("tcp", "", "TCP address to listen on")
		dataDir     = pflag.String("data-dir", "", "Directory for logs, state, and the PID file")
		serversDir  = pflag.String("servers-dir", "", "Parent directory of default workload directories")
		allowRemote = pflag.Bool("allow-remote", false, "Allow binding to non-localhost addresses (SECURITY WARNING)")
		showVersion = pflag.Bool("version", false, "Show version information")
	)
	pflag.Parse()

	if *showVersion {
		fmt.Printf("hearthd %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	err := daemon.Run(daemon.RunOptions{
		Version:     version,
		Commit:      commit,
		BuildDate:   buildDate,
		ConfigPath:  *configPath,
		BackendType: *backendType,
		SocketPath:  *socketPath,
		TCPAddr:     *tcpAddr,
		DataDir:     *dataDir,
		ServersDir:  *serversDir,
		AllowRemote: *allowRemote,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "hearthd: %v\n", err)
		os.Exit(1)
	}
}
