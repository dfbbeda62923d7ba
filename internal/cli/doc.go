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

/*
Package cli provides the root command and shared configuration for the hearth CLI.

This package creates the main Cobra command tree and handles global concerns like
version information, persistent flags, and error handling. Individual commands
are implemented in the internal/commands subpackages.

# Command Tree

The CLI is organized as:

	hearth
	├── workload      Register, inspect, and delete workloads
	├── script        Show or replace start and install scripts
	├── start         Start a workload
	├── stop          Stop a workload
	├── restart       Restart a workload
	├── status        Show a workload's state
	├── install       Run the install script
	├── console       Send a console command
	├── logs          Print or follow a workload's log
	├── task          Manage cron tasks
	├── backup        Manage backups
	├── ping          Check the daemon
	├── schedules     List cron registrations
	├── completion    Shell completion
	├── version       Show version
	└── help          Show help

# Exit Codes

	0   success
	1   failure
	2   invalid request
	3   not found
	4   state conflict (already running, not running)
	10  daemon not running
*/
package cli
