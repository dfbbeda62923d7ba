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
Package client provides an HTTP client for the hearth daemon API.

The CLI uses it to talk to hearthd over the daemon's Unix socket, or over
TCP when HEARTH_HOST says so.

# Basic Usage

	c, err := client.FromEnvironment()
	if err != nil {
	    return err
	}

	res, err := c.Start(ctx, "survival")
	if err != nil {
	    return err
	}
	fmt.Println(res.Message)

Errors returned by the daemon are *APIError values carrying the HTTP status
and the wire code, so callers can branch on conditions such as
"already_running" without parsing messages.
*/
package client
