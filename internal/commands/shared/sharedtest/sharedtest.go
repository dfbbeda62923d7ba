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

// Package sharedtest runs CLI commands against an in-process fake daemon.
package sharedtest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/cobra"
	"github.com/tombee/hearth/internal/client"
	"github.com/tombee/hearth/internal/commands/shared"
)

// Serve points shared.NewClient at handler for the duration of the test.
func Serve(t *testing.T, handler http.Handler) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := client.New(client.WithHTTPClient(server.Client()), client.WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	shared.SetClientForTest(c)
	t.Cleanup(shared.ResetFlagsForTest)
}

// Run executes cmd with args and returns everything written to its output.
func Run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// JSON writes v as a JSON response with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes a daemon-style error body.
func Error(w http.ResponseWriter, status int, code, msg string) {
	JSON(w, status, map[string]string{"error": msg, "code": code})
}

// UseJSON turns on --json output for the duration of the test.
func UseJSON(t *testing.T) {
	t.Helper()
	jsonOut, _, _ := shared.RegisterFlagPointers()
	*jsonOut = true
	t.Cleanup(shared.ResetFlagsForTest)
}
