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

package client

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tombee/hearth/internal/workload"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(WithHTTPClient(server.Client()), WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return client
}

func TestClientHealth(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/health" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))

	health, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("Expected status 'ok', got %s", health.Status)
	}
}

func TestClientStartSendsPost(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/workloads/survival/start" {
			t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "message": "survival is starting"})
	}))

	res, err := client.Start(context.Background(), "survival")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !res.OK || res.Message != "survival is starting" {
		t.Errorf("Unexpected result: %+v", res)
	}
}

func TestClientAPIError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{
			"error":    "start survival: already running",
			"code":     "already_running",
			"workload": "survival",
			"state":    "starting",
		})
	}))

	_, err := client.Start(context.Background(), "survival")
	if err == nil {
		t.Fatal("Expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("Expected *APIError, got %T", err)
	}
	if apiErr.Status != http.StatusConflict || apiErr.State != "starting" {
		t.Errorf("Unexpected error fields: %+v", apiErr)
	}
	if !HasCode(err, "already_running") {
		t.Error("HasCode(already_running) = false")
	}
}

func TestClientAPIErrorPlainBody(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))

	err := client.Install(context.Background(), "survival")
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Errorf("Expected status in error, got %v", err)
	}
}

func TestClientSetTaskChoosesMethod(t *testing.T) {
	var calls []string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		w.Write(body)
	}))

	ctx := context.Background()
	if _, err := client.SetTask(ctx, "alpha", workload.Task{Cron: "@daily", Action: workload.ActionRestart}); err != nil {
		t.Fatal(err)
	}
	if _, err := client.SetTask(ctx, "alpha", workload.Task{ID: "t1", Cron: "@daily", Action: workload.ActionStop}); err != nil {
		t.Fatal(err)
	}

	want := []string{"POST /v1/workloads/alpha/tasks", "PUT /v1/workloads/alpha/tasks/t1"}
	if strings.Join(calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", calls, want)
	}
}

func TestClientFollowLog(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("since") != "2" {
			t.Errorf("since = %q", r.URL.Query().Get("since"))
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		io.WriteString(w, "{\"line\":\"one\"}\n{\"line\":\"two\"}\n")
	}))

	var got []string
	err := client.FollowLog(context.Background(), "alpha", 2, func(line string) error {
		got = append(got, line)
		return nil
	})
	if err != nil {
		t.Fatalf("FollowLog failed: %v", err)
	}
	if strings.Join(got, ",") != "one,two" {
		t.Errorf("lines = %v", got)
	}
}

func TestClientWithUnixSocket(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "test.sock")

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("Failed to create Unix socket: %v", err)
	}
	defer ln.Close()

	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		}),
	}
	go server.Serve(ln)
	defer server.Close()

	time.Sleep(50 * time.Millisecond)

	client, err := ForAddress(socketPath)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	if err := client.Ping(context.Background()); err != nil {
		t.Errorf("Ping via Unix socket failed: %v", err)
	}
}

func TestClientDaemonNotRunning(t *testing.T) {
	client, err := ForAddress(filepath.Join(t.TempDir(), "missing.sock"))
	if err != nil {
		t.Fatal(err)
	}

	err = client.Ping(context.Background())
	if !IsDaemonNotRunning(err) {
		t.Fatalf("Expected DaemonNotRunningError, got %v", err)
	}
	if !strings.Contains(err.Error(), "missing.sock") {
		t.Errorf("Expected socket path in error, got %q", err.Error())
	}
}

func TestFromEnvironment(t *testing.T) {
	t.Setenv(HostEnv, "tcp://127.0.0.1:9181")
	if _, err := FromEnvironment(); err != nil {
		t.Errorf("tcp host: %v", err)
	}

	t.Setenv(HostEnv, "ftp://localhost")
	if _, err := FromEnvironment(); err == nil {
		t.Error("Expected error for unsupported scheme")
	}
}
