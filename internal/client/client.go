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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tombee/hearth/internal/backup"
	"github.com/tombee/hearth/internal/config"
	"github.com/tombee/hearth/internal/daemon/scheduler"
	"github.com/tombee/hearth/internal/lifecycle"
	"github.com/tombee/hearth/internal/logsink"
	"github.com/tombee/hearth/internal/workload"
)

// Client is a client for the hearth daemon API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	socketPath string
}

// New creates a new daemon client with the given options. Without a
// transport option it dials the default socket.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		baseURL: "http://localhost", // Host is ignored on Unix sockets
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if c.httpClient == nil {
		c.socketPath = config.DefaultSocketPath()
		c.httpClient = &http.Client{Transport: NewUnixTransport(c.socketPath)}
	}

	return c, nil
}

// Option configures a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = client
		return nil
	}
}

// WithTransport sets a custom transport.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *Client) error {
		c.httpClient = &http.Client{Transport: transport}
		return nil
	}
}

// WithBaseURL points the client at an HTTP base URL.
func WithBaseURL(base string) Option {
	return func(c *Client) error {
		if _, err := url.Parse(base); err != nil {
			return fmt.Errorf("invalid base URL %q: %w", base, err)
		}
		c.baseURL = base
		return nil
	}
}

func withSocket(path string) Option {
	return func(c *Client) error {
		c.socketPath = path
		return nil
	}
}

// APIError is a non-2xx response from the daemon.
type APIError struct {
	Status   int    `json:"-"`
	Message  string `json:"error"`
	Code     string `json:"code,omitempty"`
	Workload string `json:"workload,omitempty"`
	State    string `json:"state,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned error %d", e.Status)
	}
	return e.Message
}

// HasCode reports whether err is an *APIError with the given wire code.
func HasCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// HealthResponse is the response from /v1/health.
type HealthResponse struct {
	Status string `json:"status"`
}

// VersionResponse is the response from /v1/version.
type VersionResponse struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// StatusResponse is the response from /v1/workloads/{name}/status.
type StatusResponse struct {
	Name    string         `json:"name"`
	State   workload.State `json:"state"`
	Running bool           `json:"running"`
}

// CreateWorkloadRequest describes a new workload.
type CreateWorkloadRequest struct {
	Name             string   `json:"name"`
	WorkingDirectory string   `json:"working_directory,omitempty"`
	StartCommands    []string `json:"start_commands,omitempty"`
	InstallCommands  []string `json:"install_commands,omitempty"`
}

// Health returns the daemon health status.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var health HealthResponse
	if err := c.do(ctx, http.MethodGet, "/v1/health", nil, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// Version returns the daemon version information.
func (c *Client) Version(ctx context.Context) (*VersionResponse, error) {
	var version VersionResponse
	if err := c.do(ctx, http.MethodGet, "/v1/version", nil, &version); err != nil {
		return nil, err
	}
	return &version, nil
}

// Ping checks if the daemon is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Health(ctx)
	return err
}

// ListWorkloads returns every workload.
func (c *Client) ListWorkloads(ctx context.Context) ([]workload.Workload, error) {
	var resp struct {
		Workloads []workload.Workload `json:"workloads"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/workloads", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Workloads, nil
}

// CreateWorkload registers a new workload.
func (c *Client) CreateWorkload(ctx context.Context, req CreateWorkloadRequest) (*workload.Workload, error) {
	var w workload.Workload
	if err := c.do(ctx, http.MethodPost, "/v1/workloads", req, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// GetWorkload returns one workload.
func (c *Client) GetWorkload(ctx context.Context, name string) (*workload.Workload, error) {
	var w workload.Workload
	if err := c.do(ctx, http.MethodGet, workloadPath(name), nil, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// DeleteWorkload removes a workload, and its directory when purge is set.
func (c *Client) DeleteWorkload(ctx context.Context, name string, purge bool) error {
	path := workloadPath(name)
	if purge {
		path += "?purge=true"
	}
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// Status returns the lifecycle state of a workload.
func (c *Client) Status(ctx context.Context, name string) (*StatusResponse, error) {
	var st StatusResponse
	if err := c.do(ctx, http.MethodGet, workloadPath(name, "status"), nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// GetScript returns the start or install script of a workload.
func (c *Client) GetScript(ctx context.Context, name string, kind workload.ScriptKind) (workload.Script, error) {
	var s workload.Script
	err := c.do(ctx, http.MethodGet, workloadPath(name, "scripts", string(kind)), nil, &s)
	return s, err
}

// SetScript replaces the start or install script of a workload.
func (c *Client) SetScript(ctx context.Context, name string, kind workload.ScriptKind, s workload.Script) (workload.Script, error) {
	var saved workload.Script
	err := c.do(ctx, http.MethodPut, workloadPath(name, "scripts", string(kind)), s, &saved)
	return saved, err
}

// Start launches a workload.
func (c *Client) Start(ctx context.Context, name string) (lifecycle.Result, error) {
	return c.lifecycle(ctx, name, "start")
}

// Stop stops a workload, forcing it when it does not respond.
func (c *Client) Stop(ctx context.Context, name string) (lifecycle.Result, error) {
	return c.lifecycle(ctx, name, "stop")
}

// Restart stops and then starts a workload.
func (c *Client) Restart(ctx context.Context, name string) (lifecycle.Result, error) {
	return c.lifecycle(ctx, name, "restart")
}

func (c *Client) lifecycle(ctx context.Context, name, op string) (lifecycle.Result, error) {
	var res lifecycle.Result
	err := c.do(ctx, http.MethodPost, workloadPath(name, op), nil, &res)
	return res, err
}

// Install queues the install script. Progress shows up in the log.
func (c *Client) Install(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, workloadPath(name, "install"), nil, nil)
}

// Console sends a line to the workload console.
func (c *Client) Console(ctx context.Context, name, command string) error {
	body := map[string]string{"command": command}
	return c.do(ctx, http.MethodPost, workloadPath(name, "console"), body, nil)
}

// Log returns the log lines after the first since lines.
func (c *Client) Log(ctx context.Context, name string, since int) (logsink.Page, error) {
	var page logsink.Page
	path := workloadPath(name, "log") + "?since=" + strconv.Itoa(since)
	err := c.do(ctx, http.MethodGet, path, nil, &page)
	return page, err
}

// ClearLog truncates the workload log.
func (c *Client) ClearLog(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, workloadPath(name, "log"), nil, nil)
}

// FollowLog calls emit for each log line after the first since lines, and
// for every line appended afterwards, until ctx is done or emit fails.
func (c *Client) FollowLog(ctx context.Context, name string, since int, emit func(line string) error) error {
	path := workloadPath(name, "log", "stream") + "?since=" + strconv.Itoa(since)
	resp, err := c.send(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 64*1024), 2<<20)
	for sc.Scan() {
		var rec struct {
			Line string `json:"line"`
		}
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return fmt.Errorf("failed to decode log record: %w", err)
		}
		if err := emit(rec.Line); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return ctx.Err()
}

// ListTasks returns the scheduled tasks of a workload.
func (c *Client) ListTasks(ctx context.Context, name string) ([]workload.Task, error) {
	var resp struct {
		Tasks []workload.Task `json:"tasks"`
	}
	if err := c.do(ctx, http.MethodGet, workloadPath(name, "tasks"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// SetTask creates a task, or replaces the task with t.ID when set.
func (c *Client) SetTask(ctx context.Context, name string, t workload.Task) (workload.Task, error) {
	var saved workload.Task
	if t.ID == "" {
		err := c.do(ctx, http.MethodPost, workloadPath(name, "tasks"), t, &saved)
		return saved, err
	}
	err := c.do(ctx, http.MethodPut, workloadPath(name, "tasks", t.ID), t, &saved)
	return saved, err
}

// DeleteTask removes a scheduled task.
func (c *Client) DeleteTask(ctx context.Context, name, id string) error {
	return c.do(ctx, http.MethodDelete, workloadPath(name, "tasks", id), nil, nil)
}

// GetBackupPolicy returns the backup policy of a workload.
func (c *Client) GetBackupPolicy(ctx context.Context, name string) (workload.BackupPolicy, error) {
	var p workload.BackupPolicy
	err := c.do(ctx, http.MethodGet, workloadPath(name, "backup"), nil, &p)
	return p, err
}

// SetBackupPolicy replaces the backup policy of a workload.
func (c *Client) SetBackupPolicy(ctx context.Context, name string, p workload.BackupPolicy) (workload.BackupPolicy, error) {
	var saved workload.BackupPolicy
	err := c.do(ctx, http.MethodPut, workloadPath(name, "backup"), p, &saved)
	return saved, err
}

// RunBackup queues a backup run.
func (c *Client) RunBackup(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, workloadPath(name, "backup", "run"), nil, nil)
}

// ListArchives returns a workload's archives, newest first.
func (c *Client) ListArchives(ctx context.Context, name string) ([]backup.Archive, error) {
	var resp struct {
		Archives []backup.Archive `json:"archives"`
	}
	if err := c.do(ctx, http.MethodGet, workloadPath(name, "backup", "archives"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Archives, nil
}

// Schedules returns every live cron registration.
func (c *Client) Schedules(ctx context.Context) ([]scheduler.EntryStatus, error) {
	var resp struct {
		Schedules []scheduler.EntryStatus `json:"schedules"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/schedules", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Schedules, nil
}

func workloadPath(name string, parts ...string) string {
	p := "/v1/workloads/" + url.PathEscape(name)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

// do sends a JSON request and decodes the JSON response into out, if any.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// send performs the request and turns error statuses into *APIError.
func (c *Client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isDialFailure(err) {
			return nil, &DaemonNotRunningError{SocketPath: c.socketPath, Err: err}
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		apiErr := &APIError{Status: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = fmt.Sprintf("daemon returned error %d: %s", resp.StatusCode, bytes.TrimSpace(data))
		}
		return nil, apiErr
	}

	return resp, nil
}
