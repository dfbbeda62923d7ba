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

package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"golang.org/x/time/rate"

	"github.com/tombee/hearth/internal/daemon/httputil"
	"github.com/tombee/hearth/internal/lifecycle"
	"github.com/tombee/hearth/internal/log"
	"github.com/tombee/hearth/internal/logsink"
	"github.com/tombee/hearth/internal/registry"
	"github.com/tombee/hearth/internal/workload"
	hearterrors "github.com/tombee/hearth/pkg/errors"
)

// WorkloadRegistry manages workload records.
type WorkloadRegistry interface {
	Create(ctx context.Context, req registry.CreateRequest) (*workload.Workload, error)
	Get(ctx context.Context, name string) (*workload.Workload, error)
	List(ctx context.Context) ([]*workload.Workload, error)
	Delete(ctx context.Context, name string, purge bool) error
	GetScript(ctx context.Context, name string, kind workload.ScriptKind) (workload.Script, error)
	SetScript(ctx context.Context, name string, kind workload.ScriptKind, s workload.Script) (workload.Script, error)
}

// Lifecycle drives running workloads.
type Lifecycle interface {
	Status(ctx context.Context, name string) (workload.State, error)
	Start(ctx context.Context, name string) (lifecycle.Result, error)
	Stop(ctx context.Context, name string) (lifecycle.Result, error)
	Restart(ctx context.Context, name string) (lifecycle.Result, error)
	SendCommand(ctx context.Context, name, line string) error
	ClearLogs(ctx context.Context, name string) error
}

// Installer runs install scripts in the background.
type Installer interface {
	RunInstall(ctx context.Context, name string) error
}

// ConsoleLimits bounds console commands per workload.
type ConsoleLimits struct {
	Rate  float64
	Burst int
}

// WorkloadsHandler handles workload, lifecycle, console, and log requests.
type WorkloadsHandler struct {
	registry  WorkloadRegistry
	lifecycle Lifecycle
	installer Installer
	limits    ConsoleLimits
	logger    *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	// streams is canceled by CloseStreams to end every log follower.
	streams      context.Context
	closeStreams context.CancelFunc
}

// NewWorkloadsHandler creates a new workloads handler.
func NewWorkloadsHandler(reg WorkloadRegistry, lc Lifecycle, inst Installer, limits ConsoleLimits, logger *slog.Logger) *WorkloadsHandler {
	streams, closeStreams := context.WithCancel(context.Background())
	return &WorkloadsHandler{
		registry:     reg,
		lifecycle:    lc,
		installer:    inst,
		limits:       limits,
		logger:       log.WithComponent(logger, "api"),
		limiters:     make(map[string]*rate.Limiter),
		streams:      streams,
		closeStreams: closeStreams,
	}
}

// CloseStreams ends every open log stream. http.Server.Shutdown does not
// cancel request contexts, so the daemon calls this on shutdown.
func (h *WorkloadsHandler) CloseStreams() {
	h.closeStreams()
}

// RegisterRoutes registers workload API routes on the router.
func (h *WorkloadsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/workloads", h.handleList)
	mux.HandleFunc("POST /v1/workloads", h.handleCreate)
	mux.HandleFunc("GET /v1/workloads/{name}", h.handleGet)
	mux.HandleFunc("DELETE /v1/workloads/{name}", h.handleDelete)
	mux.HandleFunc("GET /v1/workloads/{name}/status", h.handleStatus)

	mux.HandleFunc("GET /v1/workloads/{name}/scripts/{kind}", h.handleGetScript)
	mux.HandleFunc("PUT /v1/workloads/{name}/scripts/{kind}", h.handleSetScript)

	mux.HandleFunc("POST /v1/workloads/{name}/start", h.lifecycleAction(h.lifecycle.Start))
	mux.HandleFunc("POST /v1/workloads/{name}/stop", h.lifecycleAction(h.lifecycle.Stop))
	mux.HandleFunc("POST /v1/workloads/{name}/restart", h.lifecycleAction(h.lifecycle.Restart))
	mux.HandleFunc("POST /v1/workloads/{name}/install", h.handleInstall)
	mux.HandleFunc("POST /v1/workloads/{name}/console", h.handleConsole)

	mux.HandleFunc("GET /v1/workloads/{name}/log", h.handleLog)
	mux.HandleFunc("DELETE /v1/workloads/{name}/log", h.handleClearLog)
	mux.HandleFunc("GET /v1/workloads/{name}/log/stream", h.handleLogStream)
}

func (h *WorkloadsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.registry.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if list == nil {
		list = []*workload.Workload{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"workloads": list})
}

func (h *WorkloadsHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req registry.CreateRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	wl, err := h.registry.Create(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, wl)
}

func (h *WorkloadsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	wl, err := h.registry.Get(r.Context(), r.PathValue("name"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, wl)
}

func (h *WorkloadsHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	purge, err := boolQuery(r, "purge")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.registry.Delete(r.Context(), name, purge); err != nil {
		writeDomainError(w, err)
		return
	}
	h.mu.Lock()
	delete(h.limiters, name)
	h.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

// StatusResponse is the body of GET /v1/workloads/{name}/status.
type StatusResponse struct {
	Name    string         `json:"name"`
	State   workload.State `json:"state"`
	Running bool           `json:"running"`
}

func (h *WorkloadsHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	state, err := h.lifecycle.Status(r.Context(), name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{
		Name:    name,
		State:   state,
		Running: state == workload.StateRunning,
	})
}

func (h *WorkloadsHandler) handleGetScript(w http.ResponseWriter, r *http.Request) {
	kind, err := workload.ParseScriptKind(r.PathValue("kind"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s, err := h.registry.GetScript(r.Context(), r.PathValue("name"), kind)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s)
}

func (h *WorkloadsHandler) handleSetScript(w http.ResponseWriter, r *http.Request) {
	kind, err := workload.ParseScriptKind(r.PathValue("kind"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var s workload.Script
	if err := httputil.DecodeJSON(w, r, &s); err != nil {
		writeDomainError(w, err)
		return
	}
	saved, err := h.registry.SetScript(r.Context(), r.PathValue("name"), kind, s)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, saved)
}

func (h *WorkloadsHandler) lifecycleAction(op func(ctx context.Context, name string) (lifecycle.Result, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := op(r.Context(), r.PathValue("name"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, res)
	}
}

func (h *WorkloadsHandler) handleInstall(w http.ResponseWriter, r *http.Request) {
	if err := h.installer.RunInstall(r.Context(), r.PathValue("name")); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

// ConsoleRequest is the body of POST /v1/workloads/{name}/console.
type ConsoleRequest struct {
	Command string `json:"command"`
}

func (h *WorkloadsHandler) handleConsole(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req ConsoleRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	if req.Command == "" {
		writeDomainError(w, &hearterrors.ValidationError{Field: "command", Message: "is required"})
		return
	}
	if err := workload.ValidateCommand(req.Command); err != nil {
		writeDomainError(w, err)
		return
	}
	if !h.limiterFor(name).Allow() {
		log.WithWorkload(h.logger, name).Warn("console rate limit exceeded")
		httputil.WriteJSON(w, http.StatusTooManyRequests, httputil.ErrorBody{
			Error:    "console rate limit exceeded",
			Code:     "rate_limited",
			Workload: name,
		})
		return
	}
	if err := h.lifecycle.SendCommand(r.Context(), name, req.Command); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *WorkloadsHandler) limiterFor(name string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.limiters[name]
	if !ok {
		limit := rate.Inf
		if h.limits.Rate > 0 {
			limit = rate.Limit(h.limits.Rate)
		}
		l = rate.NewLimiter(limit, max(h.limits.Burst, 1))
		h.limiters[name] = l
	}
	return l
}

func (h *WorkloadsHandler) handleLog(w http.ResponseWriter, r *http.Request) {
	since, err := intQuery(r, "since")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	wl, err := h.registry.Get(r.Context(), r.PathValue("name"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	page, err := logsink.Tail(wl.LogPath(), since)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *WorkloadsHandler) handleClearLog(w http.ResponseWriter, r *http.Request) {
	if err := h.lifecycle.ClearLogs(r.Context(), r.PathValue("name")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LogLine is one record of the NDJSON log stream.
type LogLine struct {
	Line string `json:"line"`
}

// handleLogStream follows the workload log as newline-delimited JSON until
// the client disconnects.
func (h *WorkloadsHandler) handleLogStream(w http.ResponseWriter, r *http.Request) {
	since, err := intQuery(r, "since")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	wl, err := h.registry.Get(r.Context(), r.PathValue("name"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(h.streams, cancel)
	defer stop()

	enc := json.NewEncoder(w)
	err = logsink.Follow(ctx, wl.LogPath(), since, func(lines []string) error {
		for _, line := range lines {
			if err := enc.Encode(LogLine{Line: line}); err != nil {
				return err
			}
		}
		flusher.Flush()
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.WithWorkload(h.logger, wl.Name).Debug("log stream ended", log.Error(err))
	}
}

func intQuery(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, &hearterrors.ValidationError{Field: key, Message: "must be a non-negative integer"}
	}
	return n, nil
}

func boolQuery(r *http.Request, key string) (bool, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, &hearterrors.ValidationError{Field: key, Message: "must be a boolean"}
	}
	return b, nil
}
