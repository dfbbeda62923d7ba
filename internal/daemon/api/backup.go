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
	"net/http"

	"github.com/tombee/hearth/internal/backup"
	"github.com/tombee/hearth/internal/daemon/httputil"
	"github.com/tombee/hearth/internal/workload"
)

// BackupService manages backup policies and runs.
type BackupService interface {
	GetPolicy(ctx context.Context, name string) (workload.BackupPolicy, error)
	SetPolicy(ctx context.Context, name string, p workload.BackupPolicy) (workload.BackupPolicy, error)
	RunNow(ctx context.Context, name string) error
	ListArchives(ctx context.Context, name string) ([]backup.Archive, error)
}

// BackupHandler handles backup policy and archive requests.
type BackupHandler struct {
	service BackupService
}

// NewBackupHandler creates a new backup handler.
func NewBackupHandler(s BackupService) *BackupHandler {
	return &BackupHandler{service: s}
}

// RegisterRoutes registers backup API routes on the router.
func (h *BackupHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/workloads/{name}/backup", h.handleGetPolicy)
	mux.HandleFunc("PUT /v1/workloads/{name}/backup", h.handleSetPolicy)
	mux.HandleFunc("POST /v1/workloads/{name}/backup/run", h.handleRun)
	mux.HandleFunc("GET /v1/workloads/{name}/backup/archives", h.handleArchives)
}

func (h *BackupHandler) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetPolicy(r.Context(), r.PathValue("name"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *BackupHandler) handleSetPolicy(w http.ResponseWriter, r *http.Request) {
	var p workload.BackupPolicy
	if err := httputil.DecodeJSON(w, r, &p); err != nil {
		writeDomainError(w, err)
		return
	}
	saved, err := h.service.SetPolicy(r.Context(), r.PathValue("name"), p)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, saved)
}

func (h *BackupHandler) handleRun(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RunNow(r.Context(), r.PathValue("name")); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (h *BackupHandler) handleArchives(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListArchives(r.Context(), r.PathValue("name"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if list == nil {
		list = []backup.Archive{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"archives": list})
}
