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

	"github.com/tombee/hearth/internal/daemon/httputil"
	"github.com/tombee/hearth/internal/workload"
)

// TaskEngine manages scheduled tasks.
type TaskEngine interface {
	List(ctx context.Context, name string) ([]workload.Task, error)
	Get(ctx context.Context, name, id string) (*workload.Task, error)
	Upsert(ctx context.Context, name string, t workload.Task) (workload.Task, error)
	Delete(ctx context.Context, name, id string) error
}

// TasksHandler handles scheduled task requests.
type TasksHandler struct {
	engine TaskEngine
}

// NewTasksHandler creates a new tasks handler.
func NewTasksHandler(e TaskEngine) *TasksHandler {
	return &TasksHandler{engine: e}
}

// RegisterRoutes registers task API routes on the router.
func (h *TasksHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/workloads/{name}/tasks", h.handleList)
	mux.HandleFunc("POST /v1/workloads/{name}/tasks", h.handleCreate)
	mux.HandleFunc("GET /v1/workloads/{name}/tasks/{id}", h.handleGet)
	mux.HandleFunc("PUT /v1/workloads/{name}/tasks/{id}", h.handlePut)
	mux.HandleFunc("DELETE /v1/workloads/{name}/tasks/{id}", h.handleDelete)
}

func (h *TasksHandler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.List(r.Context(), r.PathValue("name"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if list == nil {
		list = []workload.Task{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"tasks": list})
}

func (h *TasksHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	t, err := h.engine.Get(r.Context(), r.PathValue("name"), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

// handleCreate adds a task. An id in the body is honored, so POST with a
// known id replaces that task.
func (h *TasksHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var t workload.Task
	if err := httputil.DecodeJSON(w, r, &t); err != nil {
		writeDomainError(w, err)
		return
	}
	saved, err := h.engine.Upsert(r.Context(), r.PathValue("name"), t)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, saved)
}

func (h *TasksHandler) handlePut(w http.ResponseWriter, r *http.Request) {
	var t workload.Task
	if err := httputil.DecodeJSON(w, r, &t); err != nil {
		writeDomainError(w, err)
		return
	}
	t.ID = r.PathValue("id")
	saved, err := h.engine.Upsert(r.Context(), r.PathValue("name"), t)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, saved)
}

func (h *TasksHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Delete(r.Context(), r.PathValue("name"), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
