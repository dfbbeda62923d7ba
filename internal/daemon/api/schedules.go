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
	"net/http"

	"github.com/tombee/hearth/internal/daemon/httputil"
	"github.com/tombee/hearth/internal/daemon/scheduler"
)

// ScheduleStatusProvider reports the live cron registrations.
type ScheduleStatusProvider interface {
	Status() []scheduler.EntryStatus
}

// SchedulesHandler handles schedule-related API requests.
type SchedulesHandler struct {
	scheduler ScheduleStatusProvider
}

// NewSchedulesHandler creates a new schedules handler.
func NewSchedulesHandler(s ScheduleStatusProvider) *SchedulesHandler {
	return &SchedulesHandler{scheduler: s}
}

// RegisterRoutes registers schedule API routes on the router.
func (h *SchedulesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/schedules", h.handleList)
}

// handleList returns every registration, task and backup alike.
func (h *SchedulesHandler) handleList(w http.ResponseWriter, r *http.Request) {
	statuses := []scheduler.EntryStatus{}
	if h.scheduler != nil {
		statuses = append(statuses, h.scheduler.Status()...)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"schedules": statuses,
	})
}
