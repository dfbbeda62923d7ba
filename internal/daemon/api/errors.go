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
	"errors"
	"net/http"

	"github.com/tombee/hearth/internal/daemon/backend"
	"github.com/tombee/hearth/internal/daemon/httputil"
	"github.com/tombee/hearth/internal/daemon/worker"
	"github.com/tombee/hearth/internal/workload"
	hearterrors "github.com/tombee/hearth/pkg/errors"
)

// statusFor maps a domain error to its HTTP status and wire code.
func statusFor(err error) (int, string) {
	if code := workload.Code(err); code != "" {
		switch {
		case errors.Is(err, workload.ErrAlreadyRunning), errors.Is(err, workload.ErrNotRunning):
			return http.StatusConflict, code
		case errors.Is(err, workload.ErrConfigurationMissing), errors.Is(err, workload.ErrInvalidSchedule):
			return http.StatusBadRequest, code
		case errors.Is(err, workload.ErrScriptNotFound), errors.Is(err, workload.ErrNotFound):
			return http.StatusNotFound, code
		case errors.Is(err, workload.ErrForceStopFailed):
			return http.StatusInternalServerError, code
		}
	}

	switch {
	case errors.Is(err, backend.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, worker.ErrDraining):
		return http.StatusServiceUnavailable, "draining"
	}

	switch t := hearterrors.Type(err); t {
	case "validation", "config":
		return http.StatusBadRequest, t
	case "not_found":
		return http.StatusNotFound, t
	}
	return http.StatusInternalServerError, "internal"
}

// writeDomainError writes err using the standard error body, carrying the
// workload and observed state when the error has them.
func writeDomainError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	body := httputil.ErrorBody{Error: err.Error(), Code: code}

	var opErr *workload.OpError
	if errors.As(err, &opErr) {
		body.Workload = opErr.Workload
		body.State = string(opErr.State)
	}
	httputil.WriteJSON(w, status, body)
}
