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

package task

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/hearth/internal/commands/shared"
	"github.com/tombee/hearth/internal/commands/shared/sharedtest"
)

func TestListTasks(t *testing.T) {
	sharedtest.Serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/workloads/survival/tasks", r.URL.Path)
		sharedtest.JSON(w, http.StatusOK, map[string]any{"tasks": []map[string]any{
			{"id": "t1", "name": "nightly", "cron": "0 4 * * *", "action": "restart", "enabled": true},
			{"id": "t2", "cron": "*/30 * * * *", "action": "command", "command": "save-all", "enabled": false},
		}})
	}))

	out, err := sharedtest.Run(t, NewCommand(), "list", "survival")
	require.NoError(t, err)
	assert.Contains(t, out, "nightly")
	assert.Contains(t, out, `command "save-all"`)
}

func TestSetTaskCreates(t *testing.T) {
	sharedtest.Serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "0 4 * * *", body["cron"])
		assert.Equal(t, "restart", body["action"])
		assert.Equal(t, true, body["enabled"])
		body["id"] = "t1"
		sharedtest.JSON(w, http.StatusCreated, body)
	}))

	out, err := sharedtest.Run(t, NewCommand(), "set", "survival", "--cron", "0 4 * * *", "--action", "restart")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved task t1")
}

func TestSetTaskReplaces(t *testing.T) {
	sharedtest.Serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/v1/workloads/survival/tasks/t1", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, false, body["enabled"])
		sharedtest.JSON(w, http.StatusOK, body)
	}))

	_, err := sharedtest.Run(t, NewCommand(), "set", "survival", "--id", "t1", "--cron", "0 5 * * *", "--action", "stop", "--disabled")
	require.NoError(t, err)
}

func TestSetTaskValidatesLocally(t *testing.T) {
	_, err := sharedtest.Run(t, NewCommand(), "set", "survival", "--cron", "0 4 * * *", "--action", "command")
	require.Error(t, err)
	assert.Equal(t, shared.ExitInvalidRequest, shared.ExitCode(err))
}

func TestSetTaskInvalidSchedule(t *testing.T) {
	sharedtest.Serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sharedtest.Error(w, http.StatusBadRequest, "invalid_schedule", "invalid cron expression")
	}))

	_, err := sharedtest.Run(t, NewCommand(), "set", "survival", "--cron", "nope", "--action", "start")
	require.Error(t, err)
	assert.Equal(t, shared.ExitInvalidRequest, shared.ExitCode(err))
}

func TestDeleteTask(t *testing.T) {
	sharedtest.Serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/v1/workloads/survival/tasks/t1", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))

	out, err := sharedtest.Run(t, NewCommand(), "delete", "survival", "t1")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted task t1")
}
