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

package logs

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/hearth/internal/commands/shared"
	"github.com/tombee/hearth/internal/commands/shared/sharedtest"
)

func TestLogsTail(t *testing.T) {
	sharedtest.Serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/workloads/survival/log", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("since"))
		sharedtest.JSON(w, http.StatusOK, map[string]any{"lines": []string{"c", "d"}, "line_count": 4})
	}))

	out, err := sharedtest.Run(t, NewCommand(), "survival", "--since", "2")
	require.NoError(t, err)
	assert.Equal(t, "c\nd\n", out)
}

func TestLogsRejectsNegativeSince(t *testing.T) {
	_, err := sharedtest.Run(t, NewCommand(), "survival", "--since", "-1")
	require.Error(t, err)
	assert.Equal(t, shared.ExitInvalidRequest, shared.ExitCode(err))
}

func TestLogsFollow(t *testing.T) {
	sharedtest.Serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/workloads/survival/log/stream", r.URL.Path)
		enc := json.NewEncoder(w)
		_ = enc.Encode(map[string]string{"line": "one"})
		_ = enc.Encode(map[string]string{"line": "two"})
	}))

	out, err := sharedtest.Run(t, NewCommand(), "survival", "-f")
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", out)
}

func TestLogsClear(t *testing.T) {
	sharedtest.Serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/v1/workloads/survival/log", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))

	out, err := sharedtest.Run(t, NewCommand(), "clear", "survival")
	require.NoError(t, err)
	assert.Contains(t, out, "Cleared log for survival")
}
