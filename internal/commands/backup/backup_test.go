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

package backup

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/hearth/internal/commands/shared/sharedtest"
)

func TestShowPolicy(t *testing.T) {
	sharedtest.Serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/workloads/survival/backup", r.URL.Path)
		sharedtest.JSON(w, http.StatusOK, map[string]any{"location": "/b", "frequency": "daily", "retention": 0})
	}))

	out, err := sharedtest.Run(t, NewCommand(), "show", "survival")
	require.NoError(t, err)
	assert.Contains(t, out, "daily")
	assert.Contains(t, out, "keep all")
}

func TestSetPolicyKeepsUnchangedFields(t *testing.T) {
	var saved map[string]any
	sharedtest.Serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			sharedtest.JSON(w, http.StatusOK, map[string]any{
				"location": "/b", "frequency": "weekly", "retention": 7, "exclude": []string{"logs/**"},
			})
		case http.MethodPut:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&saved))
			sharedtest.JSON(w, http.StatusOK, saved)
		}
	}))

	_, err := sharedtest.Run(t, NewCommand(), "set", "survival", "--frequency", "daily", "--retention", "0")
	require.NoError(t, err)
	assert.Equal(t, "/b", saved["location"])
	assert.Equal(t, "daily", saved["frequency"])
	assert.EqualValues(t, 0, saved["retention"])
	assert.Equal(t, []any{"logs/**"}, saved["exclude"])
}

func TestRunBackup(t *testing.T) {
	sharedtest.Serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/workloads/survival/backup/run", r.URL.Path)
		sharedtest.JSON(w, http.StatusAccepted, map[string]any{"accepted": true})
	}))

	out, err := sharedtest.Run(t, NewCommand(), "run", "survival")
	require.NoError(t, err)
	assert.Contains(t, out, "Backup queued for survival")
}

func TestListArchives(t *testing.T) {
	sharedtest.Serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sharedtest.JSON(w, http.StatusOK, map[string]any{"archives": []map[string]any{
			{"name": "survival-2026-01-02_03-00-00.tar.gz", "size": 2048, "mod_time": time.Now().Add(-time.Hour)},
		}})
	}))

	out, err := sharedtest.Run(t, NewCommand(), "archives", "survival")
	require.NoError(t, err)
	assert.Contains(t, out, "survival-2026-01-02_03-00-00.tar.gz")
	assert.Contains(t, out, "2.0 kB")
	assert.Contains(t, out, "1 hour ago")
}
