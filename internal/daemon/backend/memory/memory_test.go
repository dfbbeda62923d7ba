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

package memory

import (
	"context"
	"testing"

	"github.com/tombee/hearth/internal/daemon/backend"
	"github.com/tombee/hearth/internal/daemon/backend/backendtest"
	"github.com/tombee/hearth/internal/workload"
)

func TestConformance(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) backend.Backend { return New() })
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	ctx := context.Background()
	b := New()

	w := &workload.Workload{Name: "alpha", StartCommands: []string{"a"}}
	if err := b.CreateWorkload(ctx, w); err != nil {
		t.Fatal(err)
	}
	w.StartCommands[0] = "mutated"

	got, err := b.GetWorkload(ctx, "alpha")
	if err != nil {
		t.Fatal(err)
	}
	if got.StartCommands[0] != "a" {
		t.Errorf("store shared slice with caller: %v", got.StartCommands)
	}

	got.StartCommands[0] = "mutated again"
	again, _ := b.GetWorkload(ctx, "alpha")
	if again.StartCommands[0] != "a" {
		t.Errorf("store shared slice with reader: %v", again.StartCommands)
	}
}
