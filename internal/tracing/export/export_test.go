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

package export

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/hearth/internal/config"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewSelectsExporter(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		cfg     config.TracingConfig
		wantErr bool
	}{
		{"stdout", config.TracingConfig{Exporter: config.ExporterStdout}, false},
		{"default", config.TracingConfig{}, false},
		{"otlp http", config.TracingConfig{Exporter: config.ExporterOTLPHTTP, Endpoint: "localhost:4318", Insecure: true}, false},
		{"otlp grpc", config.TracingConfig{Exporter: config.ExporterOTLPGRPC, Endpoint: "localhost:4317", Insecure: true}, false},
		{"unknown", config.TracingConfig{Exporter: "zipkin"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp, err := New(ctx, tt.cfg, "hearthd/test", &bytes.Buffer{})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, exp.Shutdown(ctx))
		})
	}
}

func TestConsoleExporterWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	exp, err := NewConsoleExporter(&buf)
	require.NoError(t, err)

	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	_, span := tp.Tracer("test").Start(context.Background(), "lifecycle.start")
	span.End()
	require.NoError(t, tp.Shutdown(context.Background()))

	assert.Contains(t, buf.String(), "lifecycle.start")
}
