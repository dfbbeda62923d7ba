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

// Package export builds OpenTelemetry span exporters from configuration.
package export

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"os"

	"github.com/tombee/hearth/internal/config"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// New creates the exporter selected by cfg.Exporter. Stdout output goes to w,
// or os.Stdout when w is nil.
func New(ctx context.Context, cfg config.TracingConfig, userAgent string, w io.Writer) (trace.SpanExporter, error) {
	switch cfg.Exporter {
	case config.ExporterStdout, "":
		return NewConsoleExporter(w)
	case config.ExporterOTLPHTTP:
		return NewOTLPHTTPExporter(ctx, cfg)
	case config.ExporterOTLPGRPC:
		return NewOTLPExporter(ctx, cfg, userAgent)
	}
	return nil, fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
}

// NewConsoleExporter writes one JSON document per span.
func NewConsoleExporter(w io.Writer) (trace.SpanExporter, error) {
	if w == nil {
		w = os.Stdout
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("failed to create console exporter: %w", err)
	}
	return exporter, nil
}

// NewOTLPHTTPExporter creates an OTLP/HTTP exporter for cfg.Endpoint.
func NewOTLPHTTPExporter(ctx context.Context, cfg config.TracingConfig) (trace.SpanExporter, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	} else {
		opts = append(opts, otlptracehttp.WithTLSClientConfig(&tls.Config{MinVersion: tls.VersionTLS12}))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP HTTP exporter: %w", err)
	}
	return exporter, nil
}

// NewOTLPExporter creates an OTLP/gRPC exporter for cfg.Endpoint.
func NewOTLPExporter(ctx context.Context, cfg config.TracingConfig, userAgent string) (trace.SpanExporter, error) {
	creds := insecure.NewCredentials()
	if !cfg.Insecure {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithDialOption(
			grpc.WithTransportCredentials(creds),
			grpc.WithUserAgent(userAgent),
		),
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP gRPC exporter: %w", err)
	}
	return exporter, nil
}
