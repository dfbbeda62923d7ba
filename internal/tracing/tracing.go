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

// Package tracing wires OpenTelemetry into hearthd. Spans cover API requests
// and the long-running lifecycle, install, and backup operations.
package tracing

import (
	"context"
	"fmt"
	"io"

	"github.com/tombee/hearth/internal/config"
	"github.com/tombee/hearth/internal/tracing/export"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/tombee/hearth"

// Attribute keys.
const (
	WorkloadKey = attribute.Key("hearth.workload")
	ActionKey   = attribute.Key("hearth.action")
	TriggerKey  = attribute.Key("hearth.trigger")
)

// Provider owns the process tracer provider.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// Setup installs the global tracer provider and W3C propagators. When
// tracing is disabled the global no-op provider stays in place and the
// returned Provider's Shutdown does nothing.
func Setup(ctx context.Context, cfg config.TracingConfig, version string, stdout io.Writer) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{}, nil
	}

	exporter, err := export.New(ctx, cfg, "hearthd/"+version, stdout)
	if err != nil {
		return nil, err
	}
	p, err := NewProvider(version, cfg.SampleRate, sdktrace.WithBatcher(exporter))
	if err != nil {
		return nil, err
	}

	otel.SetTracerProvider(p.tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return p, nil
}

// NewProvider builds a provider without installing it globally.
func NewProvider(version string, sampleRate float64, opts ...sdktrace.TracerProviderOption) (*Provider, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName("hearthd"),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	all := append([]sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRate))),
	}, opts...)
	return &Provider{tp: sdktrace.NewTracerProvider(all...)}, nil
}

// TracerProvider exposes the SDK provider, nil when tracing is disabled.
func (p *Provider) TracerProvider() *sdktrace.TracerProvider {
	return p.tp
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

// Start opens a span on the global tracer for an operation on a workload.
func Start(ctx context.Context, name, workload string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, WorkloadKey.String(workload))
	return otel.Tracer(instrumentationName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// End records err on span and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
