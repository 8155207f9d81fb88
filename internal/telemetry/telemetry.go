// Package telemetry configures the OpenTelemetry tracer used for request spans.
//
// Tracing is off unless explicitly enabled. When disabled the provider is a no-op,
// so instrumented code never has to check whether a sink exists.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// InstrumentationName identifies the tracer that emits this service's spans.
const InstrumentationName = "github.com/vokinneberg/ai-query-api"

// Config holds telemetry settings.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	// Writer receives exported spans. Defaults to stdout.
	Writer io.Writer
}

// Provider owns the tracer provider and its shutdown hook.
type Provider struct {
	tp       trace.TracerProvider
	shutdown func(context.Context) error
}

// Setup builds the tracer provider. Spans are exported synchronously to the console writer,
// mirroring a simple span processor in local deployments.
func Setup(cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{
			tp:       noop.NewTracerProvider(),
			shutdown: func(context.Context) error { return nil },
		}, nil
	}

	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("failed to create span exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(res),
	)

	return &Provider{tp: tp, shutdown: tp.Shutdown}, nil
}

// Enabled reports whether spans are exported anywhere.
func (p *Provider) Enabled() bool {
	_, ok := p.tp.(*sdktrace.TracerProvider)
	return ok
}

// Tracer returns the service tracer.
func (p *Provider) Tracer() trace.Tracer {
	return p.tp.Tracer(InstrumentationName)
}

// Shutdown flushes and stops the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if err := p.shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown tracer provider: %w", err)
	}
	return nil
}
