// Package telemetry wires OpenTelemetry tracing for experiment runs.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// DefaultServiceName is used when the configuration leaves it empty.
const DefaultServiceName = "advrobust"

// Shutdown flushes and stops the tracer provider.
type Shutdown func(context.Context) error

// Options configures tracing.
type Options struct {
	ServiceName string
	Version     string
	// Endpoint is an OTLP/HTTP host:port. Empty disables export.
	Endpoint string
	Insecure bool
}

// Setup installs a global tracer provider exporting to opts.Endpoint.
// With no endpoint the global no-op provider stays in place.
func Setup(ctx context.Context, opts Options) (Shutdown, error) {
	if opts.ServiceName == "" {
		opts.ServiceName = DefaultServiceName
	}
	if opts.Endpoint == "" {
		slog.Debug("tracing disabled", "service", opts.ServiceName)
		return func(context.Context) error { return nil }, nil
	}

	exporterOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(opts.Endpoint)}
	if opts.Insecure {
		exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
	}
	exp, err := otlptracehttp.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}

	attrs := []resource.Option{resource.WithAttributes(semconv.ServiceName(opts.ServiceName))}
	if opts.Version != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceVersion(opts.Version)))
	}
	res, err := resource.New(ctx, attrs...)
	if err != nil {
		_ = exp.Shutdown(ctx)
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp), sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)
	slog.Info("tracing enabled", "endpoint", opts.Endpoint, "service", opts.ServiceName)
	return tp.Shutdown, nil
}
