// Package tracing wires one OpenTelemetry span per task, covering queue
// admission through upstream resolution, with a child span for the
// executor's upstream attempt. Grounded on the retrieved pack's
// telemetry/tracing package (the teacher declares the otel/otlptracehttp
// dependency in go.mod but never imports it); simplified to the single
// OTLP-over-HTTP exporter the teacher's go.mod actually carries, with a
// no-op provider by default so tracing costs nothing when unconfigured.
package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Config selects the exporter endpoint. Zero value disables tracing.
type Config struct {
	// Endpoint is the OTLP/HTTP collector address, e.g. "localhost:4318".
	// Empty disables exporting and installs a no-op provider.
	Endpoint string
	// Insecure disables TLS when talking to Endpoint.
	Insecure bool
	// ServiceName identifies this process in the exported resource.
	ServiceName string
}

// Provider owns the tracer and its shutdown lifecycle.
type Provider struct {
	tracer  trace.Tracer
	sdk     *sdktrace.TracerProvider
	enabled bool
}

// New builds a Provider. With cfg.Endpoint empty it returns a no-op
// provider that adds negligible overhead per span.
func New(cfg Config) (*Provider, error) {
	if cfg.Endpoint == "" {
		return &Provider{tracer: otel.Tracer("ccrelay")}, nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	name := cfg.ServiceName
	if name == "" {
		name = "ccrelay"
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(
		semconv.ServiceName(name),
	))
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	sdk := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(sdk)

	return &Provider{tracer: sdk.Tracer("ccrelay"), sdk: sdk, enabled: true}, nil
}

// Shutdown flushes pending spans. No-op for the default provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.sdk == nil {
		return nil
	}
	return p.sdk.Shutdown(ctx)
}

// StartTask opens the outer span for one task's admission-through-resolution
// lifetime.
func (p *Provider) StartTask(ctx context.Context, taskID, route string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "task", trace.WithAttributes(
		attribute.String("task.id", taskID),
		attribute.String("task.route", route),
	))
}

// StartExecute opens the inner span for the executor's single upstream
// attempt, as a child of the task span already in ctx.
func (p *Provider) StartExecute(ctx context.Context, provider string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "execute", trace.WithAttributes(
		attribute.String("provider", provider),
	))
}

// RecordQueueWait attaches observed queue-wait duration to span.
func RecordQueueWait(span trace.Span, d time.Duration) {
	span.SetAttributes(attribute.Int64("queue.wait_ms", d.Milliseconds()))
}

// End finalizes span with err, setting status and recording the error if
// non-nil.
func End(span trace.Span, err error) {
	if err != nil {
		span.SetAttributes(attribute.Bool("error", true))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
