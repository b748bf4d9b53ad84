package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// NewTracerProvider returns a minimal in-process tracer provider (no
// exporter wired; spans are created and discarded) so every collection
// cycle and HTTP round trip can be wrapped in a span for correlation with
// the logger above, without forcing an OTLP collector dependency on every
// deployment. Mirrors engine/monitoring.go's tracer-provider bootstrap.
func NewTracerProvider(serviceName string) *sdktrace.TracerProvider {
	res, _ := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceNameKey.String(serviceName),
	))
	return sdktrace.NewTracerProvider(sdktrace.WithResource(res))
}

// Tracer returns a named tracer from the global OTel provider.
func Tracer(name string) trace.Tracer { return otel.Tracer(name) }

// StartCycleSpan starts a span for one collection cycle.
func StartCycleSpan(ctx context.Context, tracer trace.Tracer, iteration int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "collector.cycle", trace.WithAttributes(attribute.Int("iteration", iteration)))
}

// StartHTTPSpan starts a span for one array API round trip.
func StartHTTPSpan(ctx context.Context, tracer trace.Tracer, method, url string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "array.http", trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.url", url),
	))
}
