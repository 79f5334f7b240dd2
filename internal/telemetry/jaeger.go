package telemetry

import (
	"context"
	"fmt"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

/*
LEARNING: TRACING A LONG-LIVED CLIENT

A sync client has no inbound requests to hang a root span on. Instead,
each unit of work gets its own short trace:
  Connection.Dial   - one (re)connect attempt
  Router.Dispatch   - one inbound frame and its handlers
  Coalescer.Persist - one durable write (with PersistService.* children)

Tracing is optional: with no collector endpoint the global no-op provider
stays in place and StartSpan costs next to nothing.
*/

// Shutdown flushes pending spans
type Shutdown func(context.Context) error

// InitJaeger installs a Jaeger-backed tracer provider. An empty endpoint
// disables tracing and returns a no-op shutdown.
func InitJaeger(serviceName, endpoint string) (Shutdown, error) {
	if endpoint == "" {
		log.Println("Tracing disabled (JAEGER_ENDPOINT not set)")
		return func(context.Context) error { return nil }, nil
	}

	exp, err := jaeger.New(
		jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(endpoint)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// Dispatch spans are per frame; sample a tenth of root traces and keep
	// children consistent with their parent.
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.1))),
	)
	otel.SetTracerProvider(tp)

	log.Printf("✓ Jaeger tracing initialized: %s", endpoint)
	return tp.Shutdown, nil
}
