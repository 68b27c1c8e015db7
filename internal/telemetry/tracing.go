package telemetry

import (
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// TracerName identifies this module's spans to whatever backend consumes
// the configured exporter. Domain packages call
// otel.Tracer(telemetry.TracerName) directly rather than threading a
// trace.Tracer value through constructors: with no provider registered,
// the OTel API's default no-op implementation makes every span a no-cost
// allocation, so instrumentation needs no nil-guarding.
const TracerName = "mcp-context-protector"

// NewTracerProvider builds an SDK tracer provider that writes spans as
// JSON to w. Call otel.SetTracerProvider on the result to activate it
// process-wide.
func NewTracerProvider(w io.Writer) (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, err
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", TracerName),
	))
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}
