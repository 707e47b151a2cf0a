package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// SetupTracing installs a process-wide tracer provider. No exporter is
// configured by default; spans exist so decision latency shows up in logs
// and so an exporter can be attached by embedders.
func SetupTracing(opts ...sdktrace.TracerProviderOption) func(context.Context) error {
	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)
	return provider.Shutdown
}
