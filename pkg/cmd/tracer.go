package cmd

import (
	"context"

	"github.com/dukex/salesflow/pkg/otelhelper"
	"go.opentelemetry.io/otel/trace"
)

// NewTracer starts OTLP export when enabled. Otherwise spans go to the global
// no-op provider.
// nolint:ireturn
func NewTracer(ctx context.Context, enabled bool, serviceName string) (trace.Tracer, otelhelper.ShutdownFunc, error) {
	if !enabled {
		return otelhelper.Tracer(serviceName), func(context.Context) error { return nil }, nil
	}

	return otelhelper.NewTracer(ctx, serviceName)
}
