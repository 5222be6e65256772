package otelhelper

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SetError marks the span as failed.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.AddEvent("error_occurred", trace.WithAttributes(
		attrs...,
	))
}

// SetRejected records a business rejection without flagging the span as an error.
func SetRejected(span trace.Span, err error) {
	span.AddEvent("rejected", trace.WithAttributes(
		attribute.String("reason", err.Error()),
	))
}
