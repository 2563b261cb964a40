// Package otel provides OpenTelemetry span helpers shared by the sync pipeline.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys attached to pipeline spans
const (
	AttrRepository = attribute.Key("depsync.repository")
	AttrKind       = attribute.Key("depsync.kind")
	AttrReason     = attribute.Key("depsync.reason")
	AttrVersion    = attribute.Key("depsync.version")
	AttrStage      = attribute.Key("depsync.stage")
)

// StartSpan starts a new span if the tracer is non-nil, otherwise returns a no-op span.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// VersionAttributes returns the attributes identifying one repository version
func VersionAttributes(repository, version string) trace.SpanStartOption {
	return trace.WithAttributes(AttrRepository.String(repository), AttrVersion.String(version))
}

// RecordError records an error on a span and sets the span status to error.
// It safely handles nil spans and nil errors. The status carries only the
// failing stage; the error text is kept on the exception event.
func RecordError(span trace.Span, stage string, err error) {
	if err == nil || span == nil {
		return
	}
	span.RecordError(err)
	if stage != "" {
		span.SetAttributes(AttrStage.String(stage))
		span.SetStatus(codes.Error, stage+" failed")
		return
	}
	span.SetStatus(codes.Error, "operation failed")
}
