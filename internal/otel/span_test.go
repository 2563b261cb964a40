package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// newTestTracerProvider creates a tracer provider with in-memory exporter for testing.
func newTestTracerProvider(t *testing.T) (*tracetest.InMemoryExporter, trace.TracerProvider) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return exporter, tp
}

func TestStartSpan_NilTracer(t *testing.T) {
	t.Parallel()

	resultCtx, span := StartSpan(context.Background(), nil, "sync.prepare")

	require.NotNil(t, resultCtx)
	require.NotNil(t, span)
	assert.False(t, span.SpanContext().IsValid(), "nil tracer should return no-op span")
	assert.NotPanics(t, func() { span.End() })
}

func TestStartSpan_VersionAttributes(t *testing.T) {
	t.Parallel()

	exporter, tp := newTestTracerProvider(t)
	_, span := StartSpan(context.Background(), tp.Tracer("test"), "sync.publish",
		VersionAttributes("acme/lib", "1.2.0"))
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "sync.publish", spans[0].Name)

	attrs := map[string]string{}
	for _, attr := range spans[0].Attributes {
		attrs[string(attr.Key)] = attr.Value.AsString()
	}
	assert.Equal(t, "acme/lib", attrs["depsync.repository"])
	assert.Equal(t, "1.2.0", attrs["depsync.version"])
}

func TestRecordError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		stage       string
		err         error
		wantCode    codes.Code
		wantStatus  string
		wantEvent   bool
		wantStageAt bool
	}{
		{name: "nil error", err: nil, wantCode: codes.Unset},
		{name: "without stage", err: errors.New("connection refused"),
			wantCode: codes.Error, wantStatus: "operation failed", wantEvent: true},
		{name: "with stage", stage: "discovery", err: errors.New("listing releases: 502"),
			wantCode: codes.Error, wantStatus: "discovery failed", wantEvent: true, wantStageAt: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			exporter, tp := newTestTracerProvider(t)
			_, span := tp.Tracer("test").Start(context.Background(), "sync.repository")
			RecordError(span, tt.stage, tt.err)
			span.End()

			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			assert.Equal(t, tt.wantCode, spans[0].Status.Code)
			assert.Equal(t, tt.wantStatus, spans[0].Status.Description)

			var hasException bool
			for _, event := range spans[0].Events {
				if event.Name == "exception" {
					hasException = true
				}
			}
			assert.Equal(t, tt.wantEvent, hasException)

			var hasStage bool
			for _, attr := range spans[0].Attributes {
				if attr.Key == AttrStage {
					hasStage = true
				}
			}
			assert.Equal(t, tt.wantStageAt, hasStage)
		})
	}

	assert.NotPanics(t, func() { RecordError(nil, "", errors.New("boom")) })
}
