package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

// newRecordingTracer installs a tracer provider that keeps ended spans in
// memory and restores the previous global provider on cleanup.
func newRecordingTracer(t *testing.T, ratio float64) (*TracerProvider, *tracetest.SpanRecorder) {
	t.Helper()
	previous := otel.GetTracerProvider()
	recorder := tracetest.NewSpanRecorder()

	tp, err := newTracerProviderWithExporter(Config{
		Enabled:       true,
		ServiceName:   "inventory-engine-test",
		SamplingRatio: ratio,
	}, sdktrace.WithSpanProcessor(recorder), zap.NewNop())
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(previous)
	})
	return tp, recorder
}

func spanAttr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestNewTracerProvider_Disabled(t *testing.T) {
	tp, err := NewTracerProvider(context.Background(), Config{Enabled: false}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, tp.IsEnabled())
	assert.NotNil(t, tp.Tracer("x"))
	assert.NoError(t, tp.ForceFlush(context.Background()))
	assert.NoError(t, tp.Shutdown(context.Background()))

	tp.EnableSpanProfiles()
	assert.False(t, tp.SpanProfilesEnabled())
}

func TestTracerProvider_RecordsSpans(t *testing.T) {
	tp, recorder := newRecordingTracer(t, 1)
	assert.True(t, tp.IsEnabled())

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "op", ended[0].Name())
	name, ok := ended[0].Resource().Set().Value(attribute.Key("service.name"))
	require.True(t, ok)
	assert.Equal(t, "inventory-engine-test", name.AsString())
}

func TestTracerProvider_NeverSamples(t *testing.T) {
	tp, recorder := newRecordingTracer(t, 0)

	_, span := tp.Tracer("test").Start(context.Background(), "dropped")
	span.End()

	assert.Empty(t, recorder.Ended())
}

func TestTracerProvider_EnableSpanProfiles(t *testing.T) {
	tp, _ := newRecordingTracer(t, 1)

	tp.EnableSpanProfiles()
	tp.EnableSpanProfiles()

	assert.True(t, tp.SpanProfilesEnabled())
}

func TestSamplerFor(t *testing.T) {
	assert.Contains(t, samplerFor(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, samplerFor(2).Description(), "AlwaysOnSampler")
	assert.Contains(t, samplerFor(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, samplerFor(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestServiceSpanHelpers(t *testing.T) {
	_, recorder := newRecordingTracer(t, 1)

	t.Run("names spans after service and method", func(t *testing.T) {
		ctx, span := StartServiceSpan(context.Background(), "stock_document", "validate",
			SpanAttrDocumentKind, "delivery")
		SetAttributes(span, SpanAttrLineCount, 3, 42, "ignored", SpanAttrDocumentStatus, "done")
		SetAttribute(span, SpanAttrQuantity, int64(7))
		AddEvent(SpanFromContext(ctx), "leg_posted", SpanAttrTransactionType, "delivery")
		span.End()

		ended := recorder.Ended()
		got := ended[len(ended)-1]
		assert.Equal(t, "stock_document.validate", got.Name())

		kind, ok := spanAttr(got, SpanAttrDocumentKind)
		require.True(t, ok)
		assert.Equal(t, "delivery", kind.AsString())

		lines, ok := spanAttr(got, SpanAttrLineCount)
		require.True(t, ok)
		assert.Equal(t, int64(3), lines.AsInt64())

		_, ok = spanAttr(got, "ignored")
		assert.False(t, ok)

		require.Len(t, got.Events(), 1)
		assert.Equal(t, "leg_posted", got.Events()[0].Name)
	})

	t.Run("records errors as span status", func(t *testing.T) {
		_, span := StartSpan(context.Background(), "failing")
		RecordError(span, errors.New("insufficient stock"))
		RecordError(span, nil)
		span.End()

		ended := recorder.Ended()
		got := ended[len(ended)-1]
		assert.Equal(t, codes.Error, got.Status().Code)
		assert.Equal(t, "insufficient stock", got.Status().Description)
	})

	t.Run("nil spans are ignored", func(t *testing.T) {
		assert.NotPanics(t, func() {
			SetAttributes(nil, "a", 1)
			SetAttribute(nil, "a", 1)
			RecordError(nil, errors.New("x"))
			AddEvent(nil, "e")
		})
	})
}

type kind string

func (k kind) String() string { return "kind:" + string(k) }

func TestToAttribute(t *testing.T) {
	assert.Equal(t, attribute.BOOL, toAttribute("b", true).Value.Type())
	assert.Equal(t, attribute.FLOAT64, toAttribute("f", 1.5).Value.Type())
	assert.Equal(t, attribute.STRINGSLICE, toAttribute("s", []string{"a"}).Value.Type())
	assert.Equal(t, "kind:receipt", toAttribute("k", kind("receipt")).Value.AsString())
	assert.Equal(t, "[1 2]", toAttribute("x", [2]int{1, 2}).Value.AsString())
}
