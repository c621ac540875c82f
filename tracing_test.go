package morph_test

import (
	"context"
	"errors"
	"iter"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/synoptiq/go-morph"
)

// Create a test-ready tracer using the actual SDK's implementation
// but with a test exporter to capture spans
func createTestTracer() (*tracetest.SpanRecorder, oteltrace.TracerProvider) {
	spanRecorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSpanProcessor(spanRecorder),
	)
	return spanRecorder, provider
}

// Helper function to find a span by name
func findSpanByName(spans []sdktrace.ReadOnlySpan, name string) sdktrace.ReadOnlySpan {
	for _, span := range spans {
		if span.Name() == name {
			return span
		}
	}
	return nil
}

// Helper function to find attribute in span
func findAttribute(span sdktrace.ReadOnlySpan, key string) (attribute.KeyValue, bool) {
	for _, attr := range span.Attributes() {
		if string(attr.Key) == key {
			return attr, true
		}
	}
	return attribute.KeyValue{}, false
}

func upperConverter() morph.Converter[string, string, string, string] {
	return morph.NewConverter(
		func(_ context.Context, s string, _ *morph.TaskContext) (string, error) {
			return s, nil
		},
		func(_ context.Context, _ string, record string, _ *morph.TaskContext) (iter.Seq[string], error) {
			return morph.Records(strings.ToUpper(record)), nil
		},
	)
}

func TestTracedConverterRecordSpan(t *testing.T) {
	recorder, provider := createTestTracer()

	traced := morph.NewTracedConverter(upperConverter(),
		morph.WithTracerName[string, string, string, string]("test_converter"),
		morph.WithTracer[string, string, string, string](provider.Tracer("test")),
		morph.WithTracerAttributes[string, string, string, string](
			attribute.String("test", "value"),
		),
	)

	ctx := context.Background()
	task := morph.NewTaskContext("traced")

	seq, err := traced.ConvertRecord(ctx, "schema", "hello", task)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	out := morph.Collect(seq)
	if len(out) != 1 || out[0] != "HELLO" {
		t.Errorf("Expected [HELLO], got %v", out)
	}

	spans := recorder.Ended()
	span := findSpanByName(spans, "test_converter.convert_record")
	if span == nil {
		t.Fatal("convert_record span was not recorded")
	}
	if span.Status().Code != codes.Ok {
		t.Errorf("Expected Ok status, got %v", span.Status().Code)
	}
	if attr, found := findAttribute(span, "test"); !found || attr.Value.AsString() != "value" {
		t.Error("Expected custom attribute on the span")
	}
	if _, found := findAttribute(span, "duration_ms"); !found {
		t.Error("Expected duration_ms attribute on the span")
	}
}

func TestTracedConverterSchemaSpan(t *testing.T) {
	recorder, provider := createTestTracer()

	traced := morph.NewTracedConverter(upperConverter(),
		morph.WithTracerName[string, string, string, string]("test_converter"),
		morph.WithTracer[string, string, string, string](provider.Tracer("test")),
	)

	_, err := traced.ConvertSchema(context.Background(), "schema/v1", morph.NewTaskContext("traced"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	span := findSpanByName(recorder.Ended(), "test_converter.convert_schema")
	if span == nil {
		t.Fatal("convert_schema span was not recorded")
	}
	if span.Status().Code != codes.Ok {
		t.Errorf("Expected Ok status, got %v", span.Status().Code)
	}
}

func TestTracedConverterErrorSpan(t *testing.T) {
	recorder, provider := createTestTracer()

	convErr := morph.NewConversionError("failing", errors.New("boom"))
	traced := morph.NewTracedConverter(failingConverter(convErr),
		morph.WithTracerName[string, string, string, string]("failing_converter"),
		morph.WithTracer[string, string, string, string](provider.Tracer("test")),
	)

	_, err := traced.ConvertRecord(context.Background(), "schema", "rec", morph.NewTaskContext("traced"))
	if !errors.Is(err, convErr) {
		t.Fatalf("Expected the original error unchanged, got %v", err)
	}

	span := findSpanByName(recorder.Ended(), "failing_converter.convert_record")
	if span == nil {
		t.Fatal("convert_record span was not recorded")
	}
	if span.Status().Code != codes.Error {
		t.Errorf("Expected Error status, got %v", span.Status().Code)
	}
	attr, found := findAttribute(span, "morph.converter.conversion_error")
	if !found || !attr.Value.AsBool() {
		t.Error("Expected conversion_error attribute to be true")
	}
	if len(span.Events()) == 0 {
		t.Error("Expected the error to be recorded as a span event")
	}
}

func TestTracedConverterNilPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for nil converter")
		}
	}()
	morph.NewTracedConverter[string, string, string, string](nil)
}

func TestNoopTracerProvider(t *testing.T) {
	provider := &morph.NoopTracerProvider{}
	tracer := provider.Tracer("test")
	_, span := tracer.Start(context.Background(), "op")
	span.End()
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Errorf("Noop shutdown should not fail: %v", err)
	}
}
