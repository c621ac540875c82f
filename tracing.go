package morph

import (
	"context"
	"iter"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerProvider abstracts the source of tracers so converters can be traced
// against the global OpenTelemetry provider, a configured exporter, or
// nothing at all.
type TracerProvider interface {
	Tracer(name string, options ...trace.TracerOption) trace.Tracer
	Shutdown(ctx context.Context) error
}

// NoopTracerProvider produces tracers that record nothing.
type NoopTracerProvider struct{}

// Ensure NoopTracerProvider implements TracerProvider.
var _ TracerProvider = (*NoopTracerProvider)(nil)

// Tracer returns a no-op tracer.
func (*NoopTracerProvider) Tracer(name string, options ...trace.TracerOption) trace.Tracer {
	return noop.NewTracerProvider().Tracer(name, options...)
}

// Shutdown is a no-op.
func (*NoopTracerProvider) Shutdown(_ context.Context) error { return nil }

// globalTracerProvider delegates to the process-global OpenTelemetry provider.
type globalTracerProvider struct{}

func (globalTracerProvider) Tracer(name string, options ...trace.TracerOption) trace.Tracer {
	return otel.Tracer(name, options...)
}

func (globalTracerProvider) Shutdown(_ context.Context) error { return nil }

// DefaultTracerProvider is used when no provider is configured. It resolves
// tracers through the global OpenTelemetry provider.
var DefaultTracerProvider TracerProvider = globalTracerProvider{}

// TracedConverter wraps any Converter with OpenTelemetry tracing: one span
// per ConvertSchema call and one per ConvertRecord call. The span around
// ConvertRecord covers producing the sequence object, not consuming it,
// matching the conversion timer's boundary.
type TracedConverter[SI, SO, DI, DO any] struct {
	// The underlying converter
	converter Converter[SI, SO, DI, DO]

	// Name for tracing
	name string

	// Tracer to use
	tracer trace.Tracer

	// Attributes to add to spans
	attributes []attribute.KeyValue
}

// Ensure TracedConverter implements Converter.
var _ Converter[any, any, any, any] = (*TracedConverter[any, any, any, any])(nil)

// TracedConverterOption is a function that configures a TracedConverter.
type TracedConverterOption[SI, SO, DI, DO any] func(*TracedConverter[SI, SO, DI, DO])

// WithTracerName sets a custom name for the TracedConverter.
func WithTracerName[SI, SO, DI, DO any](name string) TracedConverterOption[SI, SO, DI, DO] {
	return func(tc *TracedConverter[SI, SO, DI, DO]) {
		if name != "" {
			tc.name = name
		}
	}
}

// WithTracer sets a custom tracer for the TracedConverter.
func WithTracer[SI, SO, DI, DO any](tracer trace.Tracer) TracedConverterOption[SI, SO, DI, DO] {
	return func(tc *TracedConverter[SI, SO, DI, DO]) {
		if tracer != nil {
			tc.tracer = tracer
		}
	}
}

// WithTracerAttributes adds custom attributes to spans created by the TracedConverter.
func WithTracerAttributes[SI, SO, DI, DO any](attrs ...attribute.KeyValue) TracedConverterOption[SI, SO, DI, DO] {
	return func(tc *TracedConverter[SI, SO, DI, DO]) {
		tc.attributes = append(tc.attributes, attrs...)
	}
}

// NewTracedConverter creates a new TracedConverter that wraps the given converter.
func NewTracedConverter[SI, SO, DI, DO any](
	converter Converter[SI, SO, DI, DO],
	options ...TracedConverterOption[SI, SO, DI, DO],
) *TracedConverter[SI, SO, DI, DO] {
	if converter == nil {
		panic("morph.NewTracedConverter: converter cannot be nil")
	}

	tc := &TracedConverter[SI, SO, DI, DO]{
		converter:  converter,
		name:       "morph.converter",
		tracer:     otel.Tracer("github.com/synoptiq/go-morph"),
		attributes: []attribute.KeyValue{},
	}

	// Apply options
	for _, option := range options {
		option(tc)
	}

	return tc
}

// ConvertSchema implements the Converter interface for TracedConverter.
func (tc *TracedConverter[SI, SO, DI, DO]) ConvertSchema(
	ctx context.Context,
	inputSchema SI,
	task *TaskContext,
) (SO, error) {
	ctx, span := tc.tracer.Start(
		ctx,
		tc.name+".convert_schema",
		trace.WithAttributes(tc.attributes...),
	)
	defer span.End()

	output, err := tc.converter.ConvertSchema(ctx, inputSchema, task)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	return output, err
}

// ConvertRecord implements the Converter interface for TracedConverter.
func (tc *TracedConverter[SI, SO, DI, DO]) ConvertRecord(
	ctx context.Context,
	outputSchema SO,
	record DI,
	task *TaskContext,
) (iter.Seq[DO], error) {
	ctx, span := tc.tracer.Start(
		ctx,
		tc.name+".convert_record",
		trace.WithAttributes(tc.attributes...),
	)
	defer span.End()

	// Start timing
	startTime := time.Now()

	result, err := tc.converter.ConvertRecord(ctx, outputSchema, record, task)

	// Record duration
	duration := time.Since(startTime)
	span.SetAttributes(attribute.Float64("duration_ms", float64(duration.Milliseconds())))

	// Record error if any
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("morph.converter.conversion_error", IsConversionError(err)))
	} else {
		span.SetStatus(codes.Ok, "")
	}

	return result, err
}
