package morph

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"
)

// Metric names minted by InstrumentedConverter. These are stable identifiers:
// downstream dashboards key on them, so they must not change between releases.
const (
	// MetricRecordsIn counts records entering the converter, one per
	// ConvertRecord call regardless of outcome.
	MetricRecordsIn = "morph.converter.records.in"
	// MetricRecordsOut counts output records actually pulled by a consumer.
	MetricRecordsOut = "morph.converter.records.out"
	// MetricRecordsFailed counts ConvertRecord calls that failed with a
	// ConversionError.
	MetricRecordsFailed = "morph.converter.records.failed"
	// MetricConversionTime times the call producing the output sequence,
	// not the consumption of the sequence.
	MetricConversionTime = "morph.converter.conversion.time"
)

// ConverterMetrics bundles the four instruments an InstrumentedConverter
// owns. Hooks receive it so replacements can keep the canonical bookkeeping.
type ConverterMetrics struct {
	RecordsIn      Counter
	RecordsOut     Counter
	RecordsFailed  Counter
	ConversionTime Timer
}

// Hook signatures for the four extension points. Each has a default that
// performs the canonical metric marking; a replacement hook takes over that
// responsibility and should keep marking through the supplied
// ConverterMetrics unless it deliberately deviates.

// BeforeConvertHook runs before the conversion implementation is invoked.
// The default marks records-in.
type BeforeConvertHook[SO, DI any] func(ctx context.Context, m *ConverterMetrics, outputSchema SO, record DI, task *TaskContext)

// AfterConvertHook runs after the implementation returns its sequence.
// The default records the elapsed duration into the conversion timer.
type AfterConvertHook[DO any] func(m *ConverterMetrics, result iter.Seq[DO], elapsed time.Duration)

// OnNextHook runs once for every output record pulled by a consumer.
// The default marks records-out.
type OnNextHook[DO any] func(m *ConverterMetrics, record DO)

// OnErrorHook runs when the implementation fails. The default marks
// records-failed when, and only when, the error is a ConversionError.
type OnErrorHook func(m *ConverterMetrics, err error)

type converterState int

const (
	stateUninitialized converterState = iota
	stateInitialized
	stateClosed
)

// InstrumentedConverter decorates any Converter with automatic metrics:
// records in, records out, records failed, and conversion timing. The
// conversion logic stays in the wrapped implementation; concrete stages
// customize behavior only through the hook options, never by replacing the
// orchestration itself.
//
// Lifecycle: Init once per task, then ConvertRecord for each record, then
// Close at task teardown. ConvertRecord before Init or after Close is an
// error. Calls on one instance are expected to be sequential; the instruments
// themselves tolerate concurrent marking.
type InstrumentedConverter[SI, SO, DI, DO any] struct {
	impl     Converter[SI, SO, DI, DO]
	name     string
	provider MetricsProvider

	before  BeforeConvertHook[SO, DI]
	after   AfterConvertHook[DO]
	onNext  OnNextHook[DO]
	onError OnErrorHook

	mu      sync.Mutex
	state   converterState
	metrics ConverterMetrics
	closer  *MultiCloser
}

// Ensure InstrumentedConverter implements the converter and lifecycle interfaces.
var (
	_ Converter[any, any, any, any] = (*InstrumentedConverter[any, any, any, any])(nil)
	_ Initializer                   = (*InstrumentedConverter[any, any, any, any])(nil)
	_ Closer                        = (*InstrumentedConverter[any, any, any, any])(nil)
	_ HealthCheckable               = (*InstrumentedConverter[any, any, any, any])(nil)
)

// InstrumentedConverterOption configures an InstrumentedConverter.
type InstrumentedConverterOption[SI, SO, DI, DO any] func(*InstrumentedConverter[SI, SO, DI, DO])

// WithConverterName sets the name used to scope this converter's metric
// context. Defaults to the dynamic type of the wrapped implementation, so
// different converter types in one task mint distinguishable instruments.
func WithConverterName[SI, SO, DI, DO any](name string) InstrumentedConverterOption[SI, SO, DI, DO] {
	return func(ic *InstrumentedConverter[SI, SO, DI, DO]) {
		if name != "" {
			ic.name = name
		}
	}
}

// WithMetricsProvider sets the provider the converter mints its metric
// context from. Defaults to DefaultMetricsProvider.
func WithMetricsProvider[SI, SO, DI, DO any](provider MetricsProvider) InstrumentedConverterOption[SI, SO, DI, DO] {
	return func(ic *InstrumentedConverter[SI, SO, DI, DO]) {
		if provider != nil {
			ic.provider = provider
		}
	}
}

// WithBeforeConvert replaces the before-convert hook. The replacement takes
// over marking records-in.
func WithBeforeConvert[SI, SO, DI, DO any](hook BeforeConvertHook[SO, DI]) InstrumentedConverterOption[SI, SO, DI, DO] {
	return func(ic *InstrumentedConverter[SI, SO, DI, DO]) {
		if hook != nil {
			ic.before = hook
		}
	}
}

// WithAfterConvert replaces the after-convert hook. The replacement takes
// over recording the conversion duration.
func WithAfterConvert[SI, SO, DI, DO any](hook AfterConvertHook[DO]) InstrumentedConverterOption[SI, SO, DI, DO] {
	return func(ic *InstrumentedConverter[SI, SO, DI, DO]) {
		if hook != nil {
			ic.after = hook
		}
	}
}

// WithOnNext replaces the per-record hook. The replacement takes over
// marking records-out.
func WithOnNext[SI, SO, DI, DO any](hook OnNextHook[DO]) InstrumentedConverterOption[SI, SO, DI, DO] {
	return func(ic *InstrumentedConverter[SI, SO, DI, DO]) {
		if hook != nil {
			ic.onNext = hook
		}
	}
}

// WithOnError replaces the failure hook. The replacement takes over marking
// records-failed for ConversionErrors.
func WithOnError[SI, SO, DI, DO any](hook OnErrorHook) InstrumentedConverterOption[SI, SO, DI, DO] {
	return func(ic *InstrumentedConverter[SI, SO, DI, DO]) {
		if hook != nil {
			ic.onError = hook
		}
	}
}

// NewInstrumentedConverter wraps a converter implementation with automatic
// metrics collection.
func NewInstrumentedConverter[SI, SO, DI, DO any](
	impl Converter[SI, SO, DI, DO],
	options ...InstrumentedConverterOption[SI, SO, DI, DO],
) *InstrumentedConverter[SI, SO, DI, DO] {
	if impl == nil {
		panic("morph.NewInstrumentedConverter: impl cannot be nil")
	}

	ic := &InstrumentedConverter[SI, SO, DI, DO]{
		impl:     impl,
		name:     fmt.Sprintf("%T", impl),
		provider: DefaultMetricsProvider,
		before: func(_ context.Context, m *ConverterMetrics, _ SO, _ DI, _ *TaskContext) {
			m.RecordsIn.Mark()
		},
		after: func(m *ConverterMetrics, _ iter.Seq[DO], elapsed time.Duration) {
			m.ConversionTime.Update(elapsed)
		},
		onNext: func(m *ConverterMetrics, _ DO) {
			m.RecordsOut.Mark()
		},
		onError: func(m *ConverterMetrics, err error) {
			if IsConversionError(err) {
				m.RecordsFailed.Mark()
			}
		},
		closer: NewMultiCloser(),
	}

	for _, option := range options {
		option(ic)
	}

	return ic
}

// Name returns the name scoping this converter's metrics.
func (ic *InstrumentedConverter[SI, SO, DI, DO]) Name() string {
	return ic.name
}

// Metrics returns the converter's instruments. Before Init they are nil.
func (ic *InstrumentedConverter[SI, SO, DI, DO]) Metrics() *ConverterMetrics {
	return &ic.metrics
}

// Init mints the metric instruments from a context scoped to (task, name)
// and registers that context for release at Close. It must be called exactly
// once, before the first ConvertRecord. A failure here is fatal for the
// converter: without working instruments it must not process records.
func (ic *InstrumentedConverter[SI, SO, DI, DO]) Init(_ context.Context, task *TaskContext) error {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	switch ic.state {
	case stateInitialized:
		return NewInitError(ic.name, fmt.Errorf("already initialized"))
	case stateClosed:
		return NewInitError(ic.name, ErrConverterClosed)
	case stateUninitialized:
	}
	if task == nil {
		return NewInitError(ic.name, fmt.Errorf("task context cannot be nil"))
	}

	mctx, err := ic.provider.ContextFor(task, ic.name)
	if err != nil {
		return NewInitError(ic.name, err)
	}
	Register(ic.closer, mctx)

	ic.metrics = ConverterMetrics{
		RecordsIn:      mctx.NewCounter(MetricRecordsIn),
		RecordsOut:     mctx.NewCounter(MetricRecordsOut),
		RecordsFailed:  mctx.NewCounter(MetricRecordsFailed),
		ConversionTime: mctx.NewTimer(MetricConversionTime),
	}
	ic.state = stateInitialized
	return nil
}

// ConvertSchema delegates schema conversion to the wrapped implementation.
// Schema conversion is not counted by the record instruments.
func (ic *InstrumentedConverter[SI, SO, DI, DO]) ConvertSchema(
	ctx context.Context,
	inputSchema SI,
	task *TaskContext,
) (SO, error) {
	return ic.impl.ConvertSchema(ctx, inputSchema, task)
}

// ConvertRecord is the instrumented conversion entry point. It marks
// records-in, times the implementation call, and wraps the returned sequence
// so every record a consumer pulls marks records-out. A ConversionError from
// the implementation marks records-failed and is re-raised unchanged; any
// other error propagates unmarked.
//
// The wrapping is transparent to sequence semantics: ordering, element
// values, finiteness, and restartability of the underlying sequence are
// preserved, and re-traversing a restartable sequence counts its records
// again. Counting is per pull, not per construction.
func (ic *InstrumentedConverter[SI, SO, DI, DO]) ConvertRecord(
	ctx context.Context,
	outputSchema SO,
	record DI,
	task *TaskContext,
) (iter.Seq[DO], error) {
	ic.mu.Lock()
	state := ic.state
	ic.mu.Unlock()
	switch state {
	case stateUninitialized:
		return nil, ErrConverterNotInitialized
	case stateClosed:
		return nil, ErrConverterClosed
	case stateInitialized:
	}

	ic.before(ctx, &ic.metrics, outputSchema, record, task)

	startTime := time.Now()
	result, err := ic.impl.ConvertRecord(ctx, outputSchema, record, task)
	if err != nil {
		ic.onError(&ic.metrics, err)
		return nil, err
	}
	ic.after(&ic.metrics, result, time.Since(startTime))

	return func(yield func(DO) bool) {
		for rec := range result {
			ic.onNext(&ic.metrics, rec)
			if !yield(rec) {
				return
			}
		}
	}, nil
}

// Close releases the metric context and everything else registered during
// Init. Safe to call before Init (a no-op) and more than once. After Close
// the converter must not convert records.
func (ic *InstrumentedConverter[SI, SO, DI, DO]) Close(_ context.Context) error {
	ic.mu.Lock()
	ic.state = stateClosed
	ic.mu.Unlock()
	return ic.closer.Close()
}

// HealthStatus reports whether the converter is ready to convert records.
func (ic *InstrumentedConverter[SI, SO, DI, DO]) HealthStatus(_ context.Context) error {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	switch ic.state {
	case stateUninitialized:
		return ErrConverterNotInitialized
	case stateClosed:
		return ErrConverterClosed
	default:
		return nil
	}
}
