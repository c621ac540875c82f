package morph

import (
	"context"
	"iter"
	"sync"
)

// Converter is a record-conversion stage in a data-movement task.
// It transforms an input schema of type SI into an output schema of type SO,
// and each input record of type DI into a lazily-produced sequence of output
// records of type DO.
//
// ConvertRecord returns the sequence object immediately; output records are
// produced on demand as the consumer pulls them. A converter that cannot
// convert a record reports it with a *ConversionError.
type Converter[SI, SO, DI, DO any] interface {
	// ConvertSchema derives the output schema from the input schema.
	// It is called once per task, before any record is converted.
	ConvertSchema(ctx context.Context, inputSchema SI, task *TaskContext) (SO, error)

	// ConvertRecord transforms a single input record into a lazy sequence of
	// output records. The returned sequence may be finite or infinite, and may
	// or may not support multiple traversals; both properties are up to the
	// implementation.
	ConvertRecord(ctx context.Context, outputSchema SO, record DI, task *TaskContext) (iter.Seq[DO], error)
}

// SchemaFunc is a function that implements the schema half of a Converter.
type SchemaFunc[SI, SO any] func(ctx context.Context, inputSchema SI, task *TaskContext) (SO, error)

// ConvertFunc is a function that implements the record half of a Converter.
type ConvertFunc[SO, DI, DO any] func(ctx context.Context, outputSchema SO, record DI, task *TaskContext) (iter.Seq[DO], error)

// converterFuncs adapts a SchemaFunc and a ConvertFunc into a Converter.
type converterFuncs[SI, SO, DI, DO any] struct {
	schema  SchemaFunc[SI, SO]
	convert ConvertFunc[SO, DI, DO]
}

// NewConverter builds a Converter from a schema function and a record
// conversion function. Both must be non-nil.
func NewConverter[SI, SO, DI, DO any](
	schema SchemaFunc[SI, SO],
	convert ConvertFunc[SO, DI, DO],
) Converter[SI, SO, DI, DO] {
	if schema == nil {
		panic("morph.NewConverter: schema function cannot be nil")
	}
	if convert == nil {
		panic("morph.NewConverter: convert function cannot be nil")
	}
	return &converterFuncs[SI, SO, DI, DO]{schema: schema, convert: convert}
}

// ConvertSchema implements the Converter interface for converterFuncs.
func (c *converterFuncs[SI, SO, DI, DO]) ConvertSchema(
	ctx context.Context,
	inputSchema SI,
	task *TaskContext,
) (SO, error) {
	return c.schema(ctx, inputSchema, task)
}

// ConvertRecord implements the Converter interface for converterFuncs.
func (c *converterFuncs[SI, SO, DI, DO]) ConvertRecord(
	ctx context.Context,
	outputSchema SO,
	record DI,
	task *TaskContext,
) (iter.Seq[DO], error) {
	return c.convert(ctx, outputSchema, record, task)
}

// Identity returns a converter that passes the schema and every record
// through unchanged, emitting each input record as a single-element sequence.
func Identity[S, D any]() Converter[S, S, D, D] {
	return NewConverter(
		func(_ context.Context, inputSchema S, _ *TaskContext) (S, error) {
			return inputSchema, nil
		},
		func(_ context.Context, _ S, record D, _ *TaskContext) (iter.Seq[D], error) {
			return Records(record), nil
		},
	)
}

// Records returns a finite, restartable sequence over the given records.
func Records[DO any](records ...DO) iter.Seq[DO] {
	return func(yield func(DO) bool) {
		for _, r := range records {
			if !yield(r) {
				return
			}
		}
	}
}

// Collect drains a sequence into a slice. Calling Collect on an infinite
// sequence does not return.
func Collect[DO any](seq iter.Seq[DO]) []DO {
	var out []DO
	for r := range seq {
		out = append(out, r)
	}
	return out
}

// chainedConverter composes two converters back to back.
type chainedConverter[SA, SB, SC, DA, DB, DC any] struct {
	first  Converter[SA, SB, DA, DB]
	second Converter[SB, SC, DB, DC]

	mu        sync.Mutex
	midSchema SB
	schemaSet bool
}

// ChainConverters composes two converters: records flow through the first and
// then through the second. ConvertSchema must be called before ConvertRecord
// so the intermediate schema is known.
//
// Unlike a single converter, the chained ConvertRecord drains the intermediate
// sequence eagerly: a failure in the second converter must surface as the
// call's error, which a lazy flat-map could not report.
func ChainConverters[SA, SB, SC, DA, DB, DC any](
	first Converter[SA, SB, DA, DB],
	second Converter[SB, SC, DB, DC],
) Converter[SA, SC, DA, DC] {
	if first == nil || second == nil {
		panic("morph.ChainConverters: converters cannot be nil")
	}
	return &chainedConverter[SA, SB, SC, DA, DB, DC]{first: first, second: second}
}

// ConvertSchema derives the output schema through both converters and
// remembers the intermediate schema for record conversion.
func (c *chainedConverter[SA, SB, SC, DA, DB, DC]) ConvertSchema(
	ctx context.Context,
	inputSchema SA,
	task *TaskContext,
) (SC, error) {
	var zero SC
	mid, err := c.first.ConvertSchema(ctx, inputSchema, task)
	if err != nil {
		return zero, err
	}
	out, err := c.second.ConvertSchema(ctx, mid, task)
	if err != nil {
		return zero, err
	}
	c.mu.Lock()
	c.midSchema = mid
	c.schemaSet = true
	c.mu.Unlock()
	return out, nil
}

// ConvertRecord converts a record through both converters.
func (c *chainedConverter[SA, SB, SC, DA, DB, DC]) ConvertRecord(
	ctx context.Context,
	outputSchema SC,
	record DA,
	task *TaskContext,
) (iter.Seq[DC], error) {
	c.mu.Lock()
	mid := c.midSchema
	ok := c.schemaSet
	c.mu.Unlock()
	if !ok {
		return nil, NewConversionError("chain", ErrSchemaNotConverted)
	}

	intermediate, err := c.first.ConvertRecord(ctx, mid, record, task)
	if err != nil {
		return nil, err
	}

	var out []DC
	for rec := range intermediate {
		seq, errConvert := c.second.ConvertRecord(ctx, outputSchema, rec, task)
		if errConvert != nil {
			return nil, errConvert
		}
		out = append(out, Collect(seq)...)
	}
	return Records(out...), nil
}
