package morph

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ConvertBatch runs a converter over a slice of input records with bounded
// concurrency, draining every output sequence, and returns all output records
// in input order. The first conversion error cancels the remaining work and
// is returned.
//
// Concurrency applies across records, not within one conversion. An
// InstrumentedConverter expects sequential calls per instance; its
// instruments tolerate concurrent marking, but overriders relying on hook
// interleaving should pass concurrency 1 or use one instance per worker.
func ConvertBatch[SI, SO, DI, DO any](
	ctx context.Context,
	converter Converter[SI, SO, DI, DO],
	outputSchema SO,
	records []DI,
	task *TaskContext,
	concurrency int,
) ([]DO, error) {
	if converter == nil {
		panic("morph.ConvertBatch: converter cannot be nil")
	}
	if concurrency < 1 {
		concurrency = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan int)

	// Dispatcher feeds record indices to the workers.
	g.Go(func() error {
		defer close(jobs)
		for i := range records {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	// Per-record results keep input order regardless of worker scheduling.
	results := make([][]DO, len(records))
	for w := 0; w < concurrency; w++ {
		g.Go(func() error {
			for i := range jobs {
				seq, err := converter.ConvertRecord(gctx, outputSchema, records[i], task)
				if err != nil {
					return err
				}
				results[i] = Collect(seq)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []DO
	for _, rs := range results {
		out = append(out, rs...)
	}
	return out, nil
}
