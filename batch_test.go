package morph_test

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"testing"

	"github.com/synoptiq/go-morph"
)

func TestConvertBatchPreservesOrder(t *testing.T) {
	doubler := morph.NewConverter(
		func(_ context.Context, s string, _ *morph.TaskContext) (string, error) { return s, nil },
		func(_ context.Context, _ string, n int, _ *morph.TaskContext) (iter.Seq[string], error) {
			return morph.Records(strconv.Itoa(n), strconv.Itoa(n*2)), nil
		},
	)

	records := []int{1, 2, 3, 4, 5}
	out, err := morph.ConvertBatch(context.Background(), doubler, "schema", records,
		morph.NewTaskContext("batch"), 3)
	if err != nil {
		t.Fatalf("ConvertBatch failed: %v", err)
	}

	want := []string{"1", "2", "2", "4", "3", "6", "4", "8", "5", "10"}
	if len(out) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(out))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("position %d: expected %q, got %q", i, want[i], out[i])
		}
	}
}

func TestConvertBatchEmptyInput(t *testing.T) {
	out, err := morph.ConvertBatch(context.Background(), repeatConverter(2), "schema",
		nil, morph.NewTaskContext("batch"), 4)
	if err != nil {
		t.Fatalf("ConvertBatch failed: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected no output for empty input, got %v", out)
	}
}

func TestConvertBatchFirstErrorWins(t *testing.T) {
	convErr := morph.NewConversionError("picky", errors.New("rejected"))
	picky := morph.NewConverter(
		func(_ context.Context, s string, _ *morph.TaskContext) (string, error) { return s, nil },
		func(_ context.Context, _ string, n int, _ *morph.TaskContext) (iter.Seq[int], error) {
			if n == 7 {
				return nil, convErr
			}
			return morph.Records(n), nil
		},
	)

	records := []int{1, 2, 7, 4}
	_, err := morph.ConvertBatch(context.Background(), picky, "schema", records,
		morph.NewTaskContext("batch"), 2)
	if !errors.Is(err, convErr) {
		t.Fatalf("expected the conversion error, got %v", err)
	}
}

func TestConvertBatchContextCancellation(t *testing.T) {
	blocking := morph.NewConverter(
		func(_ context.Context, s string, _ *morph.TaskContext) (string, error) { return s, nil },
		func(ctx context.Context, _ string, n int, _ *morph.TaskContext) (iter.Seq[int], error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := morph.ConvertBatch(ctx, blocking, "schema", []int{1, 2, 3},
		morph.NewTaskContext("batch"), 2)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestConvertBatchConcurrencyFloor(t *testing.T) {
	// Zero or negative concurrency degrades to sequential, never deadlocks.
	out, err := morph.ConvertBatch(context.Background(), repeatConverter(1), "schema",
		[]string{"a", "b"}, morph.NewTaskContext("batch"), 0)
	if err != nil {
		t.Fatalf("ConvertBatch failed: %v", err)
	}
	if len(out) != 2 {
		t.Errorf("expected 2 records, got %d", len(out))
	}
}

func TestConvertBatchNilConverterPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for nil converter")
		}
	}()
	_, _ = morph.ConvertBatch[string, string, string, string](context.Background(), nil,
		"schema", []string{"a"}, morph.NewTaskContext("batch"), 1)
}

func TestConvertBatchWithInstrumentation(t *testing.T) {
	ic, _, task := newInstrumented(t, repeatConverter(2))

	records := make([]string, 5)
	for i := range records {
		records[i] = fmt.Sprintf("rec-%d", i)
	}

	out, err := morph.ConvertBatch(context.Background(), ic, "schema", records, task, 2)
	if err != nil {
		t.Fatalf("ConvertBatch failed: %v", err)
	}
	if len(out) != 10 {
		t.Fatalf("expected 10 output records, got %d", len(out))
	}

	m := ic.Metrics()
	if m.RecordsIn.Count() != 5 || m.RecordsOut.Count() != 10 {
		t.Errorf("expected in=5 out=10, got in=%d out=%d", m.RecordsIn.Count(), m.RecordsOut.Count())
	}
}
