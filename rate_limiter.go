package morph

import (
	"context"
	"iter"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitedConverter is a converter decorator that limits the rate of
// record conversions. Schema conversion is not limited; it happens once per
// task and is never the hot path.
type RateLimitedConverter[SI, SO, DI, DO any] struct {
	converter Converter[SI, SO, DI, DO]
	limiter   *rate.Limiter
	timeout   time.Duration
	mu        sync.RWMutex
}

// Ensure RateLimitedConverter implements Converter.
var _ Converter[any, any, any, any] = (*RateLimitedConverter[any, any, any, any])(nil)

// RateLimitedConverterOption is a function that configures a RateLimitedConverter.
type RateLimitedConverterOption[SI, SO, DI, DO any] func(*RateLimitedConverter[SI, SO, DI, DO])

// WithLimiterTimeout sets a timeout for waiting for the limiter.
func WithLimiterTimeout[SI, SO, DI, DO any](timeout time.Duration) RateLimitedConverterOption[SI, SO, DI, DO] {
	return func(rl *RateLimitedConverter[SI, SO, DI, DO]) {
		rl.timeout = timeout
	}
}

// NewRateLimitedConverter creates a rate-limited wrapper around a converter.
// r is the rate limit (e.g., 10 means 10 conversions per second)
// b is the maximum burst size (maximum number of tokens that can be consumed in a single burst)
func NewRateLimitedConverter[SI, SO, DI, DO any](
	converter Converter[SI, SO, DI, DO],
	r rate.Limit,
	b int,
	options ...RateLimitedConverterOption[SI, SO, DI, DO],
) *RateLimitedConverter[SI, SO, DI, DO] {
	if converter == nil {
		panic("morph.NewRateLimitedConverter: converter cannot be nil")
	}

	rl := &RateLimitedConverter[SI, SO, DI, DO]{
		converter: converter,
		limiter:   rate.NewLimiter(r, b),
		timeout:   time.Second, // Default timeout
	}

	// Apply options
	for _, option := range options {
		option(rl)
	}

	return rl
}

// ConvertSchema implements the Converter interface for RateLimitedConverter.
func (rl *RateLimitedConverter[SI, SO, DI, DO]) ConvertSchema(
	ctx context.Context,
	inputSchema SI,
	task *TaskContext,
) (SO, error) {
	return rl.converter.ConvertSchema(ctx, inputSchema, task)
}

// ConvertRecord implements the Converter interface for RateLimitedConverter.
func (rl *RateLimitedConverter[SI, SO, DI, DO]) ConvertRecord(
	ctx context.Context,
	outputSchema SO,
	record DI,
	task *TaskContext,
) (iter.Seq[DO], error) {
	// Wait for rate limiter or timeout
	limiterCtx := ctx
	if rl.timeout > 0 {
		var cancel context.CancelFunc
		limiterCtx, cancel = context.WithTimeout(ctx, rl.timeout)
		defer cancel()
	}

	// Try to acquire a token
	if err := rl.limiter.Wait(limiterCtx); err != nil {
		return nil, err
	}

	return rl.converter.ConvertRecord(ctx, outputSchema, record, task)
}

// SetLimit updates the rate limit.
func (rl *RateLimitedConverter[SI, SO, DI, DO]) SetLimit(r rate.Limit) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limiter.SetLimit(r)
}

// SetBurst updates the burst limit.
func (rl *RateLimitedConverter[SI, SO, DI, DO]) SetBurst(b int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limiter.SetBurst(b)
}

// Allow checks if a conversion can proceed without blocking.
func (rl *RateLimitedConverter[SI, SO, DI, DO]) Allow() bool {
	return rl.limiter.Allow()
}
