package morph

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Counter is a monotonically increasing metric instrument.
// Implementations must be safe for concurrent marking.
type Counter interface {
	// Mark increments the counter by one.
	Mark()
	// MarkN increments the counter by n.
	MarkN(n int64)
	// Count returns the current value.
	Count() int64
}

// Timer records duration samples.
// Implementations must be safe for concurrent updates.
type Timer interface {
	// Update records one duration sample.
	Update(d time.Duration)
	// Count returns the number of samples recorded.
	Count() int64
	// Total returns the sum of all recorded samples.
	Total() time.Duration
	// Mean returns the mean of all recorded samples, or zero if none.
	Mean() time.Duration
}

// MetricsContext mints named counters and timers within one scope.
// A scope is typically one (task, converter type) pair, so metrics from
// different converter types in the same task stay distinguishable.
//
// Closing a context releases whatever backend resources its instruments
// hold. Instruments minted from a closed context are undefined.
type MetricsContext interface {
	NewCounter(name string) Counter
	NewTimer(name string) Timer
	Close() error
}

// MetricsProvider creates metric contexts scoped to a task and a component.
// The provider owns the backend connection; the returned context owns only
// the instruments minted from it.
type MetricsProvider interface {
	ContextFor(task *TaskContext, scope string) (MetricsContext, error)
}

// NoopMetricsContext is a metrics context that discards everything.
// It's useful as a default when no metrics collection is needed.
type NoopMetricsContext struct{}

// Ensure NoopMetricsContext implements MetricsContext
var _ MetricsContext = (*NoopMetricsContext)(nil)

// NewCounter implements MetricsContext for NoopMetricsContext.
func (*NoopMetricsContext) NewCounter(_ string) Counter { return noopCounter{} }

// NewTimer implements MetricsContext for NoopMetricsContext.
func (*NoopMetricsContext) NewTimer(_ string) Timer { return noopTimer{} }

// Close implements MetricsContext for NoopMetricsContext.
func (*NoopMetricsContext) Close() error { return nil }

type noopCounter struct{}

func (noopCounter) Mark()         {}
func (noopCounter) MarkN(_ int64) {}
func (noopCounter) Count() int64  { return 0 }

type noopTimer struct{}

func (noopTimer) Update(_ time.Duration) {}
func (noopTimer) Count() int64           { return 0 }
func (noopTimer) Total() time.Duration   { return 0 }
func (noopTimer) Mean() time.Duration    { return 0 }

// NoopMetricsProvider hands out noop contexts.
type NoopMetricsProvider struct{}

// Ensure NoopMetricsProvider implements MetricsProvider
var _ MetricsProvider = (*NoopMetricsProvider)(nil)

// ContextFor implements MetricsProvider for NoopMetricsProvider.
func (*NoopMetricsProvider) ContextFor(_ *TaskContext, _ string) (MetricsContext, error) {
	return &NoopMetricsContext{}, nil
}

// DefaultMetricsProvider is the provider used when none is configured.
var DefaultMetricsProvider MetricsProvider = &NoopMetricsProvider{}

// Registry is an in-memory MetricsProvider backed by atomic instruments.
// Instruments are keyed by task, scope, and name, and survive context Close,
// so tests and in-process dashboards can read them after a task tears down.
type Registry struct {
	mu       sync.Mutex
	counters map[string]*registryCounter
	timers   map[string]*registryTimer
}

// Ensure Registry implements MetricsProvider
var _ MetricsProvider = (*Registry)(nil)

// NewRegistry creates an empty in-memory metrics registry.
func NewRegistry() *Registry {
	return &Registry{
		counters: make(map[string]*registryCounter),
		timers:   make(map[string]*registryTimer),
	}
}

// ContextFor implements MetricsProvider for Registry.
func (r *Registry) ContextFor(task *TaskContext, scope string) (MetricsContext, error) {
	if task == nil {
		return nil, fmt.Errorf("morph.Registry: task context cannot be nil")
	}
	return &registryContext{registry: r, prefix: instrumentKey(task.ID(), scope, "")}, nil
}

// Counter returns the counter minted for (task, scope, name), or nil if no
// such counter exists. Intended for tests and in-process inspection.
func (r *Registry) Counter(taskID, scope, name string) Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.counters[instrumentKey(taskID, scope, name)]
	if !ok {
		return nil
	}
	return c
}

// Timer returns the timer minted for (task, scope, name), or nil if no such
// timer exists.
func (r *Registry) Timer(taskID, scope, name string) Timer {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.timers[instrumentKey(taskID, scope, name)]
	if !ok {
		return nil
	}
	return t
}

func (r *Registry) counter(key string) *registryCounter {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.counters[key]
	if !ok {
		c = &registryCounter{}
		r.counters[key] = c
	}
	return c
}

func (r *Registry) timer(key string) *registryTimer {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.timers[key]
	if !ok {
		t = &registryTimer{}
		r.timers[key] = t
	}
	return t
}

func instrumentKey(taskID, scope, name string) string {
	if name == "" {
		return taskID + "/" + scope + "/"
	}
	return taskID + "/" + scope + "/" + name
}

// registryContext mints instruments under one task/scope prefix.
type registryContext struct {
	registry *Registry
	prefix   string
}

func (c *registryContext) NewCounter(name string) Counter {
	return c.registry.counter(c.prefix + name)
}

func (c *registryContext) NewTimer(name string) Timer {
	return c.registry.timer(c.prefix + name)
}

// Close implements MetricsContext. Registry instruments hold no external
// resources; their readings stay available after close.
func (c *registryContext) Close() error { return nil }

type registryCounter struct {
	count atomic.Int64
}

func (c *registryCounter) Mark()         { c.count.Add(1) }
func (c *registryCounter) MarkN(n int64) { c.count.Add(n) }
func (c *registryCounter) Count() int64  { return c.count.Load() }

type registryTimer struct {
	count      atomic.Int64
	totalNanos atomic.Int64
}

func (t *registryTimer) Update(d time.Duration) {
	t.count.Add(1)
	t.totalNanos.Add(int64(d))
}

func (t *registryTimer) Count() int64 { return t.count.Load() }

func (t *registryTimer) Total() time.Duration {
	return time.Duration(t.totalNanos.Load())
}

func (t *registryTimer) Mean() time.Duration {
	n := t.count.Load()
	if n == 0 {
		return 0
	}
	return time.Duration(t.totalNanos.Load() / n)
}
