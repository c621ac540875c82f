package morph

import (
	"sync"
)

// TaskContext is the opaque per-task handle the surrounding task framework
// threads through converter initialization and every conversion call.
// Converters and decorators forward it; this package reads nothing from it
// beyond the task identifier used to scope metric contexts.
//
// The property store is safe for concurrent use, so stages sharing one task
// may read and write configuration from worker goroutines.
type TaskContext struct {
	id string

	mu    sync.RWMutex
	props map[string]any
}

// NewTaskContext creates a task context with the given task identifier.
func NewTaskContext(id string) *TaskContext {
	return &TaskContext{
		id:    id,
		props: make(map[string]any),
	}
}

// ID returns the task identifier.
func (t *TaskContext) ID() string {
	return t.id
}

// SetProp stores a property on the task context.
func (t *TaskContext) SetProp(key string, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.props == nil {
		t.props = make(map[string]any)
	}
	t.props[key] = value
}

// Prop retrieves a property from the task context.
// It returns the value and true if the key exists, otherwise nil and false.
func (t *TaskContext) Prop(key string) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.props == nil {
		return nil, false
	}
	val, ok := t.props[key]
	return val, ok
}

// PropString retrieves a string property, returning the fallback when the key
// is absent or holds a non-string value.
func (t *TaskContext) PropString(key, fallback string) string {
	val, ok := t.Prop(key)
	if !ok {
		return fallback
	}
	s, ok := val.(string)
	if !ok {
		return fallback
	}
	return s
}

// Props returns a shallow copy of all properties. This allows iterating over
// the stored state without holding a lock for the duration of the iteration.
func (t *TaskContext) Props() map[string]any {
	t.mu.RLock()
	defer t.mu.RUnlock()
	copied := make(map[string]any, len(t.props))
	for k, v := range t.props {
		copied[k] = v
	}
	return copied
}
