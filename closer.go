package morph

import (
	"errors"
	"io"
	"sync"
)

// MultiCloser collects resources acquired during initialization and releases
// them together at teardown. Resources are released in reverse order of
// registration, so later resources built on earlier ones come down first.
//
// Close releases every registered resource even when some releases fail, and
// reports all failures joined into one error. Close is idempotent: subsequent
// calls return the result of the first.
type MultiCloser struct {
	mu        sync.Mutex
	resources []io.Closer
	closed    bool
	closeErr  error
}

// NewMultiCloser creates an empty MultiCloser.
func NewMultiCloser() *MultiCloser {
	return &MultiCloser{}
}

// Register adds a resource to the release list and returns it unchanged, so
// acquisition and registration compose in one expression:
//
//	metrics := Register(closer, newMetricsContext(...))
func Register[T io.Closer](c *MultiCloser, resource T) T {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resources = append(c.resources, resource)
	return resource
}

// Close releases all registered resources in reverse order of registration.
func (c *MultiCloser) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return c.closeErr
	}
	c.closed = true

	var errs []error
	for i := len(c.resources) - 1; i >= 0; i-- {
		if err := c.resources[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.resources = nil
	c.closeErr = errors.Join(errs...)
	return c.closeErr
}
