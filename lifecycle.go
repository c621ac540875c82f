package morph

import "context"

// Initializer defines an optional interface for converters that require an
// initialization step before they convert records. This is where converters
// acquire resources such as metric instruments or backend connections.
//
// The task framework should call Init once per task, with that task's
// context, before the first record reaches the converter.
type Initializer interface {
	Init(ctx context.Context, task *TaskContext) error
}

// Closer defines an optional interface for converters that need to perform
// cleanup when a task tears down. This is where converters release resources
// acquired during Init.
//
// The task framework should call Close once, after the last record has been
// converted and its output sequence consumed.
type Closer interface {
	Close(ctx context.Context) error
}

// HealthCheckable defines an interface for converters that can report their
// operational health. This is useful for monitoring and automated systems
// to determine if a converter is functioning correctly.
//
// The HealthStatus method should return nil if the converter is healthy,
// or an error describing the problem if it's unhealthy.
type HealthCheckable interface {
	HealthStatus(ctx context.Context) error
}
