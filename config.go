package morph

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	// TaskConfigVersion is the default version of the task configuration.
	TaskConfigVersion = "1.0.0"
)

// MetricsType represents the metrics backend used by a conversion task.
type MetricsType string

const (
	// MetricsTypeNoop discards all metrics.
	MetricsTypeNoop MetricsType = "noop"
	// MetricsTypePrometheus exposes metrics on a Prometheus registry.
	MetricsTypePrometheus MetricsType = "prometheus"
	// MetricsTypeInfluxDB writes metric points to InfluxDB.
	MetricsTypeInfluxDB MetricsType = "influxdb"
	// MetricsTypeMongoDB inserts metric documents into MongoDB.
	MetricsTypeMongoDB MetricsType = "mongodb"
	// MetricsTypeLogging prints metric mutations to a logger.
	MetricsTypeLogging MetricsType = "logging"
)

// TracingType represents the trace exporter used by a conversion task.
type TracingType string

const (
	// TracingTypeNoop disables tracing.
	TracingTypeNoop TracingType = "noop"
	// TracingTypeOTLP exports spans over OTLP gRPC.
	TracingTypeOTLP TracingType = "otlp"
	// TracingTypeJaeger exports spans to Jaeger via OTLP ingestion.
	TracingTypeJaeger TracingType = "jaeger"
	// TracingTypeZipkin exports spans to Zipkin.
	TracingTypeZipkin TracingType = "zipkin"
)

// TaskMetricsConfig holds the metrics configuration for a conversion task.
type TaskMetricsConfig struct {
	Enabled  bool        `yaml:"enabled"`  // Whether metrics are enabled for the task
	Type     MetricsType `yaml:"type"     validate:"omitempty,oneof=noop prometheus influxdb mongodb logging"` // Metrics backend
	Endpoint string      `yaml:"endpoint"` // Endpoint for the metrics backend (e.g., InfluxDB URL or MongoDB URI)
}

// TaskTracingConfig holds the tracing configuration for a conversion task.
type TaskTracingConfig struct {
	Enabled  bool        `yaml:"enabled"`  // Whether tracing is enabled for the task
	Type     TracingType `yaml:"type"     validate:"omitempty,oneof=noop otlp jaeger zipkin"` // Trace exporter
	Endpoint string      `yaml:"endpoint"` // Endpoint for the trace collector
}

// TaskConfig holds the parsed configuration for a single conversion task.
type TaskConfig struct {
	Version   string            `yaml:"version"            validate:"required"` // Version of the task configuration
	Name      string            `yaml:"task_name"          validate:"required"` // Name of the task
	Converter string            `yaml:"converter"          validate:"required"` // Name of the converter the task runs
	Metrics   TaskMetricsConfig `yaml:"metrics,omitempty"`                      // Metrics configuration for the task
	Tracing   TaskTracingConfig `yaml:"tracing,omitempty"`                      // Tracing configuration for the task
}

// Validate checks the task configuration for correctness using struct tags.
func (tc *TaskConfig) Validate() error {
	validate := validator.New()
	if err := validate.Struct(tc); err != nil {
		return fmt.Errorf("task configuration validation failed: %w", err)
	}
	return nil
}

// NewTaskContext builds the per-task context for this configuration. The
// task name becomes the context ID and the converter name is stored as a
// property for stages that want it.
func (tc *TaskConfig) NewTaskContext() *TaskContext {
	task := NewTaskContext(tc.Name)
	task.SetProp("converter", tc.Converter)
	return task
}

// LoadTaskConfig parses and validates a task configuration from YAML.
func LoadTaskConfig(data []byte) (*TaskConfig, error) {
	var cfg TaskConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse task configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadTaskConfigFromFile reads, parses, and validates a task configuration file.
func LoadTaskConfigFromFile(path string) (*TaskConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read task configuration %q: %w", path, err)
	}
	return LoadTaskConfig(data)
}
