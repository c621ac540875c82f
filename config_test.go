package morph_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synoptiq/go-morph"
)

const validTaskYAML = `
version: "1.0.0"
task_name: user-events-hourly
converter: user_enrichment
metrics:
  enabled: true
  type: prometheus
tracing:
  enabled: false
`

func TestLoadTaskConfig(t *testing.T) {
	cfg, err := morph.LoadTaskConfig([]byte(validTaskYAML))
	require.NoError(t, err)

	assert.Equal(t, "1.0.0", cfg.Version)
	assert.Equal(t, "user-events-hourly", cfg.Name)
	assert.Equal(t, "user_enrichment", cfg.Converter)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, morph.MetricsTypePrometheus, cfg.Metrics.Type)
	assert.False(t, cfg.Tracing.Enabled)
}

func TestLoadTaskConfigInvalidYAML(t *testing.T) {
	_, err := morph.LoadTaskConfig([]byte("task_name: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}

func TestTaskConfigValidation(t *testing.T) {
	t.Run("MissingName", func(t *testing.T) {
		_, err := morph.LoadTaskConfig([]byte(`
version: "1.0.0"
converter: user_enrichment
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "validation failed")
	})

	t.Run("MissingConverter", func(t *testing.T) {
		_, err := morph.LoadTaskConfig([]byte(`
version: "1.0.0"
task_name: my-task
`))
		require.Error(t, err)
	})

	t.Run("BadMetricsType", func(t *testing.T) {
		_, err := morph.LoadTaskConfig([]byte(`
version: "1.0.0"
task_name: my-task
converter: conv
metrics:
  enabled: true
  type: statsd
`))
		require.Error(t, err)
	})

	t.Run("BadTracingType", func(t *testing.T) {
		_, err := morph.LoadTaskConfig([]byte(`
version: "1.0.0"
task_name: my-task
converter: conv
tracing:
  enabled: true
  type: xray
`))
		require.Error(t, err)
	})
}

func TestLoadTaskConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "task.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validTaskYAML), 0o600))

	cfg, err := morph.LoadTaskConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "user-events-hourly", cfg.Name)

	_, err = morph.LoadTaskConfigFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestTaskConfigNewTaskContext(t *testing.T) {
	cfg, err := morph.LoadTaskConfig([]byte(validTaskYAML))
	require.NoError(t, err)

	task := cfg.NewTaskContext()
	assert.Equal(t, "user-events-hourly", task.ID())
	assert.Equal(t, "user_enrichment", task.PropString("converter", ""))
}

func TestObservabilityFactoryMetrics(t *testing.T) {
	factory := morph.NewObservabilityFactory()

	t.Run("Disabled", func(t *testing.T) {
		provider, err := factory.CreateMetricsProvider(morph.TaskMetricsConfig{Enabled: false})
		require.NoError(t, err)
		assert.IsType(t, &morph.NoopMetricsProvider{}, provider)
	})

	t.Run("Noop", func(t *testing.T) {
		provider, err := factory.CreateMetricsProvider(morph.TaskMetricsConfig{
			Enabled: true, Type: morph.MetricsTypeNoop,
		})
		require.NoError(t, err)
		assert.IsType(t, &morph.NoopMetricsProvider{}, provider)
	})

	t.Run("Prometheus", func(t *testing.T) {
		provider, err := factory.CreateMetricsProvider(morph.TaskMetricsConfig{
			Enabled: true, Type: morph.MetricsTypePrometheus,
		})
		require.NoError(t, err)
		assert.IsType(t, &morph.PrometheusMetricsProvider{}, provider)
	})

	t.Run("Logging", func(t *testing.T) {
		provider, err := factory.CreateMetricsProvider(morph.TaskMetricsConfig{
			Enabled: true, Type: morph.MetricsTypeLogging,
		})
		require.NoError(t, err)
		assert.IsType(t, &morph.LoggingMetricsProvider{}, provider)
	})

	t.Run("InfluxDBRequiresEndpoint", func(t *testing.T) {
		_, err := factory.CreateMetricsProvider(morph.TaskMetricsConfig{
			Enabled: true, Type: morph.MetricsTypeInfluxDB,
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "endpoint is required")
	})

	t.Run("MongoDBRequiresEndpoint", func(t *testing.T) {
		_, err := factory.CreateMetricsProvider(morph.TaskMetricsConfig{
			Enabled: true, Type: morph.MetricsTypeMongoDB,
		})
		require.Error(t, err)
	})

	t.Run("UnknownType", func(t *testing.T) {
		_, err := factory.CreateMetricsProvider(morph.TaskMetricsConfig{
			Enabled: true, Type: morph.MetricsType("carrier-pigeon"),
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported metrics type")
	})
}

func TestObservabilityFactoryTracing(t *testing.T) {
	factory := morph.NewObservabilityFactory()

	t.Run("Disabled", func(t *testing.T) {
		provider, err := factory.CreateTracerProvider(morph.TaskTracingConfig{Enabled: false}, "svc")
		require.NoError(t, err)
		assert.IsType(t, &morph.NoopTracerProvider{}, provider)
	})

	t.Run("OTLPRequiresEndpoint", func(t *testing.T) {
		_, err := factory.CreateTracerProvider(morph.TaskTracingConfig{
			Enabled: true, Type: morph.TracingTypeOTLP,
		}, "svc")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "endpoint is required")
	})

	t.Run("ZipkinRequiresEndpoint", func(t *testing.T) {
		_, err := factory.CreateTracerProvider(morph.TaskTracingConfig{
			Enabled: true, Type: morph.TracingTypeZipkin,
		}, "svc")
		require.Error(t, err)
	})

	t.Run("UnknownType", func(t *testing.T) {
		_, err := factory.CreateTracerProvider(morph.TaskTracingConfig{
			Enabled: true, Type: morph.TracingType("smoke-signals"),
		}, "svc")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported tracing type")
	})
}

func TestPrometheusProviderInstruments(t *testing.T) {
	provider := morph.NewPrometheusMetricsProvider()
	task := morph.NewTaskContext("prom-task")

	mctx, err := provider.ContextFor(task, "conv")
	require.NoError(t, err)

	counter := mctx.NewCounter(morph.MetricRecordsIn)
	counter.Mark()
	counter.MarkN(2)
	assert.Equal(t, int64(3), counter.Count(), "local reading must track forwarded marks")

	timer := mctx.NewTimer(morph.MetricConversionTime)
	timer.Update(time.Millisecond)
	assert.Equal(t, int64(1), timer.Count())

	// The underlying registry must have gathered the forwarded samples.
	families, err := provider.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	require.NoError(t, mctx.Close())
}
