package morph

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	otelTrace "go.opentelemetry.io/otel/trace"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ObservabilityFactory creates observability components from task configuration.
type ObservabilityFactory struct{}

// NewObservabilityFactory creates a new factory for observability components.
func NewObservabilityFactory() *ObservabilityFactory {
	return &ObservabilityFactory{}
}

// CreateMetricsProvider creates a MetricsProvider based on the task metrics configuration.
func (f *ObservabilityFactory) CreateMetricsProvider(config TaskMetricsConfig) (MetricsProvider, error) {
	if !config.Enabled {
		return &NoopMetricsProvider{}, nil
	}

	switch config.Type {
	case MetricsTypeNoop:
		return &NoopMetricsProvider{}, nil
	case MetricsTypePrometheus:
		return NewPrometheusMetricsProvider(), nil
	case MetricsTypeInfluxDB:
		return f.createInfluxDBProvider(config)
	case MetricsTypeMongoDB:
		return f.createMongoDBProvider(config)
	case MetricsTypeLogging:
		return NewLoggingMetricsProvider(log.Default()), nil
	default:
		return nil, fmt.Errorf("unsupported metrics type: %s", config.Type)
	}
}

func (f *ObservabilityFactory) createInfluxDBProvider(config TaskMetricsConfig) (MetricsProvider, error) {
	if config.Endpoint == "" {
		return nil, errors.New("influxdb endpoint is required")
	}
	return NewInfluxDBMetricsProvider(config.Endpoint), nil
}

func (f *ObservabilityFactory) createMongoDBProvider(config TaskMetricsConfig) (MetricsProvider, error) {
	if config.Endpoint == "" {
		return nil, errors.New("mongodb endpoint is required")
	}

	clientOptions := options.Client().ApplyURI(config.Endpoint)
	client, err := mongo.Connect(context.Background(), clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Test the connection
	if errPing := client.Ping(context.Background(), nil); errPing != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", errPing)
	}

	return &MongoDBMetricsProvider{
		client:     client,
		collection: client.Database("morph_metrics").Collection("converter_metrics"),
		endpoint:   config.Endpoint,
	}, nil
}

// CreateTracerProvider creates a TracerProvider based on the task tracing configuration.
func (f *ObservabilityFactory) CreateTracerProvider(
	config TaskTracingConfig,
	serviceName string,
) (TracerProvider, error) {
	if !config.Enabled {
		return &NoopTracerProvider{}, nil
	}

	switch config.Type {
	case TracingTypeNoop:
		return &NoopTracerProvider{}, nil
	case TracingTypeZipkin:
		return f.createZipkinTracerProvider(config, serviceName)
	case TracingTypeJaeger:
		// Jaeger exporter is deprecated, redirect to OTLP
		// Users should migrate to OTLP for Jaeger ingestion
		return f.createOTLPTracerProvider(config, serviceName)
	case TracingTypeOTLP:
		return f.createOTLPTracerProvider(config, serviceName)
	default:
		return nil, fmt.Errorf("unsupported tracing type: %s", config.Type)
	}
}

func (f *ObservabilityFactory) createOTLPTracerProvider(
	config TaskTracingConfig,
	serviceName string,
) (TracerProvider, error) {
	if config.Endpoint == "" {
		return nil, errors.New("otlp endpoint is required")
	}

	exporter, err := otlptracegrpc.New(
		context.Background(),
		otlptracegrpc.WithEndpoint(config.Endpoint),
		otlptracegrpc.WithInsecure(), // Use WithTLSCredentials() for secure connections
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := serviceResource(serviceName)
	if err != nil {
		return nil, err
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
	)

	return &OTLPTracerProvider{tp: tp}, nil
}

func (f *ObservabilityFactory) createZipkinTracerProvider(
	config TaskTracingConfig,
	serviceName string,
) (TracerProvider, error) {
	if config.Endpoint == "" {
		return nil, errors.New("zipkin endpoint is required")
	}

	exporter, err := zipkin.New(config.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create Zipkin exporter: %w", err)
	}

	res, err := serviceResource(serviceName)
	if err != nil {
		return nil, err
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
	)

	return &ZipkinTracerProvider{tp: tp}, nil
}

func serviceResource(serviceName string) (*resource.Resource, error) {
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(TaskConfigVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// OTLPTracerProvider wraps the OpenTelemetry SDK TracerProvider for OTLP export.
type OTLPTracerProvider struct {
	tp *trace.TracerProvider
}

// Tracer returns a tracer from the underlying provider.
func (p *OTLPTracerProvider) Tracer(name string, options ...otelTrace.TracerOption) otelTrace.Tracer {
	return p.tp.Tracer(name, options...)
}

// Shutdown gracefully shuts down the tracer provider.
func (p *OTLPTracerProvider) Shutdown(ctx context.Context) error {
	return p.tp.Shutdown(ctx)
}

// Ensure OTLPTracerProvider implements TracerProvider.
var _ TracerProvider = (*OTLPTracerProvider)(nil)

// ZipkinTracerProvider wraps the OpenTelemetry SDK TracerProvider for Zipkin export.
type ZipkinTracerProvider struct {
	tp *trace.TracerProvider
}

// Tracer returns a tracer from the underlying provider.
func (p *ZipkinTracerProvider) Tracer(name string, options ...otelTrace.TracerOption) otelTrace.Tracer {
	return p.tp.Tracer(name, options...)
}

// Shutdown gracefully shuts down the tracer provider.
func (p *ZipkinTracerProvider) Shutdown(ctx context.Context) error {
	return p.tp.Shutdown(ctx)
}

// Ensure ZipkinTracerProvider implements TracerProvider.
var _ TracerProvider = (*ZipkinTracerProvider)(nil)

// sanitizeMetricName rewrites a dotted instrument name into the character set
// Prometheus accepts. The dotted form stays canonical everywhere else.
func sanitizeMetricName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}

// PrometheusMetricsProvider implements MetricsProvider on a private
// Prometheus registry. Instruments minted for the same metric name share one
// vector, labeled by task and converter, so every (task, converter) pair
// stays distinguishable on the scrape endpoint.
type PrometheusMetricsProvider struct {
	registry *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

// Ensure PrometheusMetricsProvider implements MetricsProvider.
var _ MetricsProvider = (*PrometheusMetricsProvider)(nil)

// NewPrometheusMetricsProvider creates a provider with a fresh registry.
func NewPrometheusMetricsProvider() *PrometheusMetricsProvider {
	return &PrometheusMetricsProvider{
		registry:   prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Registry returns the Prometheus registry for exposing metrics.
func (p *PrometheusMetricsProvider) Registry() *prometheus.Registry {
	return p.registry
}

// ContextFor implements MetricsProvider for PrometheusMetricsProvider.
func (p *PrometheusMetricsProvider) ContextFor(task *TaskContext, scope string) (MetricsContext, error) {
	if task == nil {
		return nil, errors.New("morph.PrometheusMetricsProvider: task context cannot be nil")
	}
	return &prometheusContext{provider: p, task: task.ID(), scope: scope}, nil
}

func (p *PrometheusMetricsProvider) counterVec(name string) *prometheus.CounterVec {
	p.mu.Lock()
	defer p.mu.Unlock()
	vec, ok := p.counters[name]
	if !ok {
		vec = promauto.With(p.registry).NewCounterVec(prometheus.CounterOpts{
			Name: sanitizeMetricName(name) + "_total",
			Help: fmt.Sprintf("Total marks on the %s counter", name),
		}, []string{"task", "converter"})
		p.counters[name] = vec
	}
	return vec
}

func (p *PrometheusMetricsProvider) histogramVec(name string) *prometheus.HistogramVec {
	p.mu.Lock()
	defer p.mu.Unlock()
	vec, ok := p.histograms[name]
	if !ok {
		vec = promauto.With(p.registry).NewHistogramVec(prometheus.HistogramOpts{
			Name: sanitizeMetricName(name) + "_seconds",
			Help: fmt.Sprintf("Duration samples recorded on the %s timer", name),
		}, []string{"task", "converter"})
		p.histograms[name] = vec
	}
	return vec
}

type prometheusContext struct {
	provider *PrometheusMetricsProvider
	task     string
	scope    string
}

func (c *prometheusContext) NewCounter(name string) Counter {
	return &prometheusCounter{
		counter: c.provider.counterVec(name).WithLabelValues(c.task, c.scope),
	}
}

func (c *prometheusContext) NewTimer(name string) Timer {
	return &prometheusTimer{
		observer: c.provider.histogramVec(name).WithLabelValues(c.task, c.scope),
	}
}

// Close implements MetricsContext. The vectors stay registered so the scrape
// endpoint keeps serving final task values.
func (c *prometheusContext) Close() error { return nil }

// prometheusCounter forwards marks to Prometheus and keeps a local reading,
// since Prometheus counters do not expose their value.
type prometheusCounter struct {
	registryCounter
	counter prometheus.Counter
}

func (c *prometheusCounter) Mark() {
	c.registryCounter.Mark()
	c.counter.Inc()
}

func (c *prometheusCounter) MarkN(n int64) {
	c.registryCounter.MarkN(n)
	c.counter.Add(float64(n))
}

type prometheusTimer struct {
	registryTimer
	observer prometheus.Observer
}

func (t *prometheusTimer) Update(d time.Duration) {
	t.registryTimer.Update(d)
	t.observer.Observe(d.Seconds())
}

// InfluxDBMetricsProvider implements MetricsProvider for InfluxDB. Each mark
// and duration sample is written as one point through the non-blocking write
// API; instrument readings are kept locally.
type InfluxDBMetricsProvider struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	endpoint string
}

// Ensure InfluxDBMetricsProvider implements MetricsProvider.
var _ MetricsProvider = (*InfluxDBMetricsProvider)(nil)

// NewInfluxDBMetricsProvider creates a provider writing to the given endpoint.
func NewInfluxDBMetricsProvider(endpoint string) *InfluxDBMetricsProvider {
	client := influxdb2.NewClient(endpoint, "")
	return &InfluxDBMetricsProvider{
		client:   client,
		writeAPI: client.WriteAPI("", "morph"),
		endpoint: endpoint,
	}
}

// ContextFor implements MetricsProvider for InfluxDBMetricsProvider.
func (p *InfluxDBMetricsProvider) ContextFor(task *TaskContext, scope string) (MetricsContext, error) {
	if task == nil {
		return nil, errors.New("morph.InfluxDBMetricsProvider: task context cannot be nil")
	}
	return &influxContext{
		provider: p,
		tags:     map[string]string{"task": task.ID(), "converter": scope},
	}, nil
}

// Close flushes pending points and closes the client.
func (p *InfluxDBMetricsProvider) Close() error {
	p.writeAPI.Flush()
	p.client.Close()
	return nil
}

func (p *InfluxDBMetricsProvider) writePoint(
	measurement string,
	tags map[string]string,
	fields map[string]any,
) {
	pt := influxdb2.NewPoint(measurement, tags, fields, time.Now())
	p.writeAPI.WritePoint(pt)
}

type influxContext struct {
	provider *InfluxDBMetricsProvider
	tags     map[string]string
}

func (c *influxContext) NewCounter(name string) Counter {
	return &influxCounter{context: c, name: name}
}

func (c *influxContext) NewTimer(name string) Timer {
	return &influxTimer{context: c, name: name}
}

// Close flushes what this context's instruments wrote.
func (c *influxContext) Close() error {
	c.provider.writeAPI.Flush()
	return nil
}

type influxCounter struct {
	registryCounter
	context *influxContext
	name    string
}

func (c *influxCounter) Mark() { c.MarkN(1) }

func (c *influxCounter) MarkN(n int64) {
	c.registryCounter.MarkN(n)
	c.context.provider.writePoint(sanitizeMetricName(c.name), c.context.tags, map[string]any{"count": n})
}

type influxTimer struct {
	registryTimer
	context *influxContext
	name    string
}

func (t *influxTimer) Update(d time.Duration) {
	t.registryTimer.Update(d)
	t.context.provider.writePoint(sanitizeMetricName(t.name), t.context.tags,
		map[string]any{"duration_seconds": d.Seconds()})
}

// MongoDBMetricsProvider implements MetricsProvider for MongoDB. Each mark
// and duration sample is inserted as one document.
type MongoDBMetricsProvider struct {
	client     *mongo.Client
	collection *mongo.Collection
	endpoint   string
}

// Ensure MongoDBMetricsProvider implements MetricsProvider.
var _ MetricsProvider = (*MongoDBMetricsProvider)(nil)

// ContextFor implements MetricsProvider for MongoDBMetricsProvider.
func (p *MongoDBMetricsProvider) ContextFor(task *TaskContext, scope string) (MetricsContext, error) {
	if task == nil {
		return nil, errors.New("morph.MongoDBMetricsProvider: task context cannot be nil")
	}
	return &mongoContext{provider: p, task: task.ID(), scope: scope}, nil
}

// Close disconnects the MongoDB client.
func (p *MongoDBMetricsProvider) Close() error {
	return p.client.Disconnect(context.Background())
}

func (p *MongoDBMetricsProvider) insertMetric(metric, task, scope string, data map[string]any) {
	doc := bson.M{
		"timestamp": time.Now(),
		"metric":    metric,
		"task":      task,
		"converter": scope,
		"data":      data,
	}

	_, err := p.collection.InsertOne(context.Background(), doc)
	if err != nil {
		log.Printf("Failed to insert metric to MongoDB: %v", err)
	}
}

type mongoContext struct {
	provider *MongoDBMetricsProvider
	task     string
	scope    string
}

func (c *mongoContext) NewCounter(name string) Counter {
	return &mongoCounter{context: c, name: name}
}

func (c *mongoContext) NewTimer(name string) Timer {
	return &mongoTimer{context: c, name: name}
}

func (c *mongoContext) Close() error { return nil }

type mongoCounter struct {
	registryCounter
	context *mongoContext
	name    string
}

func (c *mongoCounter) Mark() { c.MarkN(1) }

func (c *mongoCounter) MarkN(n int64) {
	c.registryCounter.MarkN(n)
	c.context.provider.insertMetric(c.name, c.context.task, c.context.scope, map[string]any{"count": n})
}

type mongoTimer struct {
	registryTimer
	context *mongoContext
	name    string
}

func (t *mongoTimer) Update(d time.Duration) {
	t.registryTimer.Update(d)
	t.context.provider.insertMetric(t.name, t.context.task, t.context.scope,
		map[string]any{"duration_seconds": d.Seconds()})
}

// LoggingMetricsProvider prints every instrument mutation to a logger.
// This serves as a development/testing implementation and shows the data a
// real backend would receive.
type LoggingMetricsProvider struct {
	logger *log.Logger
}

// Ensure LoggingMetricsProvider implements MetricsProvider.
var _ MetricsProvider = (*LoggingMetricsProvider)(nil)

// NewLoggingMetricsProvider creates a provider logging to the given logger.
func NewLoggingMetricsProvider(logger *log.Logger) *LoggingMetricsProvider {
	if logger == nil {
		logger = log.Default()
	}
	return &LoggingMetricsProvider{logger: logger}
}

// ContextFor implements MetricsProvider for LoggingMetricsProvider.
func (p *LoggingMetricsProvider) ContextFor(task *TaskContext, scope string) (MetricsContext, error) {
	if task == nil {
		return nil, errors.New("morph.LoggingMetricsProvider: task context cannot be nil")
	}
	return &loggingContext{logger: p.logger, task: task.ID(), scope: scope}, nil
}

type loggingContext struct {
	logger *log.Logger
	task   string
	scope  string
}

func (c *loggingContext) NewCounter(name string) Counter {
	return &loggingCounter{context: c, name: name}
}

func (c *loggingContext) NewTimer(name string) Timer {
	return &loggingTimer{context: c, name: name}
}

func (c *loggingContext) Close() error {
	c.logger.Printf("METRICS: context closed task=%s converter=%s", c.task, c.scope)
	return nil
}

type loggingCounter struct {
	registryCounter
	context *loggingContext
	name    string
}

func (c *loggingCounter) Mark() { c.MarkN(1) }

func (c *loggingCounter) MarkN(n int64) {
	c.registryCounter.MarkN(n)
	c.context.logger.Printf("METRICS: counter %s task=%s converter=%s +%d (total %d)",
		c.name, c.context.task, c.context.scope, n, c.Count())
}

type loggingTimer struct {
	registryTimer
	context *loggingContext
	name    string
}

func (t *loggingTimer) Update(d time.Duration) {
	t.registryTimer.Update(d)
	t.context.logger.Printf("METRICS: timer %s task=%s converter=%s sample=%s (samples %d)",
		t.name, t.context.task, t.context.scope, d, t.Count())
}
