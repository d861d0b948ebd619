package telemetry

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	promclient "github.com/prometheus/client_golang/prometheus"

	"github.com/veldt-io/cirrus/types"
)

// Global telemetry handles
var (
	Tracer = otel.Tracer("github.com/veldt-io/cirrus")
	Meter  = otel.Meter("github.com/veldt-io/cirrus")

	// PrometheusRegistry for pull-based scraping; the OTEL exporter
	// registers itself here (dual export pattern).
	PrometheusRegistry *promclient.Registry

	SyncRuns         metric.Int64Counter
	SyncDuration     metric.Float64Histogram
	InstancesSynced  metric.Int64Gauge
	InstancesRetired metric.Int64Counter
	AdapterErrors    metric.Int64Counter
)

// Config for OTEL initialization
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTELEndpoint   string
	Insecure       bool
}

// InitOTEL initializes OpenTelemetry with traces and metrics
func InitOTEL(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	cfg = applyConfigDefaults(cfg)

	res, err := createOTELResource(cfg)
	if err != nil {
		return nil, err
	}

	traceShutdown, err := setupTraceProvider(ctx, cfg, res)
	if err != nil {
		return nil, fmt.Errorf("failed to setup traces: %w", err)
	}

	metricShutdown, err := setupMetricProvider(ctx, cfg, res)
	if err != nil {
		_ = traceShutdown(ctx)
		return nil, fmt.Errorf("failed to setup metrics: %w", err)
	}

	if err := initInstruments(); err != nil {
		_ = traceShutdown(ctx)
		_ = metricShutdown(ctx)
		return nil, fmt.Errorf("failed to initialize instruments: %w", err)
	}

	return func(ctx context.Context) error {
		var err error
		if e := traceShutdown(ctx); e != nil {
			err = fmt.Errorf("trace shutdown failed: %w", e)
		}
		if e := metricShutdown(ctx); e != nil && err == nil {
			err = fmt.Errorf("metric shutdown failed: %w", e)
		}
		return err
	}, nil
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.OTELEndpoint == "" {
		cfg.OTELEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "cirrus"
	}
	return cfg
}

func createOTELResource(cfg Config) (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

func setupTraceProvider(ctx context.Context, cfg Config, res *resource.Resource) (func(context.Context) error, error) {
	if cfg.OTELEndpoint == "" {
		// No collector configured; traces stay local no-ops.
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.OTELEndpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithDialOption(
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		))
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	Tracer = provider.Tracer("github.com/veldt-io/cirrus")

	return provider.Shutdown, nil
}

func setupMetricProvider(ctx context.Context, cfg Config, res *resource.Resource) (func(context.Context) error, error) {
	var readers []sdkmetric.Reader

	registry := promclient.NewRegistry()
	PrometheusRegistry = registry

	prometheusExporter, err := prometheus.New(
		prometheus.WithRegisterer(registry),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	readers = append(readers, prometheusExporter)

	if cfg.OTELEndpoint != "" {
		otlpReader, err := createOTLPReader(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metric reader: %w", err)
		}
		readers = append(readers, otlpReader)
	}

	providerOpts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
	}
	for _, reader := range readers {
		providerOpts = append(providerOpts, sdkmetric.WithReader(reader))
	}

	provider := sdkmetric.NewMeterProvider(providerOpts...)
	otel.SetMeterProvider(provider)
	Meter = provider.Meter("github.com/veldt-io/cirrus")

	return provider.Shutdown, nil
}

func createOTLPReader(ctx context.Context, cfg Config) (sdkmetric.Reader, error) {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.OTELEndpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithDialOption(
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		))
	}

	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	return sdkmetric.NewPeriodicReader(exporter,
		sdkmetric.WithInterval(10*time.Second),
	), nil
}

func initInstruments() error {
	var err error

	SyncRuns, err = Meter.Int64Counter("cirrus.sync.runs.total",
		metric.WithDescription("Total number of sync runs"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create sync_runs counter: %w", err)
	}

	SyncDuration, err = Meter.Float64Histogram("cirrus.sync.duration.seconds",
		metric.WithDescription("Duration of sync runs"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create sync_duration histogram: %w", err)
	}

	InstancesSynced, err = Meter.Int64Gauge("cirrus.instances.observed.current",
		metric.WithDescription("Instances observed in the latest sync per provider"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create instances_observed gauge: %w", err)
	}

	InstancesRetired, err = Meter.Int64Counter("cirrus.instances.retired.total",
		metric.WithDescription("Total instances transitioned to retired"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create instances_retired counter: %w", err)
	}

	AdapterErrors, err = Meter.Int64Counter("cirrus.adapter.errors.total",
		metric.WithDescription("Adapter API errors by provider and kind"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create adapter_errors counter: %w", err)
	}

	return nil
}

// RecordSyncRun records one finished run. Safe before InitOTEL: instruments
// that were never created are skipped.
func RecordSyncRun(ctx context.Context, providerID string, outcome types.SyncOutcome, duration time.Duration) {
	if SyncRuns == nil || SyncDuration == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("provider.id", providerID),
		attribute.String("outcome", string(outcome)),
	)
	SyncRuns.Add(ctx, 1, attrs)
	SyncDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordInstancesSynced records the observed and retired counts of a run.
func RecordInstancesSynced(ctx context.Context, providerID string, observed, retired int) {
	if InstancesSynced == nil || InstancesRetired == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("provider.id", providerID))
	InstancesSynced.Record(ctx, int64(observed), attrs)
	if retired > 0 {
		InstancesRetired.Add(ctx, int64(retired), attrs)
	}
}

// RecordAdapterError counts one adapter API error.
func RecordAdapterError(ctx context.Context, provider types.ProviderType, kind string) {
	if AdapterErrors == nil {
		return
	}
	AdapterErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cloud.provider", string(provider)),
		attribute.String("error.kind", kind),
	))
}
