package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"shockstudy/internal/config"
)

const (
	ServiceName    = "shockstudy"
	ServiceVersion = "1.0.0"
	MeterName      = "shockstudy"
)

// OTelProviders holds the OpenTelemetry providers and the private Prometheus
// registry the meter exports into.
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	Registry       *prometheus.Registry
	Metrics        *PipelineMetrics
	Logger         *slog.Logger
}

// PipelineMetrics are the instruments recorded by stages
type PipelineMetrics struct {
	StageDuration    metric.Float64Histogram
	StageRuns        metric.Int64Counter
	TickersProcessed metric.Int64Counter
	TickersSkipped   metric.Int64Counter
	FitsDegraded     metric.Int64Counter
	ProviderRequests metric.Int64Counter
}

// InitializeOTel sets up tracing and metrics. Disabled signals fall back to
// no-op providers so callers never need nil checks.
func InitializeOTel(cfg config.TelemetryConfig, logger *slog.Logger) (*OTelProviders, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ctx := context.Background()

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(ServiceName),
		semconv.ServiceVersion(ServiceVersion),
	)

	var err error
	providers := &OTelProviders{
		Tracer:   tracenoop.NewTracerProvider().Tracer(MeterName),
		Meter:    metricnoop.NewMeterProvider().Meter(MeterName),
		Registry: prometheus.NewRegistry(),
		Logger:   logger,
	}

	if cfg.EnableTracing {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		providers.TracerProvider = tp
		providers.Tracer = tp.Tracer(MeterName, trace.WithInstrumentationVersion(ServiceVersion))
	}

	if cfg.EnableMetrics {
		providers.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		exporter, err := otelprom.New(otelprom.WithRegisterer(providers.Registry))
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		)
		providers.MeterProvider = mp
		providers.Meter = mp.Meter(MeterName, metric.WithInstrumentationVersion(ServiceVersion))
	}

	providers.Metrics, err = CreatePipelineMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline metrics: %w", err)
	}

	logger.DebugContext(ctx, "telemetry initialized",
		slog.Bool("tracing_enabled", cfg.EnableTracing),
		slog.Bool("metrics_enabled", cfg.EnableMetrics))

	return providers, nil
}

// CreatePipelineMetrics creates the stage and ticker instruments
func CreatePipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	stageDuration, err := meter.Float64Histogram(
		"stage_duration_seconds",
		metric.WithDescription("Stage execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	stageRuns, err := meter.Int64Counter(
		"stage_runs_total",
		metric.WithDescription("Total number of stage executions by outcome"),
	)
	if err != nil {
		return nil, err
	}

	processed, err := meter.Int64Counter(
		"tickers_processed_total",
		metric.WithDescription("Tickers that produced a result"),
	)
	if err != nil {
		return nil, err
	}

	skipped, err := meter.Int64Counter(
		"tickers_skipped_total",
		metric.WithDescription("Tickers skipped for insufficient data"),
	)
	if err != nil {
		return nil, err
	}

	degraded, err := meter.Int64Counter(
		"volatility_fits_degraded_total",
		metric.WithDescription("Volatility fits that fell back to the sample standard deviation"),
	)
	if err != nil {
		return nil, err
	}

	requests, err := meter.Int64Counter(
		"provider_requests_total",
		metric.WithDescription("Market-data provider requests by outcome"),
	)
	if err != nil {
		return nil, err
	}

	return &PipelineMetrics{
		StageDuration:    stageDuration,
		StageRuns:        stageRuns,
		TickersProcessed: processed,
		TickersSkipped:   skipped,
		FitsDegraded:     degraded,
		ProviderRequests: requests,
	}, nil
}

// RecordStage records one stage execution
func (m *PipelineMetrics) RecordStage(ctx context.Context, stage string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	attrs := metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("outcome", outcome),
	)
	m.StageDuration.Record(ctx, duration.Seconds(), attrs)
	m.StageRuns.Add(ctx, 1, attrs)
}

// RecordTickers records processed and skipped ticker counts for a stage
func (m *PipelineMetrics) RecordTickers(ctx context.Context, stage string, processed, skipped int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("stage", stage))
	m.TickersProcessed.Add(ctx, int64(processed), attrs)
	m.TickersSkipped.Add(ctx, int64(skipped), attrs)
}

// RecordDegraded counts volatility fits that used the fallback estimator
func (m *PipelineMetrics) RecordDegraded(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.FitsDegraded.Add(ctx, int64(n))
}

// RecordProviderRequest counts one market-data request
func (m *PipelineMetrics) RecordProviderRequest(ctx context.Context, endpoint string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("outcome", outcome),
	))
}

// StartStageSpan starts a span for a stage
func (p *OTelProviders) StartStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return p.Tracer.Start(ctx, "stage."+stage,
		trace.WithAttributes(attribute.String("stage", stage), attribute.String("run_id", GetRunID(ctx))))
}

// EndSpan records err on the span, if any, and ends it
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// MetricsHandler serves the private registry in Prometheus text format
func (p *OTelProviders) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{})
}

// WriteMetricsTextfile writes the registry for the node-exporter textfile collector
func (p *OTelProviders) WriteMetricsTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, p.Registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Shutdown flushes and stops the providers
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	var errs []error
	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider: %w", err))
		}
	}
	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}
