package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/CodeMonkeyCybersecurity/idorenum/internal/config"
	"github.com/CodeMonkeyCybersecurity/idorenum/internal/core"
)

type telemetry struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider

	probeCounter     metric.Int64Counter
	duplicateCounter metric.Int64Counter
}

// New installs global tracer and meter providers exporting over OTLP/HTTP. Disabled config returns a noop.
func New(ctx context.Context, cfg config.TelemetryConfig, version string) (core.Telemetry, error) {
	if !cfg.Enabled {
		return &noopTelemetry{}, nil
	}

	traceExporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	metricExporter, err := otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(cfg.Endpoint),
		otlpmetrichttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	t, err := newTelemetry(ctx, cfg, version,
		sdktrace.NewBatchSpanProcessor(traceExporter),
		sdkmetric.NewPeriodicReader(metricExporter),
	)
	if err != nil {
		return nil, err
	}

	otel.SetTracerProvider(t.tracerProvider)
	otel.SetMeterProvider(t.meterProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return t, nil
}

func newTelemetry(ctx context.Context, cfg config.TelemetryConfig, version string, spans sdktrace.SpanProcessor, reader sdkmetric.Reader) (*telemetry, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRate)),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(spans),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)

	meter := mp.Meter(cfg.ServiceName)

	probeCounter, err := meter.Int64Counter("idorenum.probes.total",
		metric.WithDescription("Total number of enumerated indexes"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	duplicateCounter, err := meter.Int64Counter("idorenum.probes.duplicate",
		metric.WithDescription("Responses whose body matched an earlier index"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &telemetry{
		tracerProvider:   tp,
		meterProvider:    mp,
		probeCounter:     probeCounter,
		duplicateCounter: duplicateCounter,
	}, nil
}

func (t *telemetry) RecordProbe(ctx context.Context, statusCode int, duplicate bool) {
	attrs := metric.WithAttributes(attribute.Int("http.status_code", statusCode))

	t.probeCounter.Add(ctx, 1, attrs)
	if duplicate {
		t.duplicateCounter.Add(ctx, 1, attrs)
	}
}

// Close flushes pending spans and metrics.
func (t *telemetry) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(
		t.tracerProvider.Shutdown(ctx),
		t.meterProvider.Shutdown(ctx),
	)
}

type noopTelemetry struct{}

func (n *noopTelemetry) RecordProbe(ctx context.Context, statusCode int, duplicate bool) {}
func (n *noopTelemetry) Close() error                                                    { return nil }
