package observe

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig configures [InitProvider].
type ProviderConfig struct {
	// ServiceName defaults to "voxshift".
	ServiceName    string
	ServiceVersion string

	// Registerer receives the Prometheus collector of the metric exporter.
	// Nil uses prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer

	// TraceExporter receives finished spans in batches. Nil keeps spans
	// in process only, which is enough for correlation ids in logs.
	TraceExporter sdktrace.SpanExporter

	// SampleRatio is the fraction of utterance traces kept, in (0, 1].
	// Zero means 1. Child spans follow their parent's decision.
	SampleRatio float64
}

// Telemetry owns the SDK providers installed by [InitProvider].
type Telemetry struct {
	Meters  *sdkmetric.MeterProvider
	Tracers *sdktrace.TracerProvider
}

// InitProvider installs global meter and tracer providers for one voxshift
// process and the W3C trace-context propagator. Metrics are exported through
// a Prometheus collector registered on cfg.Registerer.
func InitProvider(ctx context.Context, cfg ProviderConfig) (*Telemetry, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "voxshift"
	}
	if cfg.SampleRatio < 0 || cfg.SampleRatio > 1 {
		return nil, fmt.Errorf("observe: sample ratio must be in (0, 1], got %v", cfg.SampleRatio)
	}
	if cfg.SampleRatio == 0 {
		cfg.SampleRatio = 1
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("observe: build resource: %w", err)
	}

	var expOpts []promexporter.Option
	if cfg.Registerer != nil {
		expOpts = append(expOpts, promexporter.WithRegisterer(cfg.Registerer))
	}
	exporter, err := promexporter.New(expOpts...)
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}

	t := &Telemetry{
		Meters: sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		),
	}
	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	t.Tracers = sdktrace.NewTracerProvider(tpOpts...)

	otel.SetMeterProvider(t.Meters)
	otel.SetTracerProvider(t.Tracers)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return t, nil
}

// Shutdown flushes pending spans and stops both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(t.Tracers.Shutdown(ctx), t.Meters.Shutdown(ctx))
}
