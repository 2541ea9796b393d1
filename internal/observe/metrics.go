// Package observe provides application-wide observability primitives for
// voxshift: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxshift metrics.
const meterName = "github.com/MrWong99/voxshift"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// STTDuration and TTSDuration time one provider call each. TTS is timed
	// until the last chunk arrives.
	STTDuration metric.Float64Histogram
	TTSDuration metric.Float64Histogram

	// UtteranceAudio is the length of each captured utterance in seconds.
	UtteranceAudio metric.Float64Histogram

	// ProviderRequests counts provider calls by provider, kind and status.
	ProviderRequests metric.Int64Counter
	// ProviderErrors counts failed provider calls by provider and kind.
	ProviderErrors metric.Int64Counter

	// Utterances counts processed utterances by outcome
	// (spoken, filtered, failed, dropped).
	Utterances metric.Int64Counter

	PlaybackBytes metric.Int64Counter

	// StateTransitions counts pipeline state changes by target state.
	StateTransitions metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes by engine and
	// target state.
	BreakerTransitions metric.Int64Counter

	// ActivePipelines is 1 while a pipeline is running.
	ActivePipelines metric.Int64UpDownCounter

	// HTTPRequestDuration times diagnostics requests by method, route and
	// status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// utteranceBuckets covers captured speech lengths in seconds.
var utteranceBuckets = []float64{
	0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.STTDuration, err = m.Float64Histogram("voxshift.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("voxshift.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.UtteranceAudio, err = m.Float64Histogram("voxshift.utterance.audio",
		metric.WithDescription("Length of captured utterances."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(utteranceBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ProviderRequests, err = m.Int64Counter("voxshift.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("voxshift.utterances",
		metric.WithDescription("Total utterances by outcome."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackBytes, err = m.Int64Counter("voxshift.playback.bytes",
		metric.WithDescription("PCM bytes written to the output device."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.StateTransitions, err = m.Int64Counter("voxshift.state.transitions",
		metric.WithDescription("Pipeline state transitions by target state."),
	); err != nil {
		return nil, err
	}

	if met.ProviderErrors, err = m.Int64Counter("voxshift.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	if met.BreakerTransitions, err = m.Int64Counter("voxshift.breaker.transitions",
		metric.WithDescription("Provider circuit breaker transitions by engine and target state."),
	); err != nil {
		return nil, err
	}

	if met.ActivePipelines, err = m.Int64UpDownCounter("voxshift.active_pipelines",
		metric.WithDescription("Number of running pipelines."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("voxshift.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordProviderRequest records a provider request counter increment with
// the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordUtterance counts one utterance with the given outcome.
func (m *Metrics) RecordUtterance(ctx context.Context, outcome string) {
	m.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordStateTransition counts one transition into state.
func (m *Metrics) RecordStateTransition(ctx context.Context, state string) {
	m.StateTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state)))
}

// RecordPlayback adds n to the playback byte counter.
func (m *Metrics) RecordPlayback(ctx context.Context, n int) {
	m.PlaybackBytes.Add(ctx, int64(n))
}

// RecordBreakerTransition counts one circuit breaker move of engine into
// state.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, engine, state string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("engine", engine),
		attribute.String("state", state),
	))
}
