// Package observe provides application-wide observability primitives for
// the commentary orchestrator: OpenTelemetry metrics, distributed tracing,
// and trace-aware structured logging. It contains no HTTP middleware;
// HTTPRequestDuration is an instrument only, and nothing in this package
// records into it.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all commentator metrics.
const meterName = "github.com/MrWong99/commentator"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// DetectDuration tracks event-detection LLM call latency.
	DetectDuration metric.Float64Histogram

	// DecideDuration tracks decision-engine scoring latency.
	DecideDuration metric.Float64Histogram

	// GenerateDuration tracks comment-generation latency (selector + writer calls).
	GenerateDuration metric.Float64Histogram

	// --- Counters ---

	// EventsDetected counts detected events. Use with attribute:
	//   attribute.String("type", ...)
	EventsDetected metric.Int64Counter

	// CommentsGenerated counts successfully generated comments. Use with attribute:
	//   attribute.String("writer", ...)
	CommentsGenerated metric.Int64Counter

	// CommentsRejected counts generation attempts rejected by the selector
	// or by length bounds. Use with attribute:
	//   attribute.String("reason", ...)
	CommentsRejected metric.Int64Counter

	// DetectionJobsDropped counts detection jobs dropped for staleness.
	DetectionJobsDropped metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("stage", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveStreams tracks the number of currently running system facades.
	ActiveStreams metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds), sized
// for sub-second decision scoring up to multi-second LLM calls.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.DetectDuration, err = m.Float64Histogram("commentator.detect.duration",
		metric.WithDescription("Latency of event-detection LLM calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DecideDuration, err = m.Float64Histogram("commentator.decide.duration",
		metric.WithDescription("Latency of decision-engine scoring."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.GenerateDuration, err = m.Float64Histogram("commentator.generate.duration",
		metric.WithDescription("Latency of comment generation (selector + writer calls)."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.EventsDetected, err = m.Int64Counter("commentator.events.detected",
		metric.WithDescription("Total conversational events detected, by type."),
	); err != nil {
		return nil, err
	}
	if met.CommentsGenerated, err = m.Int64Counter("commentator.comments.generated",
		metric.WithDescription("Total comments generated, by writer."),
	); err != nil {
		return nil, err
	}
	if met.CommentsRejected, err = m.Int64Counter("commentator.comments.rejected",
		metric.WithDescription("Total generation attempts rejected, by reason."),
	); err != nil {
		return nil, err
	}
	if met.DetectionJobsDropped, err = m.Int64Counter("commentator.detection_jobs.dropped",
		metric.WithDescription("Total detection jobs dropped for staleness."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("commentator.provider.errors",
		metric.WithDescription("Total provider errors, by provider and pipeline stage."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveStreams, err = m.Int64UpDownCounter("commentator.active_streams",
		metric.WithDescription("Number of currently running system facades."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("commentator.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
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
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordEventDetected is a convenience method that records an events-detected
// counter increment with the standard attribute set.
func (m *Metrics) RecordEventDetected(ctx context.Context, eventType string) {
	m.EventsDetected.Add(ctx, 1, metric.WithAttributes(attribute.String("type", eventType)))
}

// RecordCommentGenerated is a convenience method that records a
// comments-generated counter increment.
func (m *Metrics) RecordCommentGenerated(ctx context.Context, writer string) {
	m.CommentsGenerated.Add(ctx, 1, metric.WithAttributes(attribute.String("writer", writer)))
}

// RecordCommentRejected is a convenience method that records a
// comments-rejected counter increment.
func (m *Metrics) RecordCommentRejected(ctx context.Context, reason string) {
	m.CommentsRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, stage string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("stage", stage),
		),
	)
}
