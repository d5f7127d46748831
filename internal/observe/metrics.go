// Package observe provides application-wide observability primitives for
// vigil: OpenTelemetry metrics, tracing, trace-aware logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported to
// Prometheus by [InitProvider], so they can be scraped from /metrics. A
// package-level [DefaultMetrics] instance is provided for convenience; tests
// should use [NewMetrics] with their own [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all vigil metrics.
const meterName = "github.com/MrWong99/vigil"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Detection ---

	// DetectionTicks counts detection ticks. Use with attribute:
	//   attribute.String("channel", ...)
	DetectionTicks metric.Int64Counter

	// AudioEnergy records the energy of each judged microphone buffer.
	AudioEnergy metric.Float64Histogram

	// VideoMeanDeviation records the mean pixel deviation of each compared frame.
	VideoMeanDeviation metric.Float64Histogram

	// --- Alarm ---

	// AlarmActivations counts Idle→Active edges by channel.
	AlarmActivations metric.Int64Counter

	// AlarmActive tracks the number of channels currently in an episode.
	AlarmActive metric.Int64UpDownCounter

	// EpisodeDuration tracks wall-clock episode length by channel.
	EpisodeDuration metric.Float64Histogram

	// --- Evidence ---

	// ClipsWritten counts evidence files by channel.
	ClipsWritten metric.Int64Counter

	// CodecErrors counts recorder failures by channel.
	CodecErrors metric.Int64Counter

	// Alerts counts alert deliveries. Use with attributes:
	//   attribute.String("alerter", ...), attribute.String("status", ...)
	Alerts metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...),
	//   attribute.Int("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// energyBuckets covers 0 to the maximum energy of a 400-byte buffer (~200).
var energyBuckets = []float64{0.5, 1, 2, 4, 8, 16, 32, 64, 128, 200}

// deviationBuckets covers pixel deviations 0 to 255.
var deviationBuckets = []float64{0.5, 1, 2, 5, 10, 20, 50, 100, 200, 255}

// episodeBuckets in seconds; a default episode lasts about 3 s.
var episodeBuckets = []float64{1, 2, 3, 4, 5, 10, 30, 60}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.DetectionTicks, err = m.Int64Counter("vigil.detection.ticks",
		metric.WithDescription("Detection ticks by channel."),
	); err != nil {
		return nil, err
	}
	if met.AlarmActivations, err = m.Int64Counter("vigil.alarm.activations",
		metric.WithDescription("Alarm episodes started by channel."),
	); err != nil {
		return nil, err
	}
	if met.ClipsWritten, err = m.Int64Counter("vigil.clips.written",
		metric.WithDescription("Evidence files written by channel."),
	); err != nil {
		return nil, err
	}
	if met.CodecErrors, err = m.Int64Counter("vigil.codec.errors",
		metric.WithDescription("Recorder and codec failures by channel."),
	); err != nil {
		return nil, err
	}
	if met.Alerts, err = m.Int64Counter("vigil.alerts",
		metric.WithDescription("Alert deliveries by alerter and status."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.AlarmActive, err = m.Int64UpDownCounter("vigil.alarm.active",
		metric.WithDescription("Number of channels currently in an alarm episode."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.AudioEnergy, err = m.Float64Histogram("vigil.audio.energy",
		metric.WithDescription("Energy of judged microphone buffers."),
		metric.WithExplicitBucketBoundaries(energyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.VideoMeanDeviation, err = m.Float64Histogram("vigil.video.mean_deviation",
		metric.WithDescription("Mean per-pixel deviation between consecutive frames."),
		metric.WithExplicitBucketBoundaries(deviationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EpisodeDuration, err = m.Float64Histogram("vigil.episode.duration",
		metric.WithDescription("Wall-clock length of alarm episodes."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(episodeBuckets...),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("vigil.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails.
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

func channelAttr(channel string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("channel", channel))
}

// RecordTick counts one detection tick on channel.
func (m *Metrics) RecordTick(ctx context.Context, channel string) {
	m.DetectionTicks.Add(ctx, 1, channelAttr(channel))
}

// RecordActivation counts an Idle→Active edge and raises the active gauge.
func (m *Metrics) RecordActivation(ctx context.Context, channel string) {
	m.AlarmActivations.Add(ctx, 1, channelAttr(channel))
	m.AlarmActive.Add(ctx, 1, channelAttr(channel))
}

// RecordEpisodeEnd lowers the active gauge and records the episode length.
func (m *Metrics) RecordEpisodeEnd(ctx context.Context, channel string, seconds float64) {
	m.AlarmActive.Add(ctx, -1, channelAttr(channel))
	m.EpisodeDuration.Record(ctx, seconds, channelAttr(channel))
}

// RecordClip counts one evidence file written on channel.
func (m *Metrics) RecordClip(ctx context.Context, channel string) {
	m.ClipsWritten.Add(ctx, 1, channelAttr(channel))
}

// RecordCodecError counts one recorder failure on channel.
func (m *Metrics) RecordCodecError(ctx context.Context, channel string) {
	m.CodecErrors.Add(ctx, 1, channelAttr(channel))
}

// RecordAlert counts one alert delivery attempt.
func (m *Metrics) RecordAlert(ctx context.Context, alerter, status string) {
	m.Alerts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("alerter", alerter),
			attribute.String("status", status),
		),
	)
}
