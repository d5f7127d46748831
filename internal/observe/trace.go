package observe

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/vigil"

// Span names shared by the packages that emit them and their tests.
const (
	SpanActivate    = "monitor.activate"
	SpanAlertFanout = "alert.fanout"
	SpanStopSound   = "recorder.stop_sound"
)

// Attribute keys set on vigil spans.
const (
	KeyChannel   = attribute.Key("vigil.channel")
	KeyEpisodeID = attribute.Key("vigil.episode_id")
	KeyAlerter   = attribute.Key("vigil.alerter")
	KeyPath      = attribute.Key("vigil.path")
)

// AlertSpan names the per-alerter delivery span, e.g. "alert.discord".
func AlertSpan(alerter string) string { return "alert." + alerter }

// Tracer returns the vigil tracer from the globally registered
// [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a new span and returns the updated context and span. The
// caller must call span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartEpisodeSpan starts a span tagged with the channel and alarm episode it
// works for. A zero episode id is left out.
func StartEpisodeSpan(ctx context.Context, name, channel string, episode uuid.UUID, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	kv := make([]attribute.KeyValue, 0, len(attrs)+2)
	kv = append(kv, KeyChannel.String(channel))
	if episode != uuid.Nil {
		kv = append(kv, KeyEpisodeID.String(episode.String()))
	}
	kv = append(kv, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(kv...))
}

// EndSpan marks span failed when err is non-nil and ends it. msg becomes the
// status description; an empty msg uses err's text.
func EndSpan(span trace.Span, err error, msg string) {
	if err != nil {
		if msg == "" {
			msg = err.Error()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
	}
	span.End()
}

// CorrelationID extracts the trace ID from the OTel span context in ctx.
// Returns the empty string when no active span with a valid trace ID exists.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger enriched with trace_id and span_id from
// ctx, so HTTP handler logs line up with the request span.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
