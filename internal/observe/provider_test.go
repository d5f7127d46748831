package observe

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

func TestInitProvider_ExportsVigilMetrics(t *testing.T) {
	origMP, origTP := otel.GetMeterProvider(), otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(origMP)
		otel.SetTracerProvider(origTP)
	})

	reg := prometheus.NewRegistry()
	shutdown, err := InitProvider(context.Background(), ProviderConfig{
		ServiceVersion: "test",
		Instance:       "front-door",
		Attributes:     []attribute.KeyValue{attribute.String("vigil.journal", "memory")},
		Registerer:     reg,
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordActivation(context.Background(), "video")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var activations, instance, journal bool
	for _, f := range families {
		if strings.HasPrefix(f.GetName(), "vigil_alarm_activations") {
			activations = true
		}
		if f.GetName() != "target_info" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, l := range metric.GetLabel() {
				switch l.GetValue() {
				case "front-door":
					instance = true
				case "memory":
					journal = true
				}
			}
		}
	}
	if !activations {
		t.Error("activation counter not exported to the registry")
	}
	if !instance || !journal {
		t.Errorf("target_info missing resource labels: instance=%v journal=%v", instance, journal)
	}

	ctx, span := StartEpisodeSpan(context.Background(), SpanActivate, "video", uuid.New())
	if CorrelationID(ctx) == "" {
		t.Error("global tracer provider not installed")
	}
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}
