package alert

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/MrWong99/vigil/internal/observe"
	"github.com/MrWong99/vigil/internal/resilience"
	"github.com/MrWong99/vigil/pkg/capture"
	"github.com/MrWong99/vigil/pkg/capture/mock"
	"github.com/MrWong99/vigil/pkg/wave"
)

var testEvent = Event{
	Channel:   "video",
	At:        time.Date(2024, 6, 1, 23, 15, 0, 0, time.UTC),
	Score:     7.5,
	EpisodeID: uuid.MustParse("7d444840-9dc0-11d1-b245-5ffdce74fad2"),
}

// ── Discord ──────────────────────────────────────────────────────────────────

type webhookCall struct {
	id, token string
	wait      bool
	params    *discordgo.WebhookParams
	attached  []byte
}

type fakeExecutor struct {
	mu    sync.Mutex
	calls []webhookCall
	err   error
}

func (f *fakeExecutor) WebhookExecute(id, token string, wait bool, data *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := webhookCall{id: id, token: token, wait: wait, params: data}
	if len(data.Files) > 0 {
		c.attached, _ = io.ReadAll(data.Files[0].Reader)
	}
	f.calls = append(f.calls, c)
	if f.err != nil {
		return nil, f.err
	}
	return &discordgo.Message{ID: "1"}, nil
}

func TestNewDiscord_RequiresCredentials(t *testing.T) {
	t.Parallel()
	if _, err := NewDiscord("", "tok"); err == nil {
		t.Error("expected error for empty id")
	}
	if _, err := NewDiscord("1", ""); err == nil {
		t.Error("expected error for empty token")
	}
	d, err := NewDiscord("1", "tok")
	if err != nil {
		t.Fatalf("NewDiscord: %v", err)
	}
	if _, ok := d.exec.(*discordgo.Session); !ok {
		t.Errorf("default executor = %T, want *discordgo.Session", d.exec)
	}
}

func TestDiscord_PostsEmbed(t *testing.T) {
	t.Parallel()
	exec := &fakeExecutor{}
	d, err := NewDiscord("123", "secret", WithExecutor(exec), WithUsername("front door"))
	if err != nil {
		t.Fatalf("NewDiscord: %v", err)
	}
	if err := d.Alert(context.Background(), testEvent); err != nil {
		t.Fatalf("Alert: %v", err)
	}

	if len(exec.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(exec.calls))
	}
	c := exec.calls[0]
	if c.id != "123" || c.token != "secret" || !c.wait {
		t.Errorf("call = %+v", c)
	}
	if c.params.Username != "front door" {
		t.Errorf("username = %q", c.params.Username)
	}
	if len(c.params.Files) != 0 {
		t.Errorf("unexpected attachment without snapshot")
	}
	embed := c.params.Embeds[0]
	if !strings.Contains(embed.Title, "video") {
		t.Errorf("title = %q", embed.Title)
	}
	if embed.Timestamp != "2024-06-01T23:15:00Z" {
		t.Errorf("timestamp = %q", embed.Timestamp)
	}
	if embed.Fields[0].Value != "Video" || embed.Fields[1].Value != "7.50" {
		t.Errorf("fields = %q, %q", embed.Fields[0].Value, embed.Fields[1].Value)
	}
	if embed.Image != nil {
		t.Error("embed image set without snapshot")
	}
}

func TestBuildEmbed_MaxDeviation(t *testing.T) {
	t.Parallel()
	ev := testEvent
	ev.Score = 0.21
	ev.MaxDeviation = 210
	fields := buildEmbed(ev).Fields
	if len(fields) != 4 || fields[2].Name != "Max deviation" || fields[2].Value != "210.00" {
		t.Errorf("fields = %+v", fields)
	}
	if fields[3].Name != "Episode" {
		t.Errorf("last field = %q, want Episode", fields[3].Name)
	}
}

func TestDiscord_AttachesSnapshot(t *testing.T) {
	t.Parallel()
	exec := &fakeExecutor{}
	d, _ := NewDiscord("1", "t", WithExecutor(exec))

	ev := testEvent
	ev.Snapshot = []byte{0xFF, 0xD8, 0xFF, 0xD9}
	if err := d.Alert(context.Background(), ev); err != nil {
		t.Fatalf("Alert: %v", err)
	}
	c := exec.calls[0]
	if len(c.params.Files) != 1 || c.params.Files[0].Name != "snapshot.jpg" {
		t.Fatalf("files = %+v", c.params.Files)
	}
	if !bytes.Equal(c.attached, ev.Snapshot) {
		t.Errorf("attachment = %x, want %x", c.attached, ev.Snapshot)
	}
	if img := c.params.Embeds[0].Image; img == nil || img.URL != "attachment://snapshot.jpg" {
		t.Errorf("embed image = %+v", img)
	}
}

func TestDiscord_WrapsError(t *testing.T) {
	t.Parallel()
	errHTTP := errors.New("HTTP 404 Not Found")
	d, _ := NewDiscord("1", "t", WithExecutor(&fakeExecutor{err: errHTTP}))
	if err := d.Alert(context.Background(), testEvent); !errors.Is(err, errHTTP) {
		t.Errorf("got %v, want wrapped errHTTP", err)
	}
}

// ── Log ──────────────────────────────────────────────────────────────────────

func TestLog_WritesStructuredLine(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := NewLog(slog.New(slog.NewTextHandler(&buf, nil)))
	if err := l.Alert(context.Background(), testEvent); err != nil {
		t.Fatalf("Alert: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"level=WARN", "channel=video", "score=7.5", testEvent.EpisodeID.String()} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %q: %s", want, out)
		}
	}
}

// ── Chime ────────────────────────────────────────────────────────────────────

func writeChime(t *testing.T, f wave.Format, payload []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chime.wav")
	w, err := wave.Create(path, f)
	if err != nil {
		t.Fatalf("wave.Create: %v", err)
	}
	if _, err := w.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return path
}

func TestChime_PlaysClip(t *testing.T) {
	t.Parallel()
	payload := bytes.Repeat([]byte{10, 250}, 100)
	path := writeChime(t, capture.MicFormat, payload)
	sp := &mock.Speaker{}

	c, err := NewChime(path, sp)
	if err != nil {
		t.Fatalf("NewChime: %v", err)
	}
	if c.Len() != len(payload) || c.Format() != capture.MicFormat {
		t.Errorf("clip = %d bytes %v", c.Len(), c.Format())
	}
	for range 2 {
		if err := c.Alert(context.Background(), testEvent); err != nil {
			t.Fatalf("Alert: %v", err)
		}
	}

	calls := sp.Calls()
	if len(calls) != 2 {
		t.Fatalf("Play calls = %d, want 2", len(calls))
	}
	if !bytes.Equal(calls[1].Buf, payload) || calls[1].Format != capture.MicFormat {
		t.Errorf("played %d bytes as %v", len(calls[1].Buf), calls[1].Format)
	}
}

func TestChime_Errors(t *testing.T) {
	t.Parallel()
	if _, err := NewChime(filepath.Join(t.TempDir(), "missing.wav"), &mock.Speaker{}); err == nil {
		t.Error("expected error for missing clip")
	}

	errSpeaker := errors.New("speaker unplugged")
	c, err := NewChime(writeChime(t, capture.MicFormat, []byte{128}), &mock.Speaker{PlayError: errSpeaker})
	if err != nil {
		t.Fatalf("NewChime: %v", err)
	}
	if err := c.Alert(context.Background(), testEvent); !errors.Is(err, errSpeaker) {
		t.Errorf("got %v, want errSpeaker", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Alert(ctx, testEvent); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

// ── Fanout ───────────────────────────────────────────────────────────────────

func newTestMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// alertCounts sums vigil.alerts by "alerter/status".
func alertCounts(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "vigil.alerts" {
				continue
			}
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				a, _ := dp.Attributes.Value(attribute.Key("alerter"))
				s, _ := dp.Attributes.Value(attribute.Key("status"))
				out[a.AsString()+"/"+s.AsString()] += dp.Value
			}
		}
	}
	return out
}

func TestFanout_DeliversToAllAndJoinsErrors(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	f := NewFanout(WithMetrics(m))

	var okCalls atomic.Int32
	errBoom := errors.New("boom")
	f.Add("ok", Func(func(context.Context, Event) error { okCalls.Add(1); return nil }))
	f.Add("broken", Func(func(context.Context, Event) error { return errBoom }))

	err := f.Alert(context.Background(), testEvent)
	if !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want errBoom", err)
	}
	if !strings.Contains(err.Error(), "alert broken") {
		t.Errorf("error should name the alerter: %v", err)
	}
	if okCalls.Load() != 1 {
		t.Errorf("ok alerter calls = %d, want 1", okCalls.Load())
	}
	if got := f.Names(); len(got) != 2 || got[0] != "ok" || got[1] != "broken" {
		t.Errorf("Names = %v", got)
	}

	counts := alertCounts(t, reader)
	if counts["ok/ok"] != 1 || counts["broken/error"] != 1 {
		t.Errorf("alert counts = %v", counts)
	}
}

func TestFanout_BreakerSkipsFailingAlerter(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	f := NewFanout(WithMetrics(m), WithBreaker(resilience.CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour}))

	var calls atomic.Int32
	f.Add("discord", Func(func(context.Context, Event) error {
		calls.Add(1)
		return errors.New("503")
	}))

	for range 5 {
		_ = f.Alert(context.Background(), testEvent)
	}
	if calls.Load() != 2 {
		t.Errorf("alerter calls = %d, want 2 before the breaker opened", calls.Load())
	}
	err := f.Alert(context.Background(), testEvent)
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}

	counts := alertCounts(t, reader)
	if counts["discord/error"] != 2 || counts["discord/skipped"] != 4 {
		t.Errorf("alert counts = %v", counts)
	}
}

func TestFanout_EmptyIsNoop(t *testing.T) {
	t.Parallel()
	f := NewFanout()
	if err := f.Alert(context.Background(), testEvent); err != nil {
		t.Errorf("Alert: %v", err)
	}
	f.Dispatch(context.Background(), testEvent)
	if err := f.Wait(context.Background()); err != nil {
		t.Errorf("Wait: %v", err)
	}
}

func TestFanout_DispatchSurvivesCallerCancel(t *testing.T) {
	t.Parallel()
	m, _ := newTestMetrics(t)
	f := NewFanout(WithMetrics(m))

	release := make(chan struct{})
	delivered := make(chan Event, 1)
	f.Add("slow", Func(func(ctx context.Context, ev Event) error {
		<-release
		if err := ctx.Err(); err != nil {
			return err
		}
		delivered <- ev
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	f.Dispatch(ctx, testEvent)
	cancel()
	close(release)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	if err := f.Wait(waitCtx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	select {
	case ev := <-delivered:
		if ev.EpisodeID != testEvent.EpisodeID {
			t.Errorf("delivered %v", ev.EpisodeID)
		}
	default:
		t.Fatal("alert was not delivered after caller cancelled")
	}
}

func TestFanout_WaitHonoursContext(t *testing.T) {
	t.Parallel()
	m, _ := newTestMetrics(t)
	f := NewFanout(WithMetrics(m))
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	f.Add("stuck", Func(func(context.Context, Event) error { <-block; return nil }))

	f.Dispatch(context.Background(), testEvent)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := f.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait = %v, want DeadlineExceeded", err)
	}
}

func TestFanout_RecordsSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })

	m, _ := newTestMetrics(t)
	f := NewFanout(WithMetrics(m))
	f.Add("log", NewLog(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err := f.Alert(context.Background(), testEvent); err != nil {
		t.Fatalf("Alert: %v", err)
	}

	byName := map[string]tracetest.SpanStub{}
	for _, s := range exp.GetSpans() {
		byName[s.Name] = s
	}
	fan, ok := byName[observe.SpanAlertFanout]
	if !ok {
		t.Fatalf("spans = %v, want %s", byName, observe.SpanAlertFanout)
	}
	deliver, ok := byName[observe.AlertSpan("log")]
	if !ok {
		t.Fatalf("spans = %v, want alert.log", byName)
	}
	if deliver.Parent.SpanID() != fan.SpanContext.SpanID() {
		t.Error("alert.log is not a child of alert.fanout")
	}
	for _, s := range []tracetest.SpanStub{fan, deliver} {
		var channel, episode string
		for _, kv := range s.Attributes {
			switch kv.Key {
			case observe.KeyChannel:
				channel = kv.Value.AsString()
			case observe.KeyEpisodeID:
				episode = kv.Value.AsString()
			}
		}
		if channel != "video" || episode != testEvent.EpisodeID.String() {
			t.Errorf("%s: channel=%q episode=%q", s.Name, channel, episode)
		}
	}
}

func TestFanout_FailedDeliverySpanStatus(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })

	m, _ := newTestMetrics(t)
	f := NewFanout(WithMetrics(m))
	f.Add("discord", Func(func(context.Context, Event) error { return errors.New("429 too many requests") }))
	if err := f.Alert(context.Background(), testEvent); err == nil {
		t.Fatal("expected delivery error")
	}

	for _, s := range exp.GetSpans() {
		switch s.Name {
		case observe.AlertSpan("discord"):
			if s.Status.Code != codes.Error || s.Status.Description != "error" {
				t.Errorf("alert.discord status = %+v", s.Status)
			}
		case observe.SpanAlertFanout:
			if s.Status.Code != codes.Error {
				t.Errorf("alert.fanout status = %+v", s.Status)
			}
		}
	}
}
