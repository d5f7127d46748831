// Package monitor is the scheduler that drives detection, alarm and
// recording for the video and audio channels.
//
// A single goroutine ([Monitor.Run]) owns every piece of mutable state: the
// detectors, the two alarm machines, the recorder and the open journal
// episodes. Timers, microphone buffers and setting changes all arrive on
// channels and are handled one at a time, so a channel's detection, decision
// and recording never overlap. Other goroutines observe the monitor through
// [Monitor.Snapshot] and change it through the setters.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/vigil/internal/alarm"
	"github.com/MrWong99/vigil/internal/alert"
	"github.com/MrWong99/vigil/internal/detect"
	"github.com/MrWong99/vigil/internal/journal"
	"github.com/MrWong99/vigil/internal/observe"
	"github.com/MrWong99/vigil/internal/recorder"
	"github.com/MrWong99/vigil/pkg/capture"
)

// Channel names used in logs, metrics, journal rows and alerts.
const (
	ChannelVideo = "video"
	ChannelAudio = "audio"
)

const (
	bufferQueue    = 16
	journalTimeout = 2 * time.Second
)

// Dispatcher sends alerts without blocking the caller. [*alert.Fanout]
// satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev alert.Event)
}

// Publisher receives a [Status] after every scheduler step. It must not
// block. [*live.Hub] satisfies it.
type Publisher interface {
	Publish(v any)
}

// Option configures a [Monitor].
type Option func(*Monitor)

// WithCamera sets the video source. Without one the video channel stays idle.
func WithCamera(c capture.Camera) Option { return func(m *Monitor) { m.camera = c } }

// WithMicrophone sets the audio source. Without one the audio channel stays idle.
func WithMicrophone(mic capture.Microphone) Option { return func(m *Monitor) { m.mic = mic } }

// WithSpeaker sets the echo sink.
func WithSpeaker(s capture.Speaker) Option { return func(m *Monitor) { m.speaker = s } }

// WithRecorder sets the evidence recorder. Default: a recorder rooted at "data".
func WithRecorder(r *recorder.Recorder) Option { return func(m *Monitor) { m.rec = r } }

// WithJournal sets the episode store. Default: an in-memory ring.
func WithJournal(s journal.Store) Option { return func(m *Monitor) { m.journal = s } }

// WithDispatcher sets the alert sink.
func WithDispatcher(d Dispatcher) Option { return func(m *Monitor) { m.alerts = d } }

// WithPublisher sets the status sink.
func WithPublisher(p Publisher) Option { return func(m *Monitor) { m.publisher = p } }

// WithMetrics sets the metrics sink. Default [observe.DefaultMetrics].
func WithMetrics(mt *observe.Metrics) Option { return func(m *Monitor) { m.metrics = mt } }

// WithClock overrides time.Now for timestamps (not for tickers).
func WithClock(now func() time.Time) Option { return func(m *Monitor) { m.now = now } }

// WithLogger sets the logger. Default [slog.Default].
func WithLogger(l *slog.Logger) Option { return func(m *Monitor) { m.log = l } }

// channel is the per-channel state owned by the loop.
type channel struct {
	name    string
	enabled bool
	alert   bool
	machine *alarm.Machine
	cadence time.Duration
	ticker  *time.Ticker

	episode     *journal.Episode
	peak        float64
	peakMax     float64 // video only
	clips       int
	score       float64
	lastTrigger time.Time
}

// tickC returns the cadence channel, or nil while Idle so the select skips it.
func (c *channel) tickC() <-chan time.Time {
	if c.ticker == nil {
		return nil
	}
	return c.ticker.C
}

// Monitor schedules detection for both channels. Create it with [New] and
// start it with [Monitor.Run].
type Monitor struct {
	cfg Config

	camera    capture.Camera
	mic       capture.Microphone
	speaker   capture.Speaker
	rec       *recorder.Recorder
	journal   journal.Store
	alerts    Dispatcher
	publisher Publisher
	metrics   *observe.Metrics
	now       func() time.Time
	log       *slog.Logger

	// Loop-owned state.
	video      *channel
	audio      *channel
	detector   *detect.VideoDetector
	camStarted bool
	echo       bool
	energy     float64
	level      int
	lastFrame  *capture.Frame

	buffers   chan []byte
	dropped   atomic.Int64
	settingsC chan struct{}

	pendingMu sync.Mutex
	pending   Settings

	statusMu sync.RWMutex
	status   Status
}

// New returns a monitor with the given tuning. Zero durations and caps fall
// back to the configuration defaults.
func New(cfg Config, opts ...Option) *Monitor {
	cfg = cfg.withDefaults()
	m := &Monitor{
		cfg:       cfg,
		now:       time.Now,
		log:       slog.Default(),
		buffers:   make(chan []byte, bufferQueue),
		settingsC: make(chan struct{}, 1),
		echo:      cfg.Echo,
		detector: detect.NewVideoDetector(detect.VideoThresholds{
			Max:  cfg.MaxDeviation,
			Mean: cfg.MeanDeviation,
		}),
	}
	m.video = &channel{
		name:    ChannelVideo,
		enabled: cfg.VideoEnabled,
		alert:   cfg.VideoAlert,
		machine: alarm.New(alarm.WithName(ChannelVideo), alarm.WithCap(cfg.VideoCap)),
		cadence: cfg.VideoCadence,
	}
	m.audio = &channel{
		name:    ChannelAudio,
		enabled: cfg.AudioEnabled,
		alert:   cfg.AudioAlert,
		machine: alarm.New(alarm.WithName(ChannelAudio), alarm.WithCap(cfg.AudioCap)),
		cadence: cfg.AudioCadence,
	}
	for _, o := range opts {
		o(m)
	}
	if m.rec == nil {
		m.rec = recorder.New(recorder.Layout{Root: "data"}, recorder.WithLogger(m.log))
	}
	if m.journal == nil {
		m.journal = journal.NewMemory(0)
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	m.updateStatus()
	return m
}

// Apply queues a settings change for the loop. It never blocks; changes
// applied before the loop picks them up are merged.
func (m *Monitor) Apply(s Settings) {
	if s.Empty() {
		return
	}
	m.pendingMu.Lock()
	m.pending = m.pending.Merge(s)
	m.pendingMu.Unlock()
	select {
	case m.settingsC <- struct{}{}:
	default:
	}
}

// SetVideoEnabled turns the video channel on or off.
func (m *Monitor) SetVideoEnabled(on bool) { m.Apply(Settings{VideoEnabled: &on}) }

// SetAudioEnabled turns the audio channel on or off.
func (m *Monitor) SetAudioEnabled(on bool) { m.Apply(Settings{AudioEnabled: &on}) }

// SetVideoAlert toggles external alerts for video episodes.
func (m *Monitor) SetVideoAlert(on bool) { m.Apply(Settings{VideoAlert: &on}) }

// SetAudioAlert toggles external alerts for audio episodes.
func (m *Monitor) SetAudioAlert(on bool) { m.Apply(Settings{AudioAlert: &on}) }

// SetEcho toggles playing captured audio to the speaker.
func (m *Monitor) SetEcho(on bool) { m.Apply(Settings{Echo: &on}) }

// Snapshot returns the status published after the latest step. It is safe
// for concurrent use.
func (m *Monitor) Snapshot() Status {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	return m.status
}

// onBuffer is the microphone callback. It copies buf and hands it to the loop
// without blocking; a full queue drops the buffer.
func (m *Monitor) onBuffer(buf []byte) {
	b := append([]byte(nil), buf...)
	select {
	case m.buffers <- b:
	default:
		m.dropped.Add(1)
	}
}
