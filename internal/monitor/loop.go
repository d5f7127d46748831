package monitor

import (
	"bytes"
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/vigil/internal/alert"
	"github.com/MrWong99/vigil/internal/detect"
	"github.com/MrWong99/vigil/internal/journal"
	"github.com/MrWong99/vigil/internal/observe"
	"github.com/MrWong99/vigil/internal/recorder"
	"github.com/MrWong99/vigil/pkg/capture"
)

// Run drives both channels until ctx is cancelled. On return the microphone
// and camera are stopped, open episodes are closed and any open WAVE file is
// finalised. Run must be called at most once.
func (m *Monitor) Run(ctx context.Context) error {
	videoT := time.NewTicker(m.cfg.VideoInterval)
	defer videoT.Stop()
	audioT := time.NewTicker(m.cfg.AudioInterval)
	defer audioT.Stop()

	m.log.Info("monitor: started",
		"video", m.video.enabled,
		"audio", m.audio.enabled,
		"video_interval", m.cfg.VideoInterval,
		"audio_interval", m.cfg.AudioInterval,
	)

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			m.log.Info("monitor: stopped")
			return nil
		case <-videoT.C:
			m.stepVideo(ctx)
		case <-audioT.C:
			m.stepAudio(ctx)
		case <-m.video.tickC():
			m.stepCadence(ctx, m.video)
		case <-m.audio.tickC():
			m.stepCadence(ctx, m.audio)
		case buf := <-m.buffers:
			m.handleBuffer(ctx, buf)
		case <-m.settingsC:
			m.applyPending(ctx)
		}
		m.updateStatus()
	}
}

// stepVideo grabs a frame, scores it and feeds the video machine. While the
// machine is Active every frame is saved.
func (m *Monitor) stepVideo(ctx context.Context) {
	v := m.video
	if !v.enabled || m.camera == nil {
		return
	}
	if !m.camStarted {
		if err := m.camera.Start(ctx); err != nil {
			m.log.Warn("monitor: camera start failed", "err", err)
			return
		}
		m.camStarted = true
	}

	frame, err := m.camera.GrabFrame(ctx)
	if err != nil {
		m.log.Debug("monitor: grab frame failed", "err", err)
		return
	}
	m.lastFrame = frame

	score, hit := m.detector.Observe(frame)
	m.metrics.RecordTick(ctx, ChannelVideo)
	m.metrics.VideoMeanDeviation.Record(ctx, score.Mean)
	v.score = score.Mean

	if v.machine.Observe(hit) {
		m.activate(ctx, v, score.Mean, score.Max, frame)
	} else if v.machine.Active() {
		v.peak = max(v.peak, score.Mean)
		v.peakMax = max(v.peakMax, score.Max)
	}

	if v.machine.Active() {
		if _, err := m.rec.SaveFrame(frame); err != nil {
			m.metrics.RecordCodecError(ctx, ChannelVideo)
			m.log.Warn("monitor: save frame failed", "err", err)
		} else {
			v.clips++
			m.metrics.RecordClip(ctx, ChannelVideo)
		}
	}
}

// stepAudio judges the energy of the latest buffer. It starts the microphone
// on the first tick after the channel was enabled.
func (m *Monitor) stepAudio(ctx context.Context) {
	a := m.audio
	if !a.enabled || m.mic == nil {
		return
	}
	if !m.mic.Enabled() {
		if err := m.mic.Start(ctx, m.onBuffer); err != nil {
			m.log.Warn("monitor: microphone start failed", "err", err)
			return
		}
		m.log.Info("monitor: microphone started")
	}

	e := m.energy
	m.metrics.RecordTick(ctx, ChannelAudio)
	m.metrics.AudioEnergy.Record(ctx, e)
	a.score = e

	if a.machine.Observe(detect.EnergyTriggered(e, m.cfg.EnergyThreshold)) {
		m.activate(ctx, a, e, 0, nil)
		if _, err := m.rec.StartSound(); err != nil {
			m.metrics.RecordCodecError(ctx, ChannelAudio)
			m.log.Warn("monitor: start sound failed", "err", err)
		} else {
			a.clips++
			m.metrics.RecordClip(ctx, ChannelAudio)
		}
	} else if a.machine.Active() {
		a.peak = max(a.peak, e)
	}
}

// handleBuffer echoes, meters and (while Active) records one microphone buffer.
func (m *Monitor) handleBuffer(ctx context.Context, buf []byte) {
	if !m.audio.enabled {
		return
	}
	if m.echo && m.speaker != nil {
		if err := m.speaker.Play(buf, capture.MicFormat); err != nil {
			m.log.Debug("monitor: echo failed", "err", err)
		}
	}

	m.energy = detect.Energy(buf)
	m.level = detect.Level(m.energy, len(buf))

	if m.audio.machine.Active() && m.rec.Recording() {
		if err := m.rec.WriteSound(buf); err != nil {
			m.metrics.RecordCodecError(ctx, ChannelAudio)
			m.log.Warn("monitor: write sound failed, session abandoned", "err", err)
		}
	}
}

// stepCadence advances the channel's alarm and ends the episode on the
// return to Idle.
func (m *Monitor) stepCadence(ctx context.Context, c *channel) {
	if c.machine.Tick() {
		m.deactivate(ctx, c)
	}
}

// activate starts an episode: cadence ticker, journal row, metrics and
// (optionally) an alert. peakMax is the single-pixel deviation for video and
// zero for audio.
func (m *Monitor) activate(ctx context.Context, c *channel, score, peakMax float64, frame *capture.Frame) {
	now := m.now()
	ep := journal.NewEpisode(c.name, now)
	ep.Peak = score
	ep.PeakMax = peakMax
	ep.Alerted = c.alert && m.alerts != nil

	c.episode = &ep
	c.peak = score
	c.peakMax = peakMax
	c.clips = 0
	c.lastTrigger = now
	if c.ticker != nil {
		c.ticker.Stop()
	}
	c.ticker = time.NewTicker(c.cadence)

	ctx, span := observe.StartEpisodeSpan(ctx, observe.SpanActivate, c.name, ep.ID,
		attribute.Float64("vigil.score", score))
	defer span.End()

	m.metrics.RecordActivation(ctx, c.name)
	m.log.Info("monitor: alarm activated", "channel", c.name, "score", score, "max_deviation", peakMax, "episode_id", ep.ID.String())

	jctx, cancel := context.WithTimeout(ctx, journalTimeout)
	if err := m.journal.Open(jctx, ep); err != nil {
		span.RecordError(err)
		m.log.Warn("monitor: journal open failed", "channel", c.name, "err", err)
	}
	cancel()

	if ep.Alerted {
		ev := alert.Event{Channel: c.name, At: now, Score: score, MaxDeviation: peakMax, EpisodeID: ep.ID}
		if frame != nil {
			ev.Snapshot = m.snapshot(frame)
		}
		m.alerts.Dispatch(ctx, ev)
	}
}

// deactivate ends the channel's episode. It is used both for the natural
// return to Idle and for forced stops (disable, shutdown).
func (m *Monitor) deactivate(ctx context.Context, c *channel) {
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
	if c == m.audio {
		if err := m.stopSound(ctx, c.episode); err != nil {
			m.log.Warn("monitor: stop sound failed", "err", err)
		}
	}
	if c.episode == nil {
		return
	}

	ep := *c.episode
	c.episode = nil
	ended := m.now()
	seconds := ended.Sub(ep.StartedAt).Seconds()
	m.metrics.RecordEpisodeEnd(ctx, c.name, seconds)
	m.log.Info("monitor: alarm cleared",
		"channel", c.name,
		"episode_id", ep.ID.String(),
		"peak", c.peak,
		"peak_max", c.peakMax,
		"clips", c.clips,
		"duration", ended.Sub(ep.StartedAt),
	)

	jctx, cancel := context.WithTimeout(ctx, journalTimeout)
	defer cancel()
	s := journal.Summary{EndedAt: ended, Peak: c.peak, PeakMax: c.peakMax, Clips: c.clips}
	if err := m.journal.Close(jctx, ep.ID, s); err != nil {
		m.log.Warn("monitor: journal close failed", "channel", c.name, "err", err)
	}
}

// stopSound finalises the open WAVE file of the audio episode ep (nil when
// the session outlived its episode).
func (m *Monitor) stopSound(ctx context.Context, ep *journal.Episode) error {
	if !m.rec.Recording() {
		return nil
	}
	var id uuid.UUID
	if ep != nil {
		id = ep.ID
	}
	_, span := observe.StartEpisodeSpan(ctx, observe.SpanStopSound, ChannelAudio, id,
		observe.KeyPath.String(m.rec.SoundPath()))
	err := m.rec.StopSound()
	if err != nil {
		m.metrics.RecordCodecError(ctx, ChannelAudio)
	}
	observe.EndSpan(span, err, "")
	return err
}

// snapshot JPEG-encodes frame for alert attachments. Failures yield nil.
func (m *Monitor) snapshot(frame *capture.Frame) []byte {
	var buf bytes.Buffer
	if err := recorder.JPEGEncoder(recorder.DefaultJPEGQuality)(&buf, frame); err != nil {
		m.log.Debug("monitor: snapshot encode failed", "err", err)
		return nil
	}
	return buf.Bytes()
}

// applyPending takes the merged pending settings and applies them.
func (m *Monitor) applyPending(ctx context.Context) {
	m.pendingMu.Lock()
	s := m.pending
	m.pending = Settings{}
	m.pendingMu.Unlock()
	m.apply(ctx, s)
}

func (m *Monitor) apply(ctx context.Context, s Settings) {
	if s.VideoAlert != nil {
		m.video.alert = *s.VideoAlert
	}
	if s.AudioAlert != nil {
		m.audio.alert = *s.AudioAlert
	}
	if s.Echo != nil {
		m.echo = *s.Echo
	}
	if s.VideoEnabled != nil && *s.VideoEnabled != m.video.enabled {
		m.video.enabled = *s.VideoEnabled
		if !m.video.enabled {
			m.disableVideo(ctx)
		} else if m.camera == nil {
			m.log.Warn("monitor: video enabled without a camera")
		}
	}
	if s.AudioEnabled != nil && *s.AudioEnabled != m.audio.enabled {
		m.audio.enabled = *s.AudioEnabled
		if !m.audio.enabled {
			m.disableAudio(ctx)
		} else if m.mic == nil {
			m.log.Warn("monitor: audio enabled without a microphone")
		}
	}
	m.log.Info("monitor: settings applied",
		"video", m.video.enabled, "video_alert", m.video.alert,
		"audio", m.audio.enabled, "audio_alert", m.audio.alert,
		"echo", m.echo,
	)
}

func (m *Monitor) disableVideo(ctx context.Context) {
	m.deactivate(ctx, m.video)
	m.video.machine.Reset()
	m.detector.Reset()
	m.video.score = 0
	if m.camStarted {
		if err := m.camera.Stop(); err != nil {
			m.log.Warn("monitor: camera stop failed", "err", err)
		}
		m.camStarted = false
	}
}

func (m *Monitor) disableAudio(ctx context.Context) {
	if m.mic != nil && m.mic.Enabled() {
		if err := m.mic.Stop(); err != nil {
			m.log.Warn("monitor: microphone stop failed", "err", err)
		}
		m.log.Info("monitor: microphone stopped")
	}
	m.deactivate(ctx, m.audio)
	m.audio.machine.Reset()
	m.audio.score = 0
	m.energy, m.level = 0, 0
	m.drainBuffers()
}

// drainBuffers discards buffers queued before the microphone stopped.
func (m *Monitor) drainBuffers() {
	for {
		select {
		case <-m.buffers:
		default:
			return
		}
	}
}

// shutdown releases devices and finalises open sessions. The run context is
// already cancelled, so journal writes get a fresh one.
func (m *Monitor) shutdown() {
	ctx := context.Background()
	m.disableAudio(ctx)
	m.disableVideo(ctx)
	if err := m.rec.Close(); err != nil {
		m.log.Warn("monitor: recorder close failed", "err", err)
	}
	m.updateStatus()
}
