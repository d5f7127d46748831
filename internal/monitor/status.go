package monitor

import "time"

// ChannelStatus is the observable state of one channel.
type ChannelStatus struct {
	Enabled bool   `json:"enabled"`
	Alert   bool   `json:"alert"`
	State   string `json:"state"`

	// Blink toggles on every cadence tick while Active, for UI indicators.
	Blink   bool `json:"blink"`
	Counter int  `json:"counter"`

	// Score is the latest energy (audio) or mean deviation (video).
	Score float64 `json:"score"`

	EpisodeID   string    `json:"episode_id,omitempty"`
	Clips       int       `json:"clips"`
	LastTrigger time.Time `json:"last_trigger,omitzero"`
}

// Status is a point-in-time view of the monitor.
type Status struct {
	Video ChannelStatus `json:"video"`
	Audio ChannelStatus `json:"audio"`

	// Level is the 0–100 meter reading of the latest audio buffer.
	Level int `json:"level"`

	Echo       bool   `json:"echo"`
	Camera     bool   `json:"camera"`
	Microphone bool   `json:"microphone"`
	Recording  bool   `json:"recording"`
	SoundPath  string `json:"sound_path,omitempty"`

	// DroppedBuffers counts microphone buffers lost to a full queue.
	DroppedBuffers int64     `json:"dropped_buffers"`
	At             time.Time `json:"at"`
}

func (c *channel) status() ChannelStatus {
	s := ChannelStatus{
		Enabled:     c.enabled,
		Alert:       c.alert,
		State:       c.machine.State().String(),
		Blink:       c.machine.Blink(),
		Counter:     c.machine.Counter(),
		Score:       c.score,
		Clips:       c.clips,
		LastTrigger: c.lastTrigger,
	}
	if c.episode != nil {
		s.EpisodeID = c.episode.ID.String()
	}
	return s
}

// updateStatus rebuilds the snapshot from loop-owned state and publishes it.
// Only the loop (or New, before the loop exists) may call it.
func (m *Monitor) updateStatus() {
	st := Status{
		Video:          m.video.status(),
		Audio:          m.audio.status(),
		Level:          m.level,
		Echo:           m.echo,
		Camera:         m.camStarted,
		Recording:      m.rec.Recording(),
		SoundPath:      m.rec.SoundPath(),
		DroppedBuffers: m.dropped.Load(),
		At:             m.now(),
	}
	if m.mic != nil {
		st.Microphone = m.mic.Enabled()
	}

	m.statusMu.Lock()
	m.status = st
	m.statusMu.Unlock()

	if m.publisher != nil {
		m.publisher.Publish(st)
	}
}
