package monitor

import (
	"time"

	"github.com/MrWong99/vigil/internal/config"
)

// Settings is a partial update of the runtime toggles. Nil fields are left
// unchanged.
type Settings struct {
	VideoEnabled *bool `json:"video_enabled,omitempty"`
	AudioEnabled *bool `json:"audio_enabled,omitempty"`
	VideoAlert   *bool `json:"video_alert,omitempty"`
	AudioAlert   *bool `json:"audio_alert,omitempty"`
	Echo         *bool `json:"echo,omitempty"`
}

// Empty reports whether s changes nothing.
func (s Settings) Empty() bool {
	return s.VideoEnabled == nil && s.AudioEnabled == nil &&
		s.VideoAlert == nil && s.AudioAlert == nil && s.Echo == nil
}

// Merge returns s overlaid with the non-nil fields of next.
func (s Settings) Merge(next Settings) Settings {
	if next.VideoEnabled != nil {
		s.VideoEnabled = next.VideoEnabled
	}
	if next.AudioEnabled != nil {
		s.AudioEnabled = next.AudioEnabled
	}
	if next.VideoAlert != nil {
		s.VideoAlert = next.VideoAlert
	}
	if next.AudioAlert != nil {
		s.AudioAlert = next.AudioAlert
	}
	if next.Echo != nil {
		s.Echo = next.Echo
	}
	return s
}

// SettingsFromDiff converts the hot-reloadable part of a config diff.
func SettingsFromDiff(d config.ConfigDiff) Settings {
	var s Settings
	if d.Video.EnabledChanged {
		s.VideoEnabled = boolPtr(d.Video.NewEnabled)
	}
	if d.Video.AlertChanged {
		s.VideoAlert = boolPtr(d.Video.NewAlert)
	}
	if d.Audio.EnabledChanged {
		s.AudioEnabled = boolPtr(d.Audio.NewEnabled)
	}
	if d.Audio.AlertChanged {
		s.AudioAlert = boolPtr(d.Audio.NewAlert)
	}
	if d.EchoChanged {
		s.Echo = boolPtr(d.NewEcho)
	}
	return s
}

// Config holds the fixed tuning of a [Monitor]. Use [ConfigFrom] to derive it
// from the daemon configuration.
type Config struct {
	VideoInterval time.Duration
	AudioInterval time.Duration
	VideoCadence  time.Duration
	AudioCadence  time.Duration
	VideoCap      int
	AudioCap      int

	MaxDeviation    float64
	MeanDeviation   float64
	EnergyThreshold float64

	// Initial toggles.
	VideoEnabled bool
	AudioEnabled bool
	VideoAlert   bool
	AudioAlert   bool
	Echo         bool
}

// ConfigFrom extracts the monitor tuning from cfg.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		VideoInterval:   cfg.Video.Interval.Std(),
		AudioInterval:   cfg.Audio.Interval.Std(),
		VideoCadence:    cfg.Video.Cadence.Std(),
		AudioCadence:    cfg.Audio.Cadence.Std(),
		VideoCap:        cfg.Video.Cap,
		AudioCap:        cfg.Audio.Cap,
		MaxDeviation:    cfg.Video.MaxDeviation,
		MeanDeviation:   cfg.Video.MeanDeviation,
		EnergyThreshold: cfg.Audio.EnergyThreshold,
		VideoEnabled:    cfg.Video.Enabled,
		AudioEnabled:    cfg.Audio.Enabled,
		VideoAlert:      cfg.Video.Alert,
		AudioAlert:      cfg.Audio.Alert,
		Echo:            cfg.Audio.Echo,
	}
}

// withDefaults fills zero durations and caps.
func (c Config) withDefaults() Config {
	if c.VideoInterval <= 0 {
		c.VideoInterval = config.DefaultInterval.Std()
	}
	if c.AudioInterval <= 0 {
		c.AudioInterval = config.DefaultInterval.Std()
	}
	if c.VideoCadence <= 0 {
		c.VideoCadence = config.DefaultCadence.Std()
	}
	if c.AudioCadence <= 0 {
		c.AudioCadence = config.DefaultCadence.Std()
	}
	if c.VideoCap <= 0 {
		c.VideoCap = config.DefaultCap
	}
	if c.AudioCap <= 0 {
		c.AudioCap = config.DefaultCap
	}
	if c.MaxDeviation == 0 && c.MeanDeviation == 0 {
		c.MaxDeviation, c.MeanDeviation = config.DefaultMaxDeviation, config.DefaultMeanDeviation
	}
	if c.EnergyThreshold == 0 {
		c.EnergyThreshold = config.DefaultEnergyThreshold
	}
	return c
}

func boolPtr(b bool) *bool { return &b }
