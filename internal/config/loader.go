package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr      = ":8080"
	DefaultStorageRoot     = "data"
	DefaultInterval        = Duration(250 * time.Millisecond)
	DefaultCadence         = Duration(500 * time.Millisecond)
	DefaultCap             = 5
	DefaultMaxDeviation    = 200.0
	DefaultMeanDeviation   = 5.0
	DefaultEnergyThreshold = 2.0
	DefaultCameraTimeout   = Duration(2 * time.Second)
	DefaultRecentLimit     = 100
)

// ValidCameraKinds and ValidMicrophoneKinds list the kinds [Validate]
// accepts. They mirror the factories registered by [NewDefaultRegistry].
var (
	ValidCameraKinds     = []string{CameraHTTP, CameraMock}
	ValidMicrophoneKinds = []string{MicrophoneWAV, MicrophoneMock}
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills in defaults and
// validates the result. An empty document yields the default config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config with every default applied and both channels
// disabled.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields of cfg with their defaults.
// Booleans are left untouched.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Storage.Root == "" {
		cfg.Storage.Root = DefaultStorageRoot
	}

	v := &cfg.Video
	if v.Interval == 0 {
		v.Interval = DefaultInterval
	}
	if v.Cadence == 0 {
		v.Cadence = DefaultCadence
	}
	if v.Cap == 0 {
		v.Cap = DefaultCap
	}
	if v.MaxDeviation == 0 {
		v.MaxDeviation = DefaultMaxDeviation
	}
	if v.MeanDeviation == 0 {
		v.MeanDeviation = DefaultMeanDeviation
	}
	if v.Camera.Kind == "" {
		v.Camera.Kind = CameraMock
	}
	if v.Camera.Timeout == 0 {
		v.Camera.Timeout = DefaultCameraTimeout
	}

	a := &cfg.Audio
	if a.Interval == 0 {
		a.Interval = DefaultInterval
	}
	if a.Cadence == 0 {
		a.Cadence = DefaultCadence
	}
	if a.Cap == 0 {
		a.Cap = DefaultCap
	}
	if a.EnergyThreshold == 0 {
		a.EnergyThreshold = DefaultEnergyThreshold
	}
	if a.Microphone.Kind == "" {
		a.Microphone.Kind = MicrophoneMock
	}

	if cfg.Journal.RecentLimit == 0 {
		cfg.Journal.RecentLimit = DefaultRecentLimit
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	errs = append(errs, validateChannel("video", cfg.Video.Interval, cfg.Video.Cadence, cfg.Video.Cap)...)
	errs = append(errs, validateChannel("audio", cfg.Audio.Interval, cfg.Audio.Cadence, cfg.Audio.Cap)...)

	if cfg.Video.MaxDeviation < 0 {
		errs = append(errs, fmt.Errorf("video.max_deviation %.2f must not be negative", cfg.Video.MaxDeviation))
	}
	if cfg.Video.MeanDeviation < 0 {
		errs = append(errs, fmt.Errorf("video.mean_deviation %.2f must not be negative", cfg.Video.MeanDeviation))
	}
	if cfg.Audio.EnergyThreshold < 0 {
		errs = append(errs, fmt.Errorf("audio.energy_threshold %.2f must not be negative", cfg.Audio.EnergyThreshold))
	}

	cam := cfg.Video.Camera
	if cam.Kind != "" && !slices.Contains(ValidCameraKinds, cam.Kind) {
		errs = append(errs, fmt.Errorf("video.camera.kind %q is invalid; valid values: %s", cam.Kind, strings.Join(ValidCameraKinds, ", ")))
	}
	if cam.Kind == CameraHTTP {
		if cam.URL == "" {
			errs = append(errs, errors.New("video.camera.url is required when kind is http"))
		} else if u, err := url.Parse(cam.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Errorf("video.camera.url %q must be an http(s) URL", cam.URL))
		}
	}
	if cam.Timeout < 0 {
		errs = append(errs, fmt.Errorf("video.camera.timeout %s must not be negative", cam.Timeout))
	}

	mic := cfg.Audio.Microphone
	if mic.Kind != "" && !slices.Contains(ValidMicrophoneKinds, mic.Kind) {
		errs = append(errs, fmt.Errorf("audio.microphone.kind %q is invalid; valid values: %s", mic.Kind, strings.Join(ValidMicrophoneKinds, ", ")))
	}
	if mic.Kind == MicrophoneWAV && mic.Path == "" {
		errs = append(errs, errors.New("audio.microphone.path is required when kind is wav"))
	}

	if cfg.Alert.DiscordWebhook != "" {
		if _, _, err := cfg.Alert.DiscordWebhookCredentials(); err != nil {
			errs = append(errs, err)
		}
	}

	if cfg.Journal.RecentLimit < 0 {
		errs = append(errs, fmt.Errorf("journal.recent_limit %d must not be negative", cfg.Journal.RecentLimit))
	}

	return errors.Join(errs...)
}

func validateChannel(prefix string, interval, cadence Duration, capTicks int) []error {
	var errs []error
	if interval <= 0 {
		errs = append(errs, fmt.Errorf("%s.interval %s must be positive", prefix, interval))
	}
	if cadence <= 0 {
		errs = append(errs, fmt.Errorf("%s.cadence %s must be positive", prefix, cadence))
	}
	if capTicks < 1 {
		errs = append(errs, fmt.Errorf("%s.cap %d must be at least 1", prefix, capTicks))
	}
	return errs
}

// DiscordWebhookCredentials splits DiscordWebhook into the webhook id and
// token. The URL must look like https://discord.com/api/webhooks/{id}/{token}.
func (a AlertConfig) DiscordWebhookCredentials() (id, token string, err error) {
	u, err := url.Parse(a.DiscordWebhook)
	if err != nil {
		return "", "", fmt.Errorf("alert.discord_webhook: %w", err)
	}
	if u.Scheme != "https" || u.Host == "" {
		return "", "", fmt.Errorf("alert.discord_webhook %q must be an https URL", a.DiscordWebhook)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	i := slices.Index(parts, "webhooks")
	if i < 0 || len(parts) != i+3 || parts[i+1] == "" || parts[i+2] == "" {
		return "", "", fmt.Errorf("alert.discord_webhook %q must end in /webhooks/{id}/{token}", a.DiscordWebhook)
	}
	return parts[i+1], parts[i+2], nil
}
