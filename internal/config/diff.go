package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be applied without a restart are tracked; everything
// else (listen address, storage root, devices, journal) needs a restart.
type ConfigDiff struct {
	Video ChannelDiff
	Audio ChannelDiff

	EchoChanged bool
	NewEcho     bool

	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired is set when a field outside the hot-reloadable set
	// changed.
	RestartRequired bool
}

// ChannelDiff describes toggle changes on one detection channel.
type ChannelDiff struct {
	EnabledChanged bool
	NewEnabled     bool
	AlertChanged   bool
	NewAlert       bool
}

// Changed reports whether any toggle of the channel changed.
func (c ChannelDiff) Changed() bool {
	return c.EnabledChanged || c.AlertChanged
}

// Empty reports whether d carries no hot-reloadable change.
func (d ConfigDiff) Empty() bool {
	return !d.Video.Changed() && !d.Audio.Changed() && !d.EchoChanged && !d.LogLevelChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{
		Video: diffChannel(old.Video.Enabled, new.Video.Enabled, old.Video.Alert, new.Video.Alert),
		Audio: diffChannel(old.Audio.Enabled, new.Audio.Enabled, old.Audio.Alert, new.Audio.Alert),
	}

	if old.Audio.Echo != new.Audio.Echo {
		d.EchoChanged = true
		d.NewEcho = new.Audio.Echo
	}
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.RestartRequired = restartFields(old) != restartFields(new)
	return d
}

func diffChannel(oldEnabled, newEnabled, oldAlert, newAlert bool) ChannelDiff {
	var c ChannelDiff
	if oldEnabled != newEnabled {
		c.EnabledChanged = true
		c.NewEnabled = newEnabled
	}
	if oldAlert != newAlert {
		c.AlertChanged = true
		c.NewAlert = newAlert
	}
	return c
}

// restartFields strips the hot-reloadable toggles so the rest compares by value.
func restartFields(c *Config) Config {
	cp := *c
	cp.Server.LogLevel = ""
	cp.Video.Enabled, cp.Video.Alert = false, false
	cp.Audio.Enabled, cp.Audio.Alert, cp.Audio.Echo = false, false, false
	return cp
}
