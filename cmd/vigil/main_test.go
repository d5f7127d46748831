package main

import (
	"log/slog"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/MrWong99/vigil/internal/config"
)

func TestTruncate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short", "data", "data"},
		{"exact", "0123456789012345678", "0123456789012345678"},
		{"ascii cut", "/var/lib/vigil/evidence", "/var/lib/vigil/evi…"},
		{"multibyte cut", "/srv/überwachung/aufnahmen", "/srv/überwachung/a…"},
		{"all multibyte", strings.Repeat("ä", 22), strings.Repeat("ä", 18) + "…"},
	}
	for _, tc := range tests {
		got := truncate(tc.in, 19)
		if got != tc.want {
			t.Errorf("%s: truncate(%q) = %q, want %q", tc.name, tc.in, got, tc.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("%s: truncate produced invalid UTF-8 %q", tc.name, got)
		}
		if n := utf8.RuneCountInString(got); n > 19 {
			t.Errorf("%s: %d runes, want <= 19", tc.name, n)
		}
	}
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()
	tests := map[config.LogLevel]slog.Level{
		config.LogDebug: slog.LevelDebug,
		config.LogInfo:  slog.LevelInfo,
		config.LogWarn:  slog.LevelWarn,
		config.LogError: slog.LevelError,
		"":              slog.LevelInfo,
	}
	for in, want := range tests {
		if got := slogLevel(in); got != want {
			t.Errorf("slogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestResourceAttrs(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Storage.Root = "/srv/vigil"
	cfg.Journal.PostgresDSN = "postgres://localhost/vigil"

	got := map[string]string{}
	for _, kv := range resourceAttrs(cfg) {
		got[string(kv.Key)] = kv.Value.AsString()
	}
	if got["vigil.journal"] != "postgres" || got["vigil.storage.root"] != "/srv/vigil" {
		t.Errorf("attrs = %v", got)
	}
	if got["vigil.camera.kind"] != cfg.Video.Camera.Kind || got["vigil.microphone.kind"] != cfg.Audio.Microphone.Kind {
		t.Errorf("device kinds = %v", got)
	}
}
