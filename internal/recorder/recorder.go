// Package recorder persists alarm evidence: one WAVE file per audio episode
// and one JPEG per video tick, laid out by capture time (see [Layout]).
//
// A Recorder is owned by the scheduler and is not safe for concurrent use.
// At most one sound session is open at a time. Any codec error abandons the
// session: the writer is closed on a best-effort basis and the error is
// returned, so a failing disk never blocks detection.
package recorder

import (
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/MrWong99/vigil/pkg/capture"
	"github.com/MrWong99/vigil/pkg/wave"
)

// DefaultJPEGQuality is used by [JPEGEncoder].
const DefaultJPEGQuality = 90

// Encoder writes f to w in some image format.
type Encoder func(w io.Writer, f *capture.Frame) error

// JPEGEncoder returns an Encoder producing baseline JPEG at quality q.
func JPEGEncoder(q int) Encoder {
	return func(w io.Writer, f *capture.Frame) error {
		return jpeg.Encode(w, f.Image(), &jpeg.Options{Quality: q})
	}
}

// SoundWriter is the part of [*wave.Writer] a sound session uses.
type SoundWriter interface {
	Write(p []byte) (int, error)
	Length() int64
	Close() error
}

// CreateFunc opens a sound file at path in format f.
type CreateFunc func(path string, f wave.Format) (SoundWriter, error)

func createWave(path string, f wave.Format) (SoundWriter, error) {
	w, err := wave.Create(path, f)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock replaces time.Now as the source of file timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithEncoder replaces the default JPEG encoder.
func WithEncoder(enc Encoder) Option {
	return func(r *Recorder) { r.encode = enc }
}

// WithCreate replaces [wave.Create] as the sound file opener.
func WithCreate(create CreateFunc) Option {
	return func(r *Recorder) { r.create = create }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) { r.log = l }
}

// Recorder writes evidence files below a [Layout].
type Recorder struct {
	layout Layout
	now    func() time.Time
	encode Encoder
	create CreateFunc
	log    *slog.Logger

	sound     SoundWriter
	soundPath string
	soundAt   time.Time
}

// New returns a Recorder writing below layout.Root.
func New(layout Layout, opts ...Option) *Recorder {
	r := &Recorder{
		layout: layout,
		now:    time.Now,
		encode: JPEGEncoder(DefaultJPEGQuality),
		create: createWave,
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Layout returns the recorder's path layout.
func (r *Recorder) Layout() Layout { return r.layout }

// Recording reports whether a sound session is open.
func (r *Recorder) Recording() bool { return r.sound != nil }

// SoundPath returns the path of the open sound session, or "".
func (r *Recorder) SoundPath() string { return r.soundPath }

// StartSound opens a new 8 kHz mono 8-bit WAVE file. If a session is already
// open its path is returned unchanged.
func (r *Recorder) StartSound() (string, error) {
	if r.sound != nil {
		return r.soundPath, nil
	}
	at := r.now()
	path := r.layout.SoundPath(at)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("recorder: create sound dir: %w", err)
	}
	w, err := r.create(path, capture.MicFormat)
	if err != nil {
		return "", fmt.Errorf("recorder: start sound: %w", err)
	}
	r.sound, r.soundPath, r.soundAt = w, path, at
	r.log.Debug("recorder: sound session opened", "path", path)
	return path, nil
}

// WriteSound appends buf verbatim to the open session. Without a session it
// does nothing.
func (r *Recorder) WriteSound(buf []byte) error {
	if r.sound == nil {
		return nil
	}
	if _, err := r.sound.Write(buf); err != nil {
		path := r.soundPath
		r.abandon()
		return fmt.Errorf("recorder: write sound %s: %w", path, err)
	}
	return nil
}

// StopSound finalizes the open session. Without a session it does nothing.
func (r *Recorder) StopSound() error {
	if r.sound == nil {
		return nil
	}
	w, path := r.sound, r.soundPath
	length, started := w.Length(), r.soundAt
	r.sound, r.soundPath = nil, ""

	if err := w.Close(); err != nil {
		return fmt.Errorf("recorder: stop sound: %w", err)
	}
	r.log.Info("recorder: sound session closed",
		"path", path,
		"bytes", length,
		"audio", capture.MicFormat.Duration(length),
		"wall", r.now().Sub(started),
	)
	return nil
}

// abandon drops the session after a codec error. Closing still back-patches
// whatever was written, so the partial file stays readable when possible.
func (r *Recorder) abandon() {
	w, path := r.sound, r.soundPath
	r.sound, r.soundPath = nil, ""
	if err := w.Close(); err != nil {
		r.log.Warn("recorder: close abandoned session", "path", path, "err", err)
	}
}

// SaveFrame encodes f to a new image file and returns its path. A file that
// fails to encode is removed.
func (r *Recorder) SaveFrame(f *capture.Frame) (string, error) {
	if f == nil {
		return "", errors.New("recorder: save frame: nil frame")
	}
	path := r.layout.ImagePath(r.now())
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("recorder: create image dir: %w", err)
	}

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("recorder: save frame: %w", err)
	}
	if err := errors.Join(r.encode(out, f), out.Close()); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("recorder: encode %s: %w", path, err)
	}
	return path, nil
}

// Close finalizes any open sound session.
func (r *Recorder) Close() error {
	return r.StopSound()
}
