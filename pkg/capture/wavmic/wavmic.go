// Package wavmic implements [capture.Microphone] by replaying a WAVE file.
//
// The file is decoded once with package wave, converted to the microphone
// format (8 kHz, mono, 8-bit unsigned) and delivered in
// [capture.BufferSize]-byte buffers at real-time cadence, one buffer every
// 50 ms. With looping enabled playback wraps around; otherwise the
// microphone stops itself at the end of the file.
package wavmic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/vigil/pkg/capture"
	"github.com/MrWong99/vigil/pkg/wave"
)

var _ capture.Microphone = (*Microphone)(nil)

// ErrAlreadyStarted is returned by Start on a running microphone.
var ErrAlreadyStarted = errors.New("wavmic: already started")

// Option configures a Microphone.
type Option func(*Microphone)

// WithLoop makes playback wrap around at the end of the file.
func WithLoop(loop bool) Option {
	return func(m *Microphone) { m.loop = loop }
}

// WithInterval overrides the delay between buffers. The default is the
// real-time duration of one buffer.
func WithInterval(d time.Duration) Option {
	return func(m *Microphone) { m.interval = d }
}

// Microphone replays a WAVE file as microphone input.
type Microphone struct {
	path     string
	loop     bool
	interval time.Duration

	mu      sync.Mutex
	pcm     []byte // converted payload, loaded on first Start
	cancel  context.CancelFunc
	done    chan struct{}
	enabled bool
}

// New returns a microphone that replays path. The file is read on Start.
func New(path string, opts ...Option) *Microphone {
	m := &Microphone{
		path:     path,
		interval: capture.MicFormat.Duration(capture.BufferSize),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Start decodes the file if needed and begins delivering buffers to fn.
func (m *Microphone) Start(ctx context.Context, fn func(buf []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.enabled {
		return ErrAlreadyStarted
	}
	if m.pcm == nil {
		pcm, err := load(m.path)
		if err != nil {
			return err
		}
		m.pcm = pcm
	}

	if m.cancel != nil {
		m.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.enabled = true
	go m.run(ctx, m.pcm, fn, m.done)
	return nil
}

func (m *Microphone) run(ctx context.Context, pcm []byte, fn func([]byte), done chan struct{}) {
	defer close(done)
	defer func() {
		m.mu.Lock()
		if m.done == done {
			m.enabled = false
		}
		m.mu.Unlock()
	}()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	buf := make([]byte, capture.BufferSize)
	var off int
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		n := copy(buf, pcm[off:])
		off += n
		if n < len(buf) {
			if !m.loop {
				// Pad the final partial buffer with silence.
				for i := n; i < len(buf); i++ {
					buf[i] = 128
				}
				fn(buf)
				slog.Debug("wavmic: end of file", "path", m.path)
				return
			}
			for n < len(buf) {
				off = copy(buf[n:], pcm)
				n += off
			}
		}
		fn(buf)
		if !m.loop && off >= len(pcm) {
			slog.Debug("wavmic: end of file", "path", m.path)
			return
		}
	}
}

// Stop halts delivery and waits until the callback has returned for the last
// time. Stopping a stopped microphone is a no-op.
func (m *Microphone) Stop() error {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.enabled = false
	m.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Enabled reports whether buffers are being delivered.
func (m *Microphone) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// load reads the whole audio payload of path and converts it to the
// microphone format.
func load(path string) ([]byte, error) {
	r, err := wave.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wavmic: %w", err)
	}
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("wavmic: read %s: %w", path, err)
	}
	if r.Format() == capture.MicFormat {
		if len(raw) == 0 {
			return nil, fmt.Errorf("wavmic: %s has no audio", path)
		}
		return raw, nil
	}

	slog.Info("wavmic: converting source",
		"path", path,
		"from", r.Format().String(),
		"to", capture.MicFormat.String(),
	)
	pcm, err := toMic8(raw, r.Format(), capture.MicFormat.SampleRate)
	if err != nil {
		return nil, err
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("wavmic: %s has no audio", path)
	}
	return pcm, nil
}
