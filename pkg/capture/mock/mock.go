// Package mock provides in-memory implementations of [capture.Camera],
// [capture.Microphone] and [capture.Speaker] for unit tests.
//
// All mocks are safe for concurrent use. They record call counts and expose
// exported fields that tests set to control return values.
//
//	cam := &mock.Camera{Frames: []*capture.Frame{f1, f2}}
//	mic := &mock.Microphone{}
//	mic.Start(ctx, cb)
//	mic.Push(buf) // invokes cb synchronously
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/vigil/pkg/capture"
	"github.com/MrWong99/vigil/pkg/wave"
)

var (
	_ capture.Camera     = (*Camera)(nil)
	_ capture.Microphone = (*Microphone)(nil)
	_ capture.Speaker    = (*Speaker)(nil)
)

// ─── Camera ──────────────────────────────────────────────────────────────────

// Camera returns Frames in order, repeating the last one once exhausted.
type Camera struct {
	mu sync.Mutex

	// Frames are returned by successive GrabFrame calls.
	Frames []*capture.Frame

	// GrabError, when non-nil, is returned by GrabFrame instead of a frame.
	GrabError error

	// StartError is returned by Start.
	StartError error

	CallCountStart     int
	CallCountStop      int
	CallCountGrabFrame int

	next int
}

// Start implements [capture.Camera].
func (c *Camera) Start(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountStart++
	return c.StartError
}

// Stop implements [capture.Camera].
func (c *Camera) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountStop++
	return nil
}

// GrabFrame implements [capture.Camera]. Each call returns a clone so the
// caller may keep it.
func (c *Camera) GrabFrame(context.Context) (*capture.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountGrabFrame++
	if c.GrabError != nil {
		return nil, c.GrabError
	}
	if len(c.Frames) == 0 {
		return capture.NewFrame(1, 1), nil
	}
	f := c.Frames[min(c.next, len(c.Frames)-1)]
	c.next++
	return f.Clone(), nil
}

// SetFrames replaces the frame queue and rewinds it.
func (c *Camera) SetFrames(frames ...*capture.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Frames = frames
	c.next = 0
}

// ─── Microphone ──────────────────────────────────────────────────────────────

// Microphone delivers buffers only when the test calls [Microphone.Push].
type Microphone struct {
	mu sync.Mutex

	// StartError is returned by Start.
	StartError error

	CallCountStart int
	CallCountStop  int

	fn      func([]byte)
	enabled bool
}

// Start implements [capture.Microphone].
func (m *Microphone) Start(_ context.Context, fn func([]byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCountStart++
	if m.StartError != nil {
		return m.StartError
	}
	m.fn = fn
	m.enabled = true
	return nil
}

// Stop implements [capture.Microphone].
func (m *Microphone) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCountStop++
	m.fn = nil
	m.enabled = false
	return nil
}

// Enabled implements [capture.Microphone].
func (m *Microphone) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// Push hands buf to the registered callback. It reports false when the
// microphone is stopped.
func (m *Microphone) Push(buf []byte) bool {
	m.mu.Lock()
	fn := m.fn
	m.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(buf)
	return true
}

// ─── Speaker ─────────────────────────────────────────────────────────────────

// PlayCall records the arguments of one Play call.
type PlayCall struct {
	Buf    []byte
	Format wave.Format
}

// Speaker records everything it is asked to play.
type Speaker struct {
	mu sync.Mutex

	// PlayError is returned by Play.
	PlayError error

	PlayCalls []PlayCall
}

// Play implements [capture.Speaker].
func (s *Speaker) Play(buf []byte, f wave.Format) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PlayCalls = append(s.PlayCalls, PlayCall{Buf: append([]byte(nil), buf...), Format: f})
	return s.PlayError
}

// Calls returns a copy of the recorded Play calls.
func (s *Speaker) Calls() []PlayCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PlayCall(nil), s.PlayCalls...)
}
