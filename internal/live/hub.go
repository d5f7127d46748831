// Package live fans the daemon's state out to browsers over websockets.
//
// A [Hub] is an [http.Handler]. Every connected client receives:
//
//   - a "hello" message on connect with the current audio format and the
//     latest status, if any
//   - a "status" message for every [Hub.Publish]
//   - an "audio" message whenever the audio format changes, followed by raw
//     PCM as binary frames for every [Hub.Play]
//
// Text messages are JSON envelopes ({"type": ..., "data": ...}). A client
// whose queue is full is disconnected instead of slowing the publisher.
package live

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/vigil/pkg/capture"
	"github.com/MrWong99/vigil/pkg/wave"
)

const (
	defaultQueueSize    = 64
	defaultWriteTimeout = 5 * time.Second
)

// Message types.
const (
	TypeHello  = "hello"
	TypeStatus = "status"
	TypeAudio  = "audio"
)

// Envelope is the JSON shape of every text frame.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// AudioFormat describes the PCM carried by binary frames.
type AudioFormat struct {
	Channels      int `json:"channels"`
	SampleRate    int `json:"sample_rate"`
	BitsPerSample int `json:"bits_per_sample"`
}

// Hello is the payload of the first message sent to a client.
type Hello struct {
	Audio  AudioFormat `json:"audio"`
	Status any         `json:"status,omitempty"`
}

func audioFormat(f wave.Format) AudioFormat {
	return AudioFormat{Channels: f.Channels, SampleRate: f.SampleRate, BitsPerSample: f.BitsPerSample}
}

// ErrClosed is returned by [Hub.Play] after [Hub.Close].
var ErrClosed = errors.New("live: hub closed")

var _ capture.Speaker = (*Hub)(nil)

type message struct {
	text   *Envelope
	binary []byte
}

type client struct {
	conn   *websocket.Conn
	queue  chan message
	cancel context.CancelFunc
}

// Option configures a [Hub].
type Option func(*Hub)

// WithQueueSize sets the per-client queue length. Default 64.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// WithOriginPatterns allows cross-origin clients whose host matches one of
// patterns (see [websocket.AcceptOptions]).
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Hub) { h.originPatterns = patterns }
}

// WithLogger sets the logger. Default [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// Hub tracks websocket clients and broadcasts to them. It is safe for
// concurrent use.
type Hub struct {
	queueSize      int
	writeTimeout   time.Duration
	originPatterns []string
	logger         *slog.Logger

	mu         sync.Mutex
	clients    map[*client]struct{}
	lastStatus any
	format     wave.Format
	closed     bool
	wg         sync.WaitGroup
}

// NewHub returns a hub with no clients. The initial audio format is
// [capture.MicFormat].
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		queueSize:    defaultQueueSize,
		writeTimeout: defaultWriteTimeout,
		logger:       slog.Default(),
		clients:      make(map[*client]struct{}),
		format:       capture.MicFormat,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// ServeHTTP upgrades the request and serves the client until it disconnects,
// is dropped, or the hub closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, "live feed shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.Debug("live: accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	// Clients only listen; CloseRead handles pings and notices the peer leaving.
	ctx, cancel := context.WithCancel(conn.CloseRead(r.Context()))
	c := &client{conn: conn, queue: make(chan message, h.queueSize), cancel: cancel}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		cancel()
		conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	c.queue <- message{text: &Envelope{Type: TypeHello, Data: Hello{Audio: audioFormat(h.format), Status: h.lastStatus}}}
	h.clients[c] = struct{}{}
	h.wg.Add(1)
	h.mu.Unlock()

	h.logger.Debug("live: client connected", "remote", r.RemoteAddr)
	defer h.wg.Done()
	h.serve(ctx, c)
	h.remove(c)
	h.logger.Debug("live: client disconnected", "remote", r.RemoteAddr)
}

func (h *Hub) serve(ctx context.Context, c *client) {
	for {
		select {
		case <-ctx.Done():
			c.conn.Close(websocket.StatusGoingAway, "bye")
			return
		case m := <-c.queue:
			if err := h.write(ctx, c, m); err != nil {
				c.conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

func (h *Hub) write(ctx context.Context, c *client, m message) error {
	ctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	if m.text != nil {
		return wsjson.Write(ctx, c.conn, m.text)
	}
	return c.conn.Write(ctx, websocket.MessageBinary, m.binary)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.cancel()
}

// broadcast enqueues msgs on every client, dropping clients that cannot keep
// up. Callers must hold h.mu.
func (h *Hub) broadcast(msgs ...message) {
	for c := range h.clients {
		for _, m := range msgs {
			select {
			case c.queue <- m:
				continue
			default:
			}
			h.logger.Warn("live: dropping slow client", "queue", h.queueSize)
			delete(h.clients, c)
			c.cancel()
			break
		}
	}
}

// Publish broadcasts v as a "status" message and remembers it for clients
// that connect later. It never blocks.
func (h *Hub) Publish(v any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.lastStatus = v
	h.broadcast(message{text: &Envelope{Type: TypeStatus, Data: v}})
}

// Play implements [capture.Speaker] by broadcasting buf as a binary frame.
// buf is copied. It never blocks.
func (h *Hub) Play(buf []byte, f wave.Format) error {
	if len(buf) == 0 {
		return nil
	}
	data := append([]byte(nil), buf...)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	if f != h.format {
		h.format = f
		h.broadcast(
			message{text: &Envelope{Type: TypeAudio, Data: audioFormat(f)}},
			message{binary: data},
		)
		return nil
	}
	h.broadcast(message{binary: data})
	return nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones. It waits for client
// handlers to return or ctx to expire.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	for c := range h.clients {
		c.cancel()
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
