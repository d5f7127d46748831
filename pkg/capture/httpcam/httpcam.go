// Package httpcam implements [capture.Camera] on top of an HTTP snapshot
// endpoint, as exposed by most IP cameras and by tools such as mjpg-streamer
// (?action=snapshot). Each GrabFrame performs one GET and decodes the body as
// JPEG or PNG.
//
//	cam := httpcam.New("http://192.168.1.20/snapshot.jpg",
//	    httpcam.WithTimeout(2*time.Second),
//	)
package httpcam

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/MrWong99/vigil/pkg/capture"
)

var _ capture.Camera = (*Camera)(nil)

const (
	defaultTimeout = 5 * time.Second

	// maxSnapshotBytes bounds a single response body.
	maxSnapshotBytes = 32 << 20
)

// Option configures a Camera.
type Option func(*Camera)

// WithTimeout sets the per-request HTTP timeout. Defaults to 5 s.
func WithTimeout(d time.Duration) Option {
	return func(c *Camera) {
		c.client.Timeout = d
	}
}

// WithHTTPClient replaces the HTTP client. The client's timeout is left as is.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Camera) {
		c.client = hc
	}
}

// Camera fetches frames from a snapshot URL. It is safe for concurrent use.
type Camera struct {
	url     string
	client  *http.Client
	started atomic.Bool
}

// New returns a camera for url. No request is made until the first grab.
func New(url string, opts ...Option) *Camera {
	c := &Camera{
		url:    url,
		client: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start marks the camera as running.
func (c *Camera) Start(context.Context) error {
	c.started.Store(true)
	return nil
}

// Stop marks the camera as stopped; subsequent grabs fail.
func (c *Camera) Stop() error {
	c.started.Store(false)
	return nil
}

// GrabFrame fetches and decodes one snapshot.
func (c *Camera) GrabFrame(ctx context.Context) (*capture.Frame, error) {
	if !c.started.Load() {
		return nil, capture.ErrNotStarted
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("httpcam: build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpcam: get %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("httpcam: get %s: unexpected status %s", c.url, resp.Status)
	}

	img, _, err := image.Decode(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return nil, fmt.Errorf("httpcam: decode snapshot: %w", err)
	}
	return capture.FrameFromImage(img), nil
}
