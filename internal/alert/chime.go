package alert

import (
	"context"
	"fmt"
	"io"

	"github.com/MrWong99/vigil/pkg/capture"
	"github.com/MrWong99/vigil/pkg/wave"
)

// Chime plays a preloaded WAVE clip through a speaker on every alert.
type Chime struct {
	speaker capture.Speaker
	pcm     []byte
	format  wave.Format
}

var _ Alerter = (*Chime)(nil)

// NewChime reads the clip at path once and returns an alerter that plays it
// to sp.
func NewChime(path string, sp capture.Speaker) (*Chime, error) {
	r, err := wave.Open(path)
	if err != nil {
		return nil, fmt.Errorf("alert: load chime: %w", err)
	}
	defer r.Close()

	pcm, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("alert: read chime %q: %w", path, err)
	}
	return &Chime{speaker: sp, pcm: pcm, format: r.Format()}, nil
}

// Format returns the clip's format.
func (c *Chime) Format() wave.Format { return c.format }

// Len returns the clip's payload size in bytes.
func (c *Chime) Len() int { return len(c.pcm) }

// Alert implements [Alerter].
func (c *Chime) Alert(ctx context.Context, _ Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.speaker.Play(c.pcm, c.format); err != nil {
		return fmt.Errorf("alert: play chime: %w", err)
	}
	return nil
}
