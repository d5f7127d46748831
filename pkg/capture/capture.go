// Package capture defines the boundary between vigil and its capture and
// playback devices.
//
// A [Camera] hands out RGB frames on demand; a [Microphone] pushes fixed-size
// 8-bit unsigned mono buffers at 8 kHz to a callback; a [Speaker] plays PCM
// to the operator. Concrete adapters live in the sub-packages:
//   - httpcam polls an HTTP snapshot URL
//   - wavmic replays a WAVE file at real-time cadence
//   - mock provides test doubles with call counters
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"

	"github.com/MrWong99/vigil/pkg/wave"
)

// BufferSize is the number of bytes in one microphone buffer.
const BufferSize = 400

// MicFormat is the PCM format of every microphone buffer: 8 kHz, mono,
// 8-bit unsigned.
var MicFormat = wave.Format{Channels: 1, SampleRate: 8000, BitsPerSample: 8}

// ErrNotStarted is returned by [Camera.GrabFrame] before Start.
var ErrNotStarted = errors.New("capture: device not started")

// Frame is a packed RGB image, three bytes per pixel in R, G, B order.
// Row y starts at Pix[y*Stride].
type Frame struct {
	Width  int
	Height int
	Stride int
	Pix    []byte
}

// NewFrame returns a zeroed frame of the given size.
func NewFrame(width, height int) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Stride: 3 * width,
		Pix:    make([]byte, 3*width*height),
	}
}

// FrameFromImage copies img into a new Frame, dropping alpha.
func FrameFromImage(img image.Image) *Frame {
	b := img.Bounds()
	f := NewFrame(b.Dx(), b.Dy())

	rgba, ok := img.(*image.RGBA)
	if !ok {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
		b = rgba.Bounds()
	}
	for y := range f.Height {
		src := rgba.Pix[rgba.PixOffset(b.Min.X, b.Min.Y+y):]
		dst := f.Pix[y*f.Stride:]
		for x := range f.Width {
			dst[3*x] = src[4*x]
			dst[3*x+1] = src[4*x+1]
			dst[3*x+2] = src[4*x+2]
		}
	}
	return f
}

// Image returns an opaque RGBA copy of f.
func (f *Frame) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := range f.Height {
		src := f.Pix[y*f.Stride:]
		dst := img.Pix[y*img.Stride:]
		for x := range f.Width {
			dst[4*x] = src[3*x]
			dst[4*x+1] = src[3*x+1]
			dst[4*x+2] = src[3*x+2]
			dst[4*x+3] = 0xff
		}
	}
	return img
}

// Clone returns a deep copy of f.
func (f *Frame) Clone() *Frame {
	c := *f
	c.Pix = append([]byte(nil), f.Pix...)
	return &c
}

// Validate reports whether the frame's pixel buffer covers its geometry.
func (f *Frame) Validate() error {
	if f.Width < 0 || f.Height < 0 || f.Stride < 3*f.Width {
		return fmt.Errorf("capture: invalid frame geometry %dx%d stride %d", f.Width, f.Height, f.Stride)
	}
	if f.Height > 0 && len(f.Pix) < (f.Height-1)*f.Stride+3*f.Width {
		return fmt.Errorf("capture: frame buffer is %d bytes, need %d", len(f.Pix), (f.Height-1)*f.Stride+3*f.Width)
	}
	return nil
}

// Camera delivers still frames.
type Camera interface {
	// Start prepares the device. Calling Start on a started camera is a no-op.
	Start(ctx context.Context) error

	// Stop releases the device.
	Stop() error

	// GrabFrame returns the most recent frame. The caller owns the result.
	GrabFrame(ctx context.Context) (*Frame, error)
}

// Microphone pushes [BufferSize]-byte buffers in [MicFormat] to a callback.
// Implementations call the callback from their own goroutine and never
// concurrently with itself; the callback must not retain the slice.
type Microphone interface {
	// Start begins delivering buffers to fn until Stop or ctx cancellation.
	Start(ctx context.Context, fn func(buf []byte)) error

	// Stop halts delivery and waits for the delivering goroutine to exit.
	Stop() error

	// Enabled reports whether the microphone is currently delivering.
	Enabled() bool
}

// Speaker plays PCM audio to the operator.
type Speaker interface {
	Play(buf []byte, f wave.Format) error
}
