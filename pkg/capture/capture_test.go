package capture_test

import (
	"image"
	"image/color"
	"testing"

	"github.com/MrWong99/vigil/pkg/capture"
)

func TestFrameFromImage_DropsAlphaAndKeepsOrder(t *testing.T) {
	t.Parallel()
	img := image.NewNRGBA(image.Rect(5, 5, 7, 6)) // non-zero origin, 2x1
	img.SetNRGBA(5, 5, color.NRGBA{R: 1, G: 2, B: 3, A: 255})
	img.SetNRGBA(6, 5, color.NRGBA{R: 200, G: 100, B: 50, A: 255})

	f := capture.FrameFromImage(img)
	if f.Width != 2 || f.Height != 1 || f.Stride != 6 {
		t.Fatalf("geometry = %dx%d/%d, want 2x1/6", f.Width, f.Height, f.Stride)
	}
	want := []byte{1, 2, 3, 200, 100, 50}
	for i := range want {
		if f.Pix[i] != want[i] {
			t.Errorf("Pix[%d] = %d, want %d", i, f.Pix[i], want[i])
		}
	}
	if err := f.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestFrame_ImageRoundTrip(t *testing.T) {
	t.Parallel()
	f := capture.NewFrame(3, 2)
	for i := range f.Pix {
		f.Pix[i] = byte(i * 10)
	}
	back := capture.FrameFromImage(f.Image())
	for i := range f.Pix {
		if back.Pix[i] != f.Pix[i] {
			t.Fatalf("Pix[%d] = %d, want %d", i, back.Pix[i], f.Pix[i])
		}
	}

	c := f.Clone()
	c.Pix[0] = 255
	if f.Pix[0] == 255 {
		t.Error("Clone shares its pixel buffer")
	}
}

func TestFrame_ValidateRejectsShortBuffer(t *testing.T) {
	t.Parallel()
	f := &capture.Frame{Width: 2, Height: 2, Stride: 6, Pix: make([]byte, 11)}
	if err := f.Validate(); err == nil {
		t.Error("expected error for short buffer")
	}
}
