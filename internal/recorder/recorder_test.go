package recorder

import (
	"errors"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/vigil/pkg/capture"
	"github.com/MrWong99/vigil/pkg/wave"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// steppingClock advances one second per call.
func steppingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := start
		start = start.Add(time.Second)
		return t
	}
}

// failingWriter wraps a real WAVE writer and fails every Write after the
// first okWrites.
type failingWriter struct {
	*wave.Writer
	okWrites int
	err      error
	closed   int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.okWrites == 0 {
		return 0, w.err
	}
	w.okWrites--
	return w.Writer.Write(p)
}

func (w *failingWriter) Close() error {
	w.closed++
	return w.Writer.Close()
}

func TestLayout_Paths(t *testing.T) {
	t.Parallel()
	at := time.Date(2024, time.March, 7, 9, 5, 3, 470_000_000, time.UTC)
	l := Layout{Root: "/data"}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"image", l.ImagePath(at), filepath.Join("/data", "image", "2024-03-07-9", "05-03-47.jpg")},
		{"sound", l.SoundPath(at), filepath.Join("/data", "sound", "2024-03-07-9", "05-03-47.wav")},
		{"two digit hour", l.ImagePath(at.Add(14 * time.Hour)), filepath.Join("/data", "image", "2024-03-07-23", "05-03-47.jpg")},
		{"midnight", l.SoundPath(time.Date(2024, 1, 1, 0, 0, 0, 9_999_999, time.UTC)), filepath.Join("/data", "sound", "2024-01-01-0", "00-00-00.wav")},
	}
	for _, tc := range tests {
		if tc.got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, tc.got, tc.want)
		}
	}
}

func TestSoundSession_WritesValidWave(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	at := time.Date(2024, 5, 1, 13, 30, 15, 0, time.UTC)
	r := New(Layout{Root: root}, WithClock(fixedClock(at)))

	if err := r.WriteSound(make([]byte, 400)); err != nil {
		t.Fatalf("WriteSound without session: %v", err)
	}
	if r.Recording() {
		t.Fatal("Recording before StartSound")
	}

	path, err := r.StartSound()
	if err != nil {
		t.Fatalf("StartSound: %v", err)
	}
	if want := filepath.Join(root, "sound", "2024-05-01-13", "30-15-00.wav"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
	again, err := r.StartSound()
	if err != nil || again != path {
		t.Errorf("second StartSound = %q, %v; want same session", again, err)
	}

	buf := make([]byte, capture.BufferSize)
	for i := range 3 {
		for j := range buf {
			buf[j] = byte(i)
		}
		if err := r.WriteSound(buf); err != nil {
			t.Fatalf("WriteSound: %v", err)
		}
	}
	if err := r.StopSound(); err != nil {
		t.Fatalf("StopSound: %v", err)
	}
	if r.Recording() {
		t.Error("Recording after StopSound")
	}
	if err := r.StopSound(); err != nil {
		t.Errorf("second StopSound: %v", err)
	}

	wr, err := wave.Open(path)
	if err != nil {
		t.Fatalf("wave.Open: %v", err)
	}
	defer wr.Close()
	if wr.Format() != capture.MicFormat {
		t.Errorf("format = %v, want %v", wr.Format(), capture.MicFormat)
	}
	if wr.Length() != 1200 {
		t.Errorf("Length = %d, want 1200", wr.Length())
	}
	data, _ := io.ReadAll(wr)
	if data[0] != 0 || data[400] != 1 || data[1199] != 2 {
		t.Errorf("payload not written verbatim: %d %d %d", data[0], data[400], data[1199])
	}
}

func TestClose_FinalizesOpenSession(t *testing.T) {
	t.Parallel()
	r := New(Layout{Root: t.TempDir()})
	path, err := r.StartSound()
	if err != nil {
		t.Fatalf("StartSound: %v", err)
	}
	if err := r.WriteSound(make([]byte, 400)); err != nil {
		t.Fatalf("WriteSound: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	wr, err := wave.Open(path)
	if err != nil {
		t.Fatalf("wave.Open after Close: %v", err)
	}
	defer wr.Close()
	if wr.Length() != 400 {
		t.Errorf("Length = %d, want 400", wr.Length())
	}
}

func TestSaveFrame_WritesJPEG(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	at := time.Date(2024, 5, 1, 7, 0, 1, 990_000_000, time.UTC)
	r := New(Layout{Root: root}, WithClock(fixedClock(at)))

	f := capture.NewFrame(16, 8)
	for i := range f.Pix {
		f.Pix[i] = 200
	}
	path, err := r.SaveFrame(f)
	if err != nil {
		t.Fatalf("SaveFrame: %v", err)
	}
	if want := filepath.Join(root, "image", "2024-05-01-7", "00-01-99.jpg"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer file.Close()
	img, err := jpeg.Decode(file)
	if err != nil {
		t.Fatalf("jpeg.Decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 16 || b.Dy() != 8 {
		t.Errorf("bounds = %v, want 16x8", b)
	}
}

func TestSaveFrame_EncoderFailureRemovesFile(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	errEncode := errors.New("encode failed")
	r := New(Layout{Root: root},
		WithClock(fixedClock(time.Date(2024, 1, 1, 1, 1, 1, 0, time.UTC))),
		WithEncoder(func(w io.Writer, _ *capture.Frame) error {
			w.Write([]byte("partial"))
			return errEncode
		}),
	)

	_, err := r.SaveFrame(capture.NewFrame(2, 2))
	if !errors.Is(err, errEncode) {
		t.Fatalf("got %v, want errEncode", err)
	}
	path := Layout{Root: root}.ImagePath(time.Date(2024, 1, 1, 1, 1, 1, 0, time.UTC))
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("partial file left behind: %v", err)
	}
}

func TestSaveFrame_NilFrame(t *testing.T) {
	t.Parallel()
	r := New(Layout{Root: t.TempDir()})
	if _, err := r.SaveFrame(nil); err == nil {
		t.Error("expected error for nil frame")
	}
}

func TestWriteSound_CodecErrorAbandonsSession(t *testing.T) {
	t.Parallel()
	errDisk := errors.New("disk full")
	var writers []*failingWriter
	r := New(Layout{Root: t.TempDir()},
		WithClock(steppingClock(time.Date(2024, 6, 1, 22, 0, 0, 0, time.UTC))),
		WithCreate(func(path string, f wave.Format) (SoundWriter, error) {
			w, err := wave.Create(path, f)
			if err != nil {
				return nil, err
			}
			fw := &failingWriter{Writer: w, okWrites: 1, err: errDisk}
			writers = append(writers, fw)
			return fw, nil
		}),
	)

	first, err := r.StartSound()
	if err != nil {
		t.Fatalf("StartSound: %v", err)
	}
	if err := r.WriteSound(make([]byte, 400)); err != nil {
		t.Fatalf("first WriteSound: %v", err)
	}
	if err := r.WriteSound(make([]byte, 400)); !errors.Is(err, errDisk) {
		t.Fatalf("second WriteSound = %v, want errDisk", err)
	}
	if r.Recording() || r.SoundPath() != "" {
		t.Errorf("session still open after codec error: recording=%v path=%q", r.Recording(), r.SoundPath())
	}
	if writers[0].closed != 1 {
		t.Errorf("abandoned writer closed %d times, want 1", writers[0].closed)
	}
	if err := r.WriteSound(make([]byte, 400)); err != nil {
		t.Errorf("WriteSound after abandon = %v, want nil", err)
	}

	wr, err := wave.Open(first)
	if err != nil {
		t.Fatalf("partial file unreadable: %v", err)
	}
	if wr.Length() != 400 {
		t.Errorf("partial Length = %d, want 400", wr.Length())
	}
	wr.Close()

	second, err := r.StartSound()
	if err != nil {
		t.Fatalf("StartSound after abandon: %v", err)
	}
	if second == first {
		t.Errorf("StartSound reused abandoned file %q", first)
	}
	if len(writers) != 2 || !r.Recording() {
		t.Errorf("fresh session not opened: writers=%d recording=%v", len(writers), r.Recording())
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestStartSound_CreateError(t *testing.T) {
	t.Parallel()
	errCreate := errors.New("read-only filesystem")
	r := New(Layout{Root: t.TempDir()},
		WithCreate(func(string, wave.Format) (SoundWriter, error) { return nil, errCreate }),
	)
	if _, err := r.StartSound(); !errors.Is(err, errCreate) {
		t.Fatalf("StartSound = %v, want errCreate", err)
	}
	if r.Recording() {
		t.Error("Recording after failed StartSound")
	}
}
