package wave

import (
	"errors"
	"fmt"
	"io"

	"github.com/MrWong99/vigil/pkg/riff"
)

// Writer produces a PCM WAVE file. The format may only be changed while no
// file is attached.
type Writer struct {
	format Format
	path   string
	f      *riff.File
	form   *riff.Chunk
	data   *riff.Chunk
	length int64
}

// NewWriter returns a Writer with format f and no file attached.
func NewWriter(f Format) *Writer {
	return &Writer{format: f}
}

// Create is shorthand for NewWriter followed by [Writer.Open].
func Create(path string, f Format) (*Writer, error) {
	w := NewWriter(f)
	if err := w.Open(path); err != nil {
		return nil, err
	}
	return w, nil
}

// Format returns the writer's audio format.
func (w *Writer) Format() Format { return w.format }

// Path returns the attached file name, or "" when no file is open.
func (w *Writer) Path() string {
	if w.f == nil {
		return ""
	}
	return w.path
}

// SetFormat replaces the whole format. It fails with [ErrInvalidOperation]
// while a file is open.
func (w *Writer) SetFormat(f Format) error {
	if w.f != nil {
		return fmt.Errorf("wave: change format of open file %q: %w", w.path, ErrInvalidOperation)
	}
	w.format = f
	return nil
}

// SetChannels changes the channel count of a writer with no open file.
func (w *Writer) SetChannels(n int) error {
	f := w.format
	f.Channels = n
	return w.SetFormat(f)
}

// SetSampleRate changes the sample rate of a writer with no open file.
func (w *Writer) SetSampleRate(hz int) error {
	f := w.format
	f.SampleRate = hz
	return w.SetFormat(f)
}

// SetBitsPerSample changes the sample width of a writer with no open file.
func (w *Writer) SetBitsPerSample(bits int) error {
	f := w.format
	f.BitsPerSample = bits
	return w.SetFormat(f)
}

// Open creates path, writes the RIFF/WAVE header and "fmt " chunk, and opens
// the "data" chunk for writing. A file that is already attached is closed
// first.
func (w *Writer) Open(path string) error {
	if err := w.Close(); err != nil {
		return err
	}
	if err := w.format.Validate(); err != nil {
		return &FormatError{Op: "wave: create", Path: path, Err: err}
	}

	f, err := riff.Create(path)
	if err != nil {
		return err
	}
	if err := w.writeHeader(f); err != nil {
		f.Close()
		return err
	}
	w.f = f
	w.path = path
	w.length = 0
	return nil
}

func (w *Writer) writeHeader(f *riff.File) error {
	form, err := f.CreateChunk(riff.ID("WAVE"), 0, riff.FindForm)
	if err != nil {
		return err
	}
	fc, err := f.CreateChunk(riff.ID("fmt "), fmtChunkSize, riff.FindChunk)
	if err != nil {
		return err
	}
	if _, err := f.Write(w.format.marshal()); err != nil {
		return err
	}
	if err := f.Ascend(fc); err != nil {
		return err
	}
	data, err := f.CreateChunk(riff.ID("data"), 0, riff.FindChunk)
	if err != nil {
		return err
	}
	w.form, w.data = form, data
	return nil
}

// Length returns the number of audio bytes written.
func (w *Writer) Length() int64 { return w.length }

// Position returns the write offset into the audio payload.
func (w *Writer) Position() int64 {
	if w.f == nil {
		return 0
	}
	return w.f.Position() - w.data.Offset
}

func (w *Writer) CanRead() bool  { return w.f != nil }
func (w *Writer) CanWrite() bool { return w.f != nil }
func (w *Writer) CanSeek() bool  { return w.f != nil }

// Write writes p at the current position. A write that transfers fewer than
// len(p) bytes fails with an [*IOError] wrapping [ErrShortWrite].
func (w *Writer) Write(p []byte) (int, error) {
	if w.f == nil {
		return 0, fmt.Errorf("wave: write: %w", ErrInvalidOperation)
	}
	n, err := w.f.Write(p)
	w.length = max(w.length, w.Position())
	return n, err
}

// WriteOffset skips off bytes relative to the current position, then writes.
// The target must lie within the bytes already written.
func (w *Writer) WriteOffset(p []byte, off int64) (int, error) {
	if off != 0 {
		if _, err := w.Seek(off, io.SeekCurrent); err != nil {
			return 0, err
		}
	}
	return w.Write(p)
}

// WriteSamples16 writes s as little-endian 16-bit samples.
func (w *Writer) WriteSamples16(s []int16) error {
	_, err := w.Write(encodeSamples16(s))
	return err
}

// Read reads back bytes that have already been written, starting at the
// current position.
func (w *Writer) Read(p []byte) (int, error) {
	if w.f == nil {
		return 0, fmt.Errorf("wave: read: %w", ErrInvalidOperation)
	}
	remaining := w.length - w.Position()
	if remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	return w.f.Read(p)
}

// Seek moves within the bytes already written. A writer never grows by
// seeking.
func (w *Writer) Seek(offset int64, whence int) (int64, error) {
	if w.f == nil {
		return 0, fmt.Errorf("wave: seek: %w", ErrInvalidOperation)
	}
	target, err := seekTarget(w.Position(), w.length, offset, whence)
	if err != nil {
		return 0, err
	}
	if _, err := w.f.Seek(target, io.SeekStart); err != nil {
		return 0, err
	}
	return target, nil
}

// Close ascends out of the "data" and RIFF chunks, which rewrites both sizes
// to their written lengths, and closes the file. Every step runs even if an
// earlier one fails. Close without an open file is a no-op.
func (w *Writer) Close() error {
	if w.f == nil {
		return nil
	}
	f := w.f
	w.f = nil

	err := errors.Join(
		f.Ascend(w.data),
		f.Ascend(w.form),
		f.Close(),
	)
	if err != nil {
		return fmt.Errorf("wave: close %q: %w", w.path, err)
	}
	return nil
}
