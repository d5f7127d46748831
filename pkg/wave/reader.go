package wave

import (
	"fmt"
	"io"
	"time"

	"github.com/MrWong99/vigil/pkg/riff"
)

// Reader streams the audio payload of a WAVE file.
type Reader struct {
	path   string
	f      *riff.File
	format Format
	offset int64 // absolute offset of the first audio byte
	length int64
}

// Open opens path and positions the reader at the first audio byte. Any
// structural problem is reported as a [*FormatError] wrapping one of
// [ErrNotWave], [ErrMissingFormat], [ErrMissingData] or
// [ErrUnsupportedFormat]; the file is closed before Open returns an error.
func Open(path string) (*Reader, error) {
	f, err := riff.Open(path)
	if err != nil {
		return nil, err
	}
	r := &Reader{path: path, f: f}
	if err := r.load(); err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) load() error {
	form, err := r.f.Descend(nil, riff.ID("WAVE"), riff.FindForm)
	if err != nil {
		return r.formatError(ErrNotWave, err)
	}

	fc, err := r.f.Descend(form, riff.ID("fmt "), riff.FindChunk)
	if err != nil {
		return r.formatError(ErrMissingFormat, err)
	}
	buf := make([]byte, min(fc.Size, 64))
	n, err := r.f.Read(buf)
	if err != nil && err != io.EOF {
		return err
	}
	if r.format, err = parseFormat(buf[:n]); err != nil {
		return &FormatError{Op: "wave: open", Path: r.path, Err: err}
	}
	if err := r.f.Ascend(fc); err != nil {
		return err
	}

	dc, err := r.f.Descend(form, riff.ID("data"), riff.FindChunk)
	if err != nil {
		return r.formatError(ErrMissingData, err)
	}
	r.offset = dc.Offset
	r.length = int64(dc.Size)
	return nil
}

func (r *Reader) formatError(kind, cause error) error {
	return &FormatError{Op: "wave: open", Path: r.path, Err: fmt.Errorf("%w: %w", kind, cause)}
}

// Format returns the audio format read from the "fmt " chunk.
func (r *Reader) Format() Format { return r.format }

func (r *Reader) Channels() int      { return r.format.Channels }
func (r *Reader) SampleRate() int    { return r.format.SampleRate }
func (r *Reader) BitsPerSample() int { return r.format.BitsPerSample }

// Length returns the declared size of the audio payload in bytes.
func (r *Reader) Length() int64 { return r.length }

// Duration returns the playing time of the whole payload.
func (r *Reader) Duration() time.Duration { return r.format.Duration(r.length) }

// Position returns the offset of the next byte to be read. It is 0 once the
// reader is closed.
func (r *Reader) Position() int64 {
	if r.f == nil {
		return 0
	}
	return r.f.Position() - r.offset
}

func (r *Reader) CanRead() bool  { return r.f != nil }
func (r *Reader) CanSeek() bool  { return r.f != nil }
func (r *Reader) CanWrite() bool { return false }

// Read reads at most the bytes that remain in the payload. Once the payload
// is exhausted it returns 0, io.EOF.
func (r *Reader) Read(p []byte) (int, error) {
	if r.f == nil {
		return 0, fmt.Errorf("wave: read: %w", ErrInvalidOperation)
	}
	remaining := r.length - r.Position()
	if remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := r.f.Read(p)
	if err == io.EOF {
		// The declared size runs past the end of the file.
		return n, io.ErrUnexpectedEOF
	}
	return n, err
}

// ReadOffset skips off bytes relative to the current position, then reads.
func (r *Reader) ReadOffset(p []byte, off int64) (int, error) {
	if off != 0 {
		if _, err := r.Seek(off, io.SeekCurrent); err != nil {
			return 0, err
		}
	}
	return r.Read(p)
}

// ReadSamples16 reads little-endian 16-bit samples into s and returns the
// number of whole samples read.
func (r *Reader) ReadSamples16(s []int16) (int, error) {
	buf := make([]byte, 2*len(s))
	n, err := r.Read(buf)
	if n%2 == 1 {
		if _, serr := r.Seek(-1, io.SeekCurrent); serr != nil && err == nil {
			err = serr
		}
	}
	return decodeSamples16(s, buf[:n]), err
}

// Write always fails; a Reader is read-only.
func (r *Reader) Write([]byte) (int, error) {
	return 0, fmt.Errorf("wave: write to reader: %w", ErrInvalidOperation)
}

// Seek moves within [0, Length()]. Targets outside that range fail with a
// [*SeekError] wrapping [ErrOutOfRange].
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	if r.f == nil {
		return 0, fmt.Errorf("wave: seek: %w", ErrInvalidOperation)
	}
	target, err := seekTarget(r.Position(), r.length, offset, whence)
	if err != nil {
		return 0, err
	}
	// The data chunk is the current chunk, so SeekStart is payload-relative.
	if _, err := r.f.Seek(target, io.SeekStart); err != nil {
		return 0, err
	}
	return target, nil
}

// Close releases the file. Closing twice is a no-op.
func (r *Reader) Close() error {
	if r.f == nil {
		return nil
	}
	f := r.f
	r.f = nil
	return f.Close()
}
