package wave

import (
	"errors"

	"github.com/MrWong99/vigil/pkg/riff"
)

// The error types are shared with package riff so that a single errors.As
// target matches failures from either layer.
type (
	FormatError = riff.FormatError
	IOError     = riff.IOError
	SeekError   = riff.SeekError
)

var (
	// ErrNotWave means the file is a container but has no RIFF chunk with
	// form type "WAVE".
	ErrNotWave = errors.New("wave: not a WAVE file")

	// ErrMissingFormat means the WAVE form has no "fmt " chunk.
	ErrMissingFormat = errors.New("wave: missing fmt chunk")

	// ErrMissingData means the WAVE form has no "data" chunk.
	ErrMissingData = errors.New("wave: missing data chunk")

	// ErrUnsupportedFormat means the format is not integer PCM or has a zero
	// channel count, sample rate, or sample width.
	ErrUnsupportedFormat = errors.New("wave: unsupported format")

	// ErrInvalidOperation is returned for I/O on a closed stream, writes to a
	// Reader, and format changes on an open Writer.
	ErrInvalidOperation = riff.ErrInvalidOperation

	// ErrShortWrite is wrapped by [IOError] when a write is truncated.
	ErrShortWrite = riff.ErrShortWrite

	// ErrOutOfRange is wrapped by [SeekError] when a seek leaves the audio
	// payload.
	ErrOutOfRange = riff.ErrOutOfRange
)
