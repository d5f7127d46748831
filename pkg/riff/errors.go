package riff

import (
	"errors"
	"fmt"
)

var (
	// ErrNotRIFF is wrapped by [FormatError] when a file does not start with
	// a RIFF header.
	ErrNotRIFF = errors.New("riff: not a RIFF file")

	// ErrNotFound is returned by [File.Descend] when no matching chunk exists
	// within the parent's bounds.
	ErrNotFound = errors.New("riff: chunk not found")

	// ErrShortWrite is wrapped by [IOError] when the underlying writer accepted
	// fewer bytes than requested. A short write is never partial success.
	ErrShortWrite = errors.New("riff: short write")

	// ErrInvalidOperation reports a programming error: I/O on a closed file,
	// ascending a chunk that is not on the cursor stack, or mutating state that
	// is frozen while a file is open.
	ErrInvalidOperation = errors.New("riff: invalid operation")

	// ErrOutOfRange is wrapped by [SeekError] when the target position falls
	// outside the region a caller may address.
	ErrOutOfRange = errors.New("riff: position out of range")
)

// FormatError reports a file that is not a valid container or lacks a
// required chunk. The open attempt that produced it has already released its
// handle.
type FormatError struct {
	Op   string
	Path string
	Err  error
}

func (e *FormatError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// IOError reports a file that could not be opened or created, or a write that
// did not transfer every byte.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// SeekError reports a failed seek. Whence uses the io.Seek* constants.
type SeekError struct {
	Offset int64
	Whence int
	Err    error
}

func (e *SeekError) Error() string {
	return fmt.Sprintf("seek to %d (whence %d): %v", e.Offset, e.Whence, e.Err)
}

func (e *SeekError) Unwrap() error { return e.Err }
