package wave

import (
	"encoding/binary"
	"io"
)

// Stream is the byte-stream contract shared by [Reader] and [Writer]. All
// positions are relative to the first audio byte.
type Stream interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer

	// Position returns the current offset into the audio payload.
	Position() int64

	// Length returns the number of audio bytes available (Reader) or written
	// so far (Writer).
	Length() int64

	CanRead() bool
	CanWrite() bool
	CanSeek() bool
}

var (
	_ Stream = (*Reader)(nil)
	_ Stream = (*Writer)(nil)
)

// seekTarget resolves a data-relative seek and checks it against [0, length].
func seekTarget(pos, length, offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = pos + offset
	case io.SeekEnd:
		target = length + offset
	default:
		return 0, &SeekError{Offset: offset, Whence: whence, Err: ErrInvalidOperation}
	}
	if target < 0 || target > length {
		return 0, &SeekError{Offset: offset, Whence: whence, Err: ErrOutOfRange}
	}
	return target, nil
}

func encodeSamples16(s []int16) []byte {
	b := make([]byte, 2*len(s))
	for i, v := range s {
		binary.LittleEndian.PutUint16(b[2*i:], uint16(v))
	}
	return b
}

func decodeSamples16(dst []int16, b []byte) int {
	n := min(len(dst), len(b)/2)
	for i := range n {
		dst[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}
	return n
}
