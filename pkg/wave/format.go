// Package wave reads and writes PCM WAVE files on top of package riff.
//
// A [Reader] exposes the payload of the "data" chunk as a byte stream whose
// position 0 is the first audio byte. A [Writer] produces the RIFF/WAVE
// header and "fmt " chunk on [Writer.Open] and back-patches both chunk sizes
// on [Writer.Close]; the file is only well formed once Close has run, so
// callers should always defer it.
//
// Both types implement [Stream]. Neither is safe for concurrent use.
package wave

import (
	"encoding/binary"
	"fmt"
	"time"
)

const (
	formatPCM = 1

	// fmtChunkSize is the size of the WAVEFORMATEX structure written to the
	// "fmt " chunk, including the trailing cbSize field.
	fmtChunkSize = 18

	// minFmtChunkSize is the smallest "fmt " chunk accepted on read.
	minFmtChunkSize = 16
)

// Format describes the layout of PCM samples. Block alignment and average
// data rate are always derived from these three fields.
type Format struct {
	Channels      int
	SampleRate    int
	BitsPerSample int
}

// DefaultFormat is used by [NewWriter] callers that do not care: stereo,
// 44.1 kHz, 16-bit.
var DefaultFormat = Format{Channels: 2, SampleRate: 44100, BitsPerSample: 16}

// BlockAlign returns the number of bytes per sample frame.
func (f Format) BlockAlign() int { return f.Channels * f.BitsPerSample / 8 }

// AvgBytesPerSec returns the data rate in bytes per second.
func (f Format) AvgBytesPerSec() int { return f.SampleRate * f.BlockAlign() }

// Duration returns how long n bytes of audio in this format play for.
func (f Format) Duration(n int64) time.Duration {
	rate := f.AvgBytesPerSec()
	if rate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(rate)
}

func (f Format) String() string {
	return fmt.Sprintf("%d Hz, %d ch, %d-bit", f.SampleRate, f.Channels, f.BitsPerSample)
}

// Validate reports whether f can be written as PCM.
func (f Format) Validate() error {
	switch {
	case f.Channels < 1 || f.Channels > 0xffff:
		return fmt.Errorf("%w: %d channels", ErrUnsupportedFormat, f.Channels)
	case f.SampleRate < 1:
		return fmt.Errorf("%w: sample rate %d", ErrUnsupportedFormat, f.SampleRate)
	case f.BitsPerSample < 8 || f.BitsPerSample > 32 || f.BitsPerSample%8 != 0:
		return fmt.Errorf("%w: %d bits per sample", ErrUnsupportedFormat, f.BitsPerSample)
	}
	return nil
}

// marshal encodes f as an 18-byte PCM WAVEFORMATEX with cbSize 0.
func (f Format) marshal() []byte {
	b := make([]byte, fmtChunkSize)
	binary.LittleEndian.PutUint16(b[0:2], formatPCM)
	binary.LittleEndian.PutUint16(b[2:4], uint16(f.Channels))
	binary.LittleEndian.PutUint32(b[4:8], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(b[8:12], uint32(f.AvgBytesPerSec()))
	binary.LittleEndian.PutUint16(b[12:14], uint16(f.BlockAlign()))
	binary.LittleEndian.PutUint16(b[14:16], uint16(f.BitsPerSample))
	return b
}

// parseFormat decodes the leading PCM fields of a "fmt " chunk. The stored
// block align and byte rate are ignored; they are recomputed from the rest.
func parseFormat(b []byte) (Format, error) {
	if len(b) < minFmtChunkSize {
		return Format{}, fmt.Errorf("%w: fmt chunk is %d bytes", ErrUnsupportedFormat, len(b))
	}
	if tag := binary.LittleEndian.Uint16(b[0:2]); tag != formatPCM {
		return Format{}, fmt.Errorf("%w: format tag %d", ErrUnsupportedFormat, tag)
	}
	f := Format{
		Channels:      int(binary.LittleEndian.Uint16(b[2:4])),
		SampleRate:    int(binary.LittleEndian.Uint32(b[4:8])),
		BitsPerSample: int(binary.LittleEndian.Uint16(b[14:16])),
	}
	if err := f.Validate(); err != nil {
		return Format{}, err
	}
	return f, nil
}
