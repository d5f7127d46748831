package wavmic

import (
	"encoding/binary"
	"fmt"

	"github.com/MrWong99/vigil/pkg/wave"
)

// toMic8 converts raw PCM in format f to 8-bit unsigned mono at dstRate.
// Conversion order: widen to 16-bit, downmix, resample, narrow to 8-bit.
func toMic8(pcm []byte, f wave.Format, dstRate int) ([]byte, error) {
	mono, err := downmix16(pcm, f)
	if err != nil {
		return nil, err
	}
	mono = resampleMono16(mono, f.SampleRate, dstRate)

	out := make([]byte, len(mono))
	for i, s := range mono {
		out[i] = byte(s>>8) + 128
	}
	return out, nil
}

// downmix16 decodes interleaved frames to 16-bit samples and averages the
// channels of each frame.
func downmix16(pcm []byte, f wave.Format) ([]int16, error) {
	width := f.BitsPerSample / 8
	if width < 1 || width > 4 || f.Channels < 1 {
		return nil, fmt.Errorf("wavmic: unsupported source format %s", f)
	}
	block := width * f.Channels
	frames := len(pcm) / block

	out := make([]int16, frames)
	for i := range frames {
		var sum int32
		for ch := range f.Channels {
			sum += int32(sample16(pcm[i*block+ch*width:], width))
		}
		out[i] = int16(sum / int32(f.Channels))
	}
	return out, nil
}

// sample16 reads one little-endian sample of the given byte width and scales
// it to 16 bits. 8-bit PCM is unsigned; wider samples are signed.
func sample16(b []byte, width int) int16 {
	switch width {
	case 1:
		return int16(int(b[0])-128) << 8
	case 2:
		return int16(binary.LittleEndian.Uint16(b))
	case 3:
		return int16(uint16(b[1]) | uint16(b[2])<<8)
	default:
		return int16(binary.LittleEndian.Uint32(b) >> 16)
	}
}

// resampleMono16 resamples using linear interpolation. If srcRate == dstRate
// the input is returned unchanged.
func resampleMono16(in []int16, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(in) < 2 {
		return in
	}
	n := int(int64(len(in)) * int64(dstRate) / int64(srcRate))
	if n == 0 {
		return nil
	}

	out := make([]int16, n)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range n {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := in[idx]
		s1 := s0
		if idx+1 < len(in) {
			s1 = in[idx+1]
		}
		out[i] = int16(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}
