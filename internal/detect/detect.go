// Package detect scores capture buffers for abrupt change.
//
// Video is scored by comparing each frame with the one before it; audio is
// scored by the energy of a single buffer around the 8-bit midpoint. Neither
// scorer has error states: malformed input scores zero.
package detect

import "github.com/MrWong99/vigil/pkg/capture"

// VideoScore is the per-pixel deviation between two frames. A pixel's
// deviation is the mean absolute difference of its three channels.
type VideoScore struct {
	// Max is the largest single-pixel deviation, 0 to 255.
	Max float64

	// Mean is the average deviation across all pixels, 0 to 255.
	Mean float64
}

// VideoThresholds bounds the deviation of a quiet scene.
type VideoThresholds struct {
	Max  float64
	Mean float64
}

// DefaultVideoThresholds trigger on any one pixel jumping by more than 200
// or the frame as a whole drifting by more than 5.
var DefaultVideoThresholds = VideoThresholds{Max: 200, Mean: 5}

// Triggered reports whether s exceeds either threshold.
func (s VideoScore) Triggered(th VideoThresholds) bool {
	return s.Max > th.Max || s.Mean > th.Mean
}

// CompareFrames scores cur against prev. Frames of different geometry, and a
// nil frame on either side, score zero.
func CompareFrames(prev, cur *capture.Frame) VideoScore {
	if prev == nil || cur == nil ||
		prev.Width != cur.Width || prev.Height != cur.Height ||
		prev.Width == 0 || prev.Height == 0 ||
		prev.Validate() != nil || cur.Validate() != nil {
		return VideoScore{}
	}

	var (
		peak int
		sum  int64
	)
	for y := range cur.Height {
		a := prev.Pix[y*prev.Stride:]
		b := cur.Pix[y*cur.Stride:]
		for i := 0; i < 3*cur.Width; i += 3 {
			d := absDiff(a[i], b[i]) + absDiff(a[i+1], b[i+1]) + absDiff(a[i+2], b[i+2])
			sum += int64(d)
			peak = max(peak, d)
		}
	}

	// Channel sums are divided by 3 here rather than per pixel.
	pixels := float64(cur.Width * cur.Height)
	return VideoScore{
		Max:  float64(peak) / 3,
		Mean: float64(sum) / 3 / pixels,
	}
}

func absDiff(a, b byte) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

// VideoDetector keeps the previous frame as a rolling baseline.
// It is not safe for concurrent use.
type VideoDetector struct {
	Thresholds VideoThresholds
	prev       *capture.Frame
}

// NewVideoDetector returns a detector with an empty baseline.
func NewVideoDetector(th VideoThresholds) *VideoDetector {
	return &VideoDetector{Thresholds: th}
}

// Observe scores cur against the baseline and then makes cur the baseline,
// whether or not it triggered. The first frame never triggers.
func (d *VideoDetector) Observe(cur *capture.Frame) (VideoScore, bool) {
	s := CompareFrames(d.prev, cur)
	d.prev = cur
	return s, s.Triggered(d.Thresholds)
}

// Reset forgets the baseline.
func (d *VideoDetector) Reset() { d.prev = nil }

// BufferSize is the audio buffer length the energy threshold is tuned for.
const BufferSize = capture.BufferSize

// DefaultEnergyThreshold is the energy at or above which a
// [BufferSize]-byte buffer counts as an anomaly.
const DefaultEnergyThreshold = 2.0

// Energy returns Σ|b/255 − 128/255| over buf: the summed distance of each
// unsigned 8-bit sample from silence.
func Energy(buf []byte) float64 {
	var sum int
	for _, b := range buf {
		sum += absDiff(b, 128)
	}
	return float64(sum) / 255
}

// EnergyTriggered reports whether e reaches th.
func EnergyTriggered(e, th float64) bool { return e >= th }

// Level converts the energy of an n-byte buffer to a 0–100 meter reading.
func Level(e float64, n int) int {
	if n <= 0 {
		return 0
	}
	l := int(e / float64(n) * 100)
	return min(max(l, 0), 100)
}
