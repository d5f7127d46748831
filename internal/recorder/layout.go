package recorder

import (
	"fmt"
	"path/filepath"
	"time"
)

// Layout maps capture timestamps to evidence file paths:
//
//	{Root}/image/{yyyy-MM-dd-H}/{mm-ss-ff}.jpg
//	{Root}/sound/{yyyy-MM-dd-H}/{mm-ss-ff}.wav
//
// H is the 24-hour clock hour without zero padding; ff is hundredths of a
// second.
type Layout struct {
	Root string
}

const (
	imageDir = "image"
	soundDir = "sound"
)

// ImagePath returns the JPEG path for a frame captured at t.
func (l Layout) ImagePath(t time.Time) string {
	return filepath.Join(l.Root, imageDir, hourDir(t), stamp(t)+".jpg")
}

// SoundPath returns the WAVE path for a session started at t.
func (l Layout) SoundPath(t time.Time) string {
	return filepath.Join(l.Root, soundDir, hourDir(t), stamp(t)+".wav")
}

// ImageRoot returns the directory holding all image hour directories.
func (l Layout) ImageRoot() string { return filepath.Join(l.Root, imageDir) }

// SoundRoot returns the directory holding all sound hour directories.
func (l Layout) SoundRoot() string { return filepath.Join(l.Root, soundDir) }

func hourDir(t time.Time) string {
	return fmt.Sprintf("%s-%d", t.Format("2006-01-02"), t.Hour())
}

func stamp(t time.Time) string {
	return fmt.Sprintf("%02d-%02d-%02d", t.Minute(), t.Second(), t.Nanosecond()/int(10*time.Millisecond))
}
