package web

import (
	"errors"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/vigil/internal/recorder"
	"github.com/MrWong99/vigil/pkg/wave"
)

// Clip kinds.
const (
	KindSound = "sound"
	KindImage = "image"
)

var errBadKind = errors.New("web: unknown clip kind")

// Clip describes one evidence file.
type Clip struct {
	Kind    string    `json:"kind"`
	Path    string    `json:"path"` // slash-separated, relative to the storage root
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`

	// Sound clips only.
	Channels      int    `json:"channels,omitempty"`
	SampleRate    int    `json:"sample_rate,omitempty"`
	BitsPerSample int    `json:"bits_per_sample,omitempty"`
	DurationMS    int64  `json:"duration_ms,omitempty"`
	Error         string `json:"error,omitempty"`

	// Recording marks the sound clip that is still being written. Its
	// header is not final, so no format is reported.
	Recording bool `json:"recording,omitempty"`
}

// ListClips walks the sound and/or image trees below l.Root and returns the
// clips newest first. kind "" lists both. Missing trees yield no clips.
// WAVE files are opened to report their format; a file that cannot be parsed
// is listed with Error set. recording names the sound file currently open
// for writing, if any; it is listed with Recording set instead.
func ListClips(l recorder.Layout, kind, recording string) ([]Clip, error) {
	clips := []Clip{}
	var err error
	switch kind {
	case "":
		clips, err = walkClips(clips, l, KindSound, recording)
		if err == nil {
			clips, err = walkClips(clips, l, KindImage, recording)
		}
	case KindSound, KindImage:
		clips, err = walkClips(clips, l, kind, recording)
	default:
		return nil, errBadKind
	}
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(clips, func(a, b Clip) int {
		if c := b.ModTime.Compare(a.ModTime); c != 0 {
			return c
		}
		return strings.Compare(b.Path, a.Path)
	})
	return clips, nil
}

func walkClips(dst []Clip, l recorder.Layout, kind, recording string) ([]Clip, error) {
	root, ext := l.SoundRoot(), ".wav"
	if kind == KindImage {
		root, ext = l.ImageRoot(), ".jpg"
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == root {
				return fs.SkipDir
			}
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ext) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(l.Root, path)
		if err != nil {
			rel = path
		}
		c := Clip{
			Kind:    kind,
			Path:    filepath.ToSlash(rel),
			Size:    info.Size(),
			ModTime: info.ModTime().UTC(),
		}
		switch {
		case kind != KindSound:
		case recording != "" && filepath.Clean(path) == filepath.Clean(recording):
			c.Recording = true
		default:
			describeSound(&c, path)
		}
		dst = append(dst, c)
		return nil
	})
	return dst, err
}

func describeSound(c *Clip, path string) {
	r, err := wave.Open(path)
	if err != nil {
		c.Error = err.Error()
		return
	}
	defer r.Close()
	c.Channels = r.Channels()
	c.SampleRate = r.SampleRate()
	c.BitsPerSample = r.BitsPerSample()
	c.DurationMS = r.Duration().Milliseconds()
}
