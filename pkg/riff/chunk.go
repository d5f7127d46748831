// Package riff implements a cursor over RIFF chunked containers.
//
// A [File] keeps a stack of open chunks. [File.Descend] and
// [File.CreateChunk] push a chunk, [File.Ascend] pops it and, for chunks that
// received bytes since they were created, back-patches the declared size and
// writes the pad byte RIFF requires after odd-sized payloads. The package has
// no knowledge of any particular form type; see package wave for WAVE.
//
// All integers on disk are little-endian.
package riff

// FourCC is a four-character chunk identifier.
type FourCC [4]byte

// ID converts s into a [FourCC]. Short identifiers are padded with spaces, so
// ID("fmt") equals ID("fmt "). Characters beyond the fourth are dropped.
func ID(s string) FourCC {
	id := FourCC{' ', ' ', ' ', ' '}
	copy(id[:], s)
	return id
}

func (id FourCC) String() string { return string(id[:]) }

var (
	idRIFF = ID("RIFF")
	idLIST = ID("LIST")
)

// Mode selects how [File.Descend] and [File.CreateChunk] interpret their id
// argument.
type Mode uint8

const (
	// FindChunk matches or creates an ordinary chunk whose ID is id.
	FindChunk Mode = iota

	// FindForm matches or creates a RIFF chunk whose form type is id.
	FindForm
)

// Chunk describes one chunk on the cursor stack.
type Chunk struct {
	// ID is the chunk identifier. For form chunks it is "RIFF".
	ID FourCC

	// Size is the declared payload size, excluding the 8-byte header and any
	// pad byte. For form chunks it includes the 4-byte form type.
	Size uint32

	// Form is the form type of RIFF and LIST chunks; zero otherwise.
	Form FourCC

	// Offset is the absolute file offset of the payload. For form chunks it
	// points at the form type, matching the size accounting above.
	Offset int64

	dirty bool  // bytes were written inside the chunk after creation
	end   int64 // highest absolute offset written inside the chunk
}

// End returns the absolute offset just past the declared payload, excluding
// padding.
func (c *Chunk) End() int64 { return c.Offset + int64(c.Size) }

func padded(n int64) int64 { return n + n&1 }
