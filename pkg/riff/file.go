package riff

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
)

// File is a chunk cursor over a seekable stream. It is not safe for
// concurrent use; exactly one reader or writer owns a File at a time.
type File struct {
	rws    io.ReadWriteSeeker
	path   string
	stack  []*Chunk
	pos    int64
	closed bool
}

// Open opens the file at path for reading. It fails with a [*FormatError] if
// the file is absent or does not start with a RIFF header.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &FormatError{Op: "riff: open", Path: path, Err: err}
	}

	var magic FourCC
	if _, err := io.ReadFull(f, magic[:]); err != nil || magic != idRIFF {
		f.Close()
		return nil, &FormatError{Op: "riff: open", Path: path, Err: ErrNotRIFF}
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, &FormatError{Op: "riff: open", Path: path, Err: err}
	}
	return &File{rws: f, path: path}, nil
}

// Create creates or truncates the file at path for writing.
func Create(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, &IOError{Op: "riff: create", Path: path, Err: err}
	}
	return &File{rws: f, path: path}, nil
}

// NewFile wraps an existing stream positioned at offset 0. If rws implements
// [io.Closer], [File.Close] closes it.
func NewFile(rws io.ReadWriteSeeker) *File {
	return &File{rws: rws}
}

// Path returns the file name given to [Open] or [Create], or "" for streams
// wrapped with [NewFile].
func (f *File) Path() string { return f.path }

// Position returns the absolute cursor offset.
func (f *File) Position() int64 { return f.pos }

// Current returns the innermost open chunk, or nil at top level.
func (f *File) Current() *Chunk {
	if len(f.stack) == 0 {
		return nil
	}
	return f.stack[len(f.stack)-1]
}

// Descend searches forward from the cursor for a child of parent and makes
// it the current chunk. With [FindChunk] the chunk ID must equal id; with
// [FindForm] the chunk must be a RIFF chunk whose form type is id. A nil
// parent searches to the end of the stream.
//
// On success the cursor rests at the first payload byte (after the form type
// for form chunks).
func (f *File) Descend(parent *Chunk, id FourCC, mode Mode) (*Chunk, error) {
	if f.closed {
		return nil, fmt.Errorf("riff: descend: %w", ErrInvalidOperation)
	}

	limit := int64(-1)
	if parent != nil {
		limit = parent.End()
	}

	pos := f.pos
	for {
		if limit >= 0 && pos+8 > limit {
			return nil, fmt.Errorf("riff: descend %q: %w", id, ErrNotFound)
		}
		if err := f.seekAbs(pos); err != nil {
			return nil, err
		}

		var hdr [8]byte
		if err := f.readFull(hdr[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("riff: descend %q: %w", id, ErrNotFound)
			}
			return nil, &IOError{Op: "riff: descend", Path: f.path, Err: err}
		}

		ck := &Chunk{Size: binary.LittleEndian.Uint32(hdr[4:8]), Offset: pos + 8}
		copy(ck.ID[:], hdr[0:4])
		if ck.ID == idRIFF || ck.ID == idLIST {
			if err := f.readFull(ck.Form[:]); err != nil {
				return nil, fmt.Errorf("riff: descend %q: %w", id, ErrNotFound)
			}
		}

		var match bool
		switch mode {
		case FindForm:
			match = ck.ID == idRIFF && ck.Form == id
		default:
			match = ck.ID == id
		}
		if match {
			f.stack = append(f.stack, ck)
			return ck, nil
		}
		pos = ck.Offset + padded(int64(ck.Size))
	}
}

// CreateChunk writes a chunk header at the cursor and makes the new chunk
// current. With [FindForm] it writes a RIFF header whose form type is id;
// otherwise a plain header with ID id. size is the declared payload size;
// [File.Ascend] corrects it if a different number of bytes is written.
func (f *File) CreateChunk(id FourCC, size uint32, mode Mode) (*Chunk, error) {
	if f.closed {
		return nil, fmt.Errorf("riff: create chunk: %w", ErrInvalidOperation)
	}

	ck := &Chunk{ID: id, Size: size, Offset: f.pos + 8}
	hdr := make([]byte, 8, 12)
	if mode == FindForm {
		ck.ID = idRIFF
		ck.Form = id
		ck.Size = max(size, 4)
		hdr = append(hdr, id[:]...)
	}
	copy(hdr[0:4], ck.ID[:])
	binary.LittleEndian.PutUint32(hdr[4:8], ck.Size)

	if _, err := f.Write(hdr); err != nil {
		return nil, err
	}
	ck.end = f.pos
	f.stack = append(f.stack, ck)
	return ck, nil
}

// Ascend closes c and every chunk opened inside it, leaving the cursor just
// past c's payload and pad byte. If bytes were written inside c since it was
// created, its declared size is rewritten to the written length first.
func (f *File) Ascend(c *Chunk) error {
	if f.closed {
		return fmt.Errorf("riff: ascend: %w", ErrInvalidOperation)
	}
	idx := slices.Index(f.stack, c)
	if idx < 0 {
		return fmt.Errorf("riff: ascend %q: chunk not open: %w", c.ID, ErrInvalidOperation)
	}

	next := c.Offset + padded(int64(c.Size))
	if c.dirty {
		end := max(c.end, f.pos)
		size := end - c.Offset
		if size > int64(^uint32(0)) {
			return &IOError{Op: "riff: ascend", Path: f.path, Err: fmt.Errorf("chunk %q exceeds 4 GiB", c.ID)}
		}
		if size&1 == 1 {
			if err := f.seekAbs(end); err != nil {
				return err
			}
			if _, err := f.Write([]byte{0}); err != nil {
				return err
			}
		}
		if uint32(size) != c.Size {
			if err := f.patchSize(c.Offset-4, uint32(size)); err != nil {
				return err
			}
			c.Size = uint32(size)
		}
		next = c.Offset + padded(size)
	}

	if err := f.seekAbs(next); err != nil {
		return err
	}
	f.stack = f.stack[:idx]
	return nil
}

// Seek moves the cursor. [io.SeekStart] is relative to the current chunk's
// payload offset (or the stream start at top level); [io.SeekCurrent] and
// [io.SeekEnd] behave as for [io.Seeker]. It returns the new absolute
// position.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if f.closed {
		return 0, fmt.Errorf("riff: seek: %w", ErrInvalidOperation)
	}

	switch whence {
	case io.SeekStart:
		var base int64
		if c := f.Current(); c != nil {
			base = c.Offset
		}
		return f.seekTo(offset, whence, base+offset)
	case io.SeekCurrent:
		return f.seekTo(offset, whence, f.pos+offset)
	case io.SeekEnd:
		n, err := f.rws.Seek(offset, io.SeekEnd)
		if err != nil {
			return 0, &SeekError{Offset: offset, Whence: whence, Err: err}
		}
		f.pos = n
		return n, nil
	default:
		return 0, &SeekError{Offset: offset, Whence: whence, Err: fmt.Errorf("invalid whence: %w", ErrInvalidOperation)}
	}
}

// Read reads up to len(p) bytes at the cursor. It returns io.EOF only when no
// byte could be read.
func (f *File) Read(p []byte) (int, error) {
	if f.closed {
		return 0, fmt.Errorf("riff: read: %w", ErrInvalidOperation)
	}
	n, err := io.ReadFull(f.rws, p)
	f.pos += int64(n)
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		return n, nil
	case errors.Is(err, io.EOF):
		return n, io.EOF
	default:
		return n, &IOError{Op: "riff: read", Path: f.path, Err: err}
	}
}

// Write writes p at the cursor. Anything less than len(p) bytes is an error
// wrapping [ErrShortWrite].
func (f *File) Write(p []byte) (int, error) {
	if f.closed {
		return 0, fmt.Errorf("riff: write: %w", ErrInvalidOperation)
	}
	n, err := f.rws.Write(p)
	f.pos += int64(n)
	if n > 0 {
		for _, c := range f.stack {
			c.dirty = true
			c.end = max(c.end, f.pos)
		}
	}
	switch {
	case err != nil && n < len(p):
		return n, &IOError{Op: "riff: write", Path: f.path, Err: fmt.Errorf("%w: %w", ErrShortWrite, err)}
	case err != nil:
		return n, &IOError{Op: "riff: write", Path: f.path, Err: err}
	case n < len(p):
		return n, &IOError{Op: "riff: write", Path: f.path, Err: fmt.Errorf("wrote %d of %d bytes: %w", n, len(p), ErrShortWrite)}
	}
	return n, nil
}

// Close releases the underlying stream. Chunks still on the stack are not
// ascended; callers that wrote chunks must ascend them first. Closing twice
// is a no-op.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	f.stack = nil
	if c, ok := f.rws.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return &IOError{Op: "riff: close", Path: f.path, Err: err}
		}
	}
	return nil
}

func (f *File) readFull(p []byte) error {
	n, err := io.ReadFull(f.rws, p)
	f.pos += int64(n)
	return err
}

func (f *File) seekAbs(abs int64) error {
	_, err := f.seekTo(abs, io.SeekStart, abs)
	return err
}

func (f *File) seekTo(offset int64, whence int, abs int64) (int64, error) {
	if abs < 0 {
		return 0, &SeekError{Offset: offset, Whence: whence, Err: ErrOutOfRange}
	}
	n, err := f.rws.Seek(abs, io.SeekStart)
	if err != nil {
		return 0, &SeekError{Offset: offset, Whence: whence, Err: err}
	}
	f.pos = n
	return n, nil
}

// patchSize rewrites the size field at off and restores the cursor. The write
// does not mark any chunk dirty.
func (f *File) patchSize(off int64, size uint32) error {
	back := f.pos
	if err := f.seekAbs(off); err != nil {
		return err
	}
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], size)
	n, err := f.rws.Write(b[:])
	f.pos += int64(n)
	if err != nil || n != len(b) {
		if err == nil {
			err = ErrShortWrite
		}
		return &IOError{Op: "riff: patch size", Path: f.path, Err: err}
	}
	return f.seekAbs(back)
}
