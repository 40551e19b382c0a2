// Package slab manages the on-disk staging file segment tasks write into
// at absolute offsets.
package slab

import (
	"io"
	"os"
	"sync"
)

// Slab wraps a single *os.File opened read+write+create. Because segments
// of one file are written by independent goroutines sharing one file
// handle (and its one cursor), WriteAt serializes each seek+write pair
// behind a mutex. This exclusion is held only around the seek+write pair,
// never across network waits, so it never becomes the bottleneck.
type Slab struct {
	path string
	f    *os.File
	mu   sync.Mutex
}

// Open creates or opens the slab at path and, if its current length is
// shorter than size, extends it to size (sparse where the filesystem
// supports it).
func Open(path string, size int64) (*Slab, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if size > 0 {
		fi, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		if fi.Size() < size {
			if err := f.Truncate(size); err != nil {
				_ = f.Close()
				return nil, err
			}
		}
	}
	return &Slab{path: path, f: f}, nil
}

// Path returns the slab's filesystem path.
func (s *Slab) Path() string { return s.path }

// WriteAt writes b at the given absolute offset. Segments are disjoint, so
// positional writes across segments never overlap in byte range; the
// mutex only protects against the shared handle's single cursor.
func (s *Slab) WriteAt(offset int64, b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Seek(offset, io.SeekStart); err != nil {
		return 0, err
	}
	return s.f.Write(b)
}

// File exposes the underlying *os.File for whole-file operations (hashing,
// final verification) that happen only after all segment tasks have
// finished writing.
func (s *Slab) File() *os.File { return s.f }

// Close closes the underlying file handle.
func (s *Slab) Close() error { return s.f.Close() }
