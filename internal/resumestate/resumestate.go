// Package resumestate persists per-file segment progress as a JSON sidecar
// so a download can resume after a crash or cancellation.
package resumestate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrNotFound is returned by Load when no sidecar exists at path.
var ErrNotFound = errors.New("resumestate: not found")

// ErrCorrupt is returned by Load when the sidecar exists but fails to parse.
var ErrCorrupt = errors.New("resumestate: corrupt")

// PartState is the durable unit of segment progress.
//
// Invariants (enforced by callers in internal/engine, not here):
//   - start_byte <= current_byte <= end_byte + 1
//   - completed <=> current_byte == end_byte + 1
//   - segments form a contiguous partition of [0, total_size)
type PartState struct {
	Index       int   `json:"index"`
	StartByte   int64 `json:"start_byte"`
	EndByte     int64 `json:"end_byte"`
	CurrentByte int64 `json:"current_byte"`
	Completed   bool  `json:"completed"`
}

// DownloadState is the per-file durable record.
type DownloadState struct {
	URL       string      `json:"url"`
	TotalSize int64       `json:"total_size"`
	Parts     []PartState `json:"parts"`
}

// Store coalesces saves for one DownloadState to at most one write per
// ~250ms, with the in-memory state always authoritative for the live
// process; the coalescing window only bounds how quickly a crash-recovered
// read reflects the latest writes.
type Store struct {
	path string

	mu       sync.Mutex
	last     time.Time
	throttle time.Duration
}

// Open returns a Store bound to the sidecar path (typically
// "<final_path>.part.json"). It does not touch the filesystem.
func Open(path string) *Store {
	return &Store{path: path, throttle: 250 * time.Millisecond}
}

// Path returns the sidecar path this Store writes to.
func (s *Store) Path() string { return s.path }

// Load reads the sidecar. It returns ErrNotFound if absent, or ErrCorrupt if
// present but unparsable (callers discard and re-initialize on either).
func Load(path string) (DownloadState, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DownloadState{}, ErrNotFound
		}
		return DownloadState{}, fmt.Errorf("resumestate: read %s: %w", path, err)
	}
	var st DownloadState
	if err := json.Unmarshal(b, &st); err != nil {
		return DownloadState{}, ErrCorrupt
	}
	return st, nil
}

// Save writes st to the sidecar atomically: a temp file in the same
// directory is written, then renamed over the target. No fsync is
// performed, and none is required for correctness: a lost tail
// after a crash simply re-downloads a suffix of some segment, it never
// yields a state record pointing past truly-written bytes.
func (s *Store) Save(st DownloadState) error {
	return save(s.path, st)
}

// SaveThrottled behaves like Save but is a no-op if called again for the
// same Store within the coalescing window, unless force is true (callers
// pass force=true on segment completion so the final state is never
// dropped).
func (s *Store) SaveThrottled(st DownloadState, force bool) error {
	s.mu.Lock()
	now := time.Now()
	if !force && now.Sub(s.last) < s.throttle {
		s.mu.Unlock()
		return nil
	}
	s.last = now
	s.mu.Unlock()
	return save(s.path, st)
}

func save(path string, st DownloadState) error {
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Delete removes the sidecar. Called only after the slab is successfully
// committed, or after a hash mismatch (which invalidates recorded offsets).
func (s *Store) Delete() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Partition splits [0, totalSize) into n contiguous segments, the last
// absorbing the remainder. n <= 1 or totalSize < n collapses to a single
// segment covering the whole range.
func Partition(totalSize int64, n int) []PartState {
	if totalSize <= 0 {
		return nil
	}
	if n < 1 || int64(n) > totalSize {
		n = 1
	}
	parts := make([]PartState, 0, n)
	chunk := totalSize / int64(n)
	var start int64
	for i := 0; i < n; i++ {
		end := start + chunk - 1
		if i == n-1 {
			end = totalSize - 1
		}
		parts = append(parts, PartState{
			Index:       i,
			StartByte:   start,
			EndByte:     end,
			CurrentByte: start,
			Completed:   false,
		})
		start = end + 1
	}
	return parts
}
