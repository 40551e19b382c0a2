// Package hasher computes streaming SHA-256 digests over finalized slabs
// and byte ranges within them, without side effects.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
)

const bufSize = 1 << 20 // 1 MiB

// HashReaderSHA256 computes the SHA-256 digest of r using a fixed buffer.
func HashReaderSHA256(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, bufSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashFileSHA256 computes the SHA-256 digest of the file at path.
func HashFileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	return HashReaderSHA256(f)
}

// HashRangeSHA256 computes the SHA-256 digest of the size bytes at start
// within f, restoring none of the file's prior seek position.
func HashRangeSHA256(f *os.File, start, size int64) (string, error) {
	if size < 0 {
		return "", errors.New("hasher: negative size")
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return "", err
	}
	h := sha256.New()
	buf := make([]byte, bufSize)
	if _, err := io.CopyBuffer(h, io.LimitReader(f, size), buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// EqualHex reports whether a and b are the same hex digest, case-insensitively.
func EqualHex(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 32
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 32
		}
		if ca != cb {
			return false
		}
	}
	return true
}
