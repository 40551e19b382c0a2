package engine

import (
	"fmt"
	"os"

	"segfetch/internal/config"
	"segfetch/internal/hasher"
	"segfetch/internal/resumestate"
)

// commit applies the verification gate and, on success, renames slabPath to
// finalPath and removes the sidecar. store may be nil (single-connection
// fallback has no segment state to delete).
func commit(deps Deps, store *resumestate.Store, job Job, finalPath, slabPath string) error {
	needHash := job.ExpectedHash != "" && deps.Verify != config.ModeOff

	if needHash {
		sum, err := hasher.HashFileSHA256(slabPath)
		if err != nil {
			return newErr(KindIOError, job.URL, err)
		}
		if !hasher.EqualHex(sum, job.ExpectedHash) {
			// Mismatch invalidates both the bytes and any recorded offsets.
			_ = os.Remove(slabPath)
			if store != nil {
				_ = store.Delete()
			}
			return newErr(KindHashMismatch, job.URL, fmt.Errorf("sha256 mismatch: expected %s got %s", job.ExpectedHash, sum))
		}
	}

	if err := os.Rename(slabPath, finalPath); err != nil {
		return newErr(KindIOError, job.URL, err)
	}
	if store != nil {
		_ = store.Delete()
	}
	return nil
}
