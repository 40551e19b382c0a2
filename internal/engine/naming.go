package engine

import (
	"fmt"
	"math/rand"
	"net/url"
	"path"
	"strings"
)

// deriveFilename names the on-disk target from the URL path's final
// non-empty segment, falling back to a random name when the path yields
// nothing usable (e.g. a bare host or a trailing slash).
func deriveFilename(rawURL string) string {
	seg := lastPathSegment(rawURL)
	if seg == "" {
		seg = fmt.Sprintf("download_%d", rand.Int63())
	}
	return sanitizeFilename(seg)
}

func lastPathSegment(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	b := path.Base(p)
	if b == "" || b == "/" || b == "." {
		return ""
	}
	return b
}

// sanitizeFilename replaces any character outside [A-Za-z0-9._-] with '_'.
func sanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
