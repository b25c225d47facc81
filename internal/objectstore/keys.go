package objectstore

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PhotoPrefix is the key prefix shared by every listing photo.
const PhotoPrefix = "media"

// PhotoKey returns the object key for the photo in slot (0-based):
// media/{category}/{ownerID}_{epochSeconds}_{slot+1}.png
// The .png extension is fixed regardless of the encoded format.
func PhotoKey(category, ownerID string, at time.Time, slot int) string {
	return fmt.Sprintf("%s/%s/%s_%s_%d.png",
		PhotoPrefix,
		sanitizeSegment(category),
		sanitizeSegment(ownerID),
		strconv.FormatInt(at.Unix(), 10),
		slot+1,
	)
}

// sanitizeSegment keeps a path segment to [A-Za-z0-9._-]; anything else
// becomes '-'. An empty segment becomes "_".
func sanitizeSegment(s string) string {
	if s == "" {
		return "_"
	}
	out := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			return r
		default:
			return '-'
		}
	}, s)
	if out == "." || out == ".." {
		return strings.Repeat("_", len(out))
	}
	return out
}

func checkKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}
