package strata

import (
	"fmt"
	"strings"
)

// Normalize canonicalizes a path into a slash-separated relative key.
//
// Backslashes become forward slashes, leading and trailing slashes are
// stripped, and internal runs of slashes collapse to one. The empty string
// normalizes to the empty key. Paths containing a '.' or '..' segment after
// collapsing fail with ErrInvalidPath; directory traversal is rejected, not
// resolved.
//
// Normalization is idempotent: normalizing an already-normalized key
// returns it unchanged.
func Normalize(path string) (string, error) {
	result := strings.ReplaceAll(path, "\\", "/")
	result = strings.Trim(result, "/")

	for strings.Contains(result, "//") {
		result = strings.ReplaceAll(result, "//", "/")
	}

	for _, segment := range strings.Split(result, "/") {
		if segment == "." || segment == ".." {
			return "", fmt.Errorf("path %q contains a '.' or '..' segment: %w", path, ErrInvalidPath)
		}
	}

	return result, nil
}

// NormalizeBytes normalizes a byte-slice path. The bytes must be ASCII;
// any byte outside the ASCII range fails with ErrInvalidPath.
func NormalizeBytes(path []byte) (string, error) {
	for _, b := range path {
		if b >= 0x80 {
			return "", fmt.Errorf("path %q is not ASCII: %w", path, ErrInvalidPath)
		}
	}
	return Normalize(string(path))
}
