package utils

import (
	"path/filepath"
	"strings"
)

// FindFilePathCharacters checks if a string contains illegal file path characters like ".." or a path separator.
// Both the OS separator and "/" are checked because the same labels address S3 keys.
func FindFilePathCharacters(s string) bool {
	return strings.Contains(s, "..") || strings.ContainsRune(s, filepath.Separator) || strings.ContainsRune(s, '/')
}

// MegaBytes converts a byte count to mebibytes for human-readable size diagnostics.
func MegaBytes(size int64) float64 {
	return float64(size) / (1024 * 1024)
}
