package utils

import (
	"os"
	"path/filepath"
	"strings"
)

// JoinPath joins path elements
func JoinPath(elem ...string) string {
	return filepath.Join(elem...)
}

// GetFileName returns the last element of the path
func GetFileName(path string) string {
	return filepath.Base(path)
}

// GetFileNameWithoutExtension returns the file name without its extension
// e.g., /data/ml/hotword.tflite => hotword
func GetFileNameWithoutExtension(path string) string {
	name := GetFileName(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// GetDir returns the parent dir of the path
func GetDir(path string) string {
	return filepath.Dir(path)
}

// HasFileExtension checks if the file name ends with the extension given, case insensitive
func HasFileExtension(path string, ext string) bool {
	return strings.EqualFold(filepath.Ext(path), ext)
}

// IsNonEmptyFile checks if a regular file exists at the path and has non-zero length
func IsNonEmptyFile(path string) bool {
	st, err := os.Stat(path)
	if err != nil {
		return false
	}

	return st.Mode().IsRegular() && st.Size() > 0
}

// StripPathPrefix removes the given prefix from a relative path, e.g., app/src/main/assets/x => src/main/assets/x
func StripPathPrefix(path string, prefix string) string {
	if len(prefix) == 0 {
		return path
	}
	return strings.TrimPrefix(path, prefix)
}
