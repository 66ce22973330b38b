package xfs

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandTilde replaces a leading tilde (~) with the user's home directory.
func ExpandTilde(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}

	return path
}

// IsURL reports whether location carries a scheme, e.g. file:// or mem://.
func IsURL(location string) bool {
	return strings.Contains(location, "://")
}

// ToURL turns a local path into an absolute file:// URL. URLs are returned unchanged.
func ToURL(location string) (string, error) {
	if IsURL(location) {
		return location, nil
	}

	abs, err := filepath.Abs(ExpandTilde(location))
	if err != nil {
		return "", err
	}

	return "file://" + filepath.ToSlash(abs), nil
}
