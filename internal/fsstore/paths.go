package fsstore

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	lockDirName    = ".fslocks"
	lockNameMaxLen = 120
)

func normalizePath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	return filepath.Clean(path), nil
}

// lockPathFor places the lock for target at "<dir>/.fslocks/<base>.lck",
// with the base lowercased and anything outside [a-z0-9._-] replaced by '_'.
func lockPathFor(target string) (string, error) {
	base := strings.ToLower(filepath.Base(target))
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, base)
	base = strings.Trim(base, ".")
	switch {
	case base == "":
		return "", fmt.Errorf("%w: no lock name for %s", ErrInvalidPath, target)
	case len(base) > lockNameMaxLen:
		return "", fmt.Errorf("%w: lock name too long for %s", ErrInvalidPath, target)
	}
	return filepath.Join(filepath.Dir(target), lockDirName, base+".lck"), nil
}
