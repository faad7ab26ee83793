package path

import (
	"errors"
	"os"
	"path/filepath"
)

var ErrNotFound = errors.New("file is not found in ancestors")

// SearchUpward looks for a regular file named fileName in root and its ancestors.
//
// The nearest one is returned.
func SearchUpward(root string, fileName string) (string, error) {
	for dir := filepath.Clean(root); ; {
		candidate := filepath.Join(dir, fileName)
		if s, err := os.Stat(candidate); err == nil && s.Mode().IsRegular() {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNotFound
		}
		dir = parent
	}
}
