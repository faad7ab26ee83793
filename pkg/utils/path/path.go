package path

import (
	"os"
	"path/filepath"
	"strings"
)

const tilde = "~" + string(filepath.Separator)

// Resolve returns absolute representation of path, with expanding "~" to user's home directory.
func Resolve(pathstring string) (string, error) {
	if pathstring == "~" || strings.HasPrefix(pathstring, tilde) {
		homedir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		pathstring = filepath.Join(homedir, strings.TrimPrefix(pathstring[1:], string(filepath.Separator)))
	}
	return filepath.Abs(pathstring)
}

// InHome returns a path under the user's home directory.
func InHome(elem ...string) (string, error) {
	homedir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{homedir}, elem...)...), nil
}
