package path_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	kpath "github.com/openbraininstitute/entitykit/pkg/utils/path"
	"github.com/openbraininstitute/entitykit/pkg/utils/try"
)

func TestSearchUpward(t *testing.T) {
	root := t.TempDir()
	deep := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(deep, 0755); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{
		filepath.Join(root, "target"),
		filepath.Join(root, "a", "b", "target"),
	} {
		if err := os.WriteFile(p, nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	// directories of the same name are not found
	if err := os.Mkdir(filepath.Join(deep, "target"), 0755); err != nil {
		t.Fatal(err)
	}

	theory := func(from string, expected string) func(*testing.T) {
		return func(t *testing.T) {
			actual := try.To(kpath.SearchUpward(from, "target")).OrFatal(t)
			if actual != expected {
				t.Errorf("(actual, expected) = (%s, %s)", actual, expected)
			}
		}
	}

	t.Run("the nearest one is found", theory(deep, filepath.Join(root, "a", "b", "target")))
	t.Run("the file in the directory itself", theory(filepath.Join(root, "a", "b"), filepath.Join(root, "a", "b", "target")))
	t.Run("the file in far ancestor", theory(filepath.Join(root, "a"), filepath.Join(root, "target")))

	t.Run("missing file", func(t *testing.T) {
		_, err := kpath.SearchUpward(deep, "no-such-file-for-test")
		if !errors.Is(err, kpath.ErrNotFound) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
