package path_test

import (
	"os"
	"path/filepath"
	"testing"

	kpath "github.com/openbraininstitute/entitykit/pkg/utils/path"
	"github.com/openbraininstitute/entitykit/pkg/utils/try"
)

func TestResolve(t *testing.T) {
	home := try.To(os.UserHomeDir()).OrFatal(t)
	pwd := try.To(os.Getwd()).OrFatal(t)

	theory := func(input string, expected string) func(*testing.T) {
		return func(t *testing.T) {
			actual := try.To(kpath.Resolve(input)).OrFatal(t)
			if actual != expected {
				t.Errorf("(actual, expected) = (%s, %s)", actual, expected)
			}
		}
	}

	t.Run("absolute path is kept", theory("/a/b/c", "/a/b/c"))
	t.Run("tilde is expanded into user home", theory("~/a/b/c", filepath.Join(home, "a/b/c")))
	t.Run("tilde alone is user home", theory("~", home))
	t.Run("relative path is resolved from working directory", theory("./a/b/c", filepath.Join(pwd, "a/b/c")))
	t.Run("tilde in the middle is not expanded", theory("a/~/c", filepath.Join(pwd, "a/~/c")))
}

func TestInHome(t *testing.T) {
	home := try.To(os.UserHomeDir()).OrFatal(t)
	actual := try.To(kpath.InHome(".entity", "profile")).OrFatal(t)
	if expected := filepath.Join(home, ".entity", "profile"); actual != expected {
		t.Errorf("(actual, expected) = (%s, %s)", actual, expected)
	}
}
