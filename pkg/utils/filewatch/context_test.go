package filewatch_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/openbraininstitute/entitykit/pkg/utils/filewatch"
)

// wait for ctx to be done, until shortly before the test deadline (or 10 seconds).
func waitDone(t *testing.T, ctx context.Context) bool {
	t.Helper()
	timeout := 10 * time.Second
	if dl, ok := t.Deadline(); ok {
		timeout = time.Until(dl) - time.Second
	}
	select {
	case <-ctx.Done():
		return true
	case <-time.After(timeout):
		return false
	}
}

func TestUntilModifyContext(t *testing.T) {
	type when struct {
		watchDir bool
		modify   func(t *testing.T, file string)
	}

	theory := func(w when) func(*testing.T) {
		return func(t *testing.T) {
			dir := t.TempDir()
			file := filepath.Join(dir, "definition.yaml")
			if err := os.WriteFile(file, []byte("type: Entity\n"), 0644); err != nil {
				t.Fatal(err)
			}

			target := file
			if w.watchDir {
				target = dir
			}
			ctx, cancel, err := filewatch.UntilModifyContext(context.Background(), target)
			if err != nil {
				t.Fatal(err)
			}
			defer cancel()

			if err := ctx.Err(); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			w.modify(t, file)

			if !waitDone(t, ctx) {
				t.Fatal("context is not canceled")
			}
			if cause := context.Cause(ctx); cause == nil || !strings.Contains(cause.Error(), "is updated") {
				t.Errorf("unexpected cause: %v", cause)
			}
		}
	}

	write := func(t *testing.T, file string) {
		if err := os.WriteFile(file, []byte("type: Simulation\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	replace := func(t *testing.T, file string) {
		tmp := file + ".swp"
		if err := os.WriteFile(tmp, []byte("type: Simulation\n"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := os.Rename(tmp, file); err != nil {
			t.Fatal(err)
		}
	}
	remove := func(t *testing.T, file string) {
		if err := os.Remove(file); err != nil {
			t.Fatal(err)
		}
	}
	create := func(t *testing.T, file string) {
		if err := os.WriteFile(filepath.Join(filepath.Dir(file), "other"), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("when a watched file is written, it cancels context", theory(when{modify: write}))
	t.Run("when a watched file is replaced by rename, it cancels context", theory(when{modify: replace}))
	t.Run("when a watched file is removed, it cancels context", theory(when{modify: remove}))
	t.Run("when a file is created in a watched directory, it cancels context", theory(when{watchDir: true, modify: create}))
	t.Run("when a file in a watched directory is written, it cancels context", theory(when{watchDir: true, modify: write}))
}

func TestUntilModifyContext_UnrelatedFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "definition.yaml")
	if err := os.WriteFile(file, []byte("type: Entity\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel, err := filewatch.UntilModifyContext(context.Background(), file)
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	if err := os.WriteFile(filepath.Join(dir, "unrelated"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-ctx.Done():
		t.Fatalf("context is canceled by unrelated file: %v", context.Cause(ctx))
	case <-time.After(300 * time.Millisecond):
	}
}

func TestUntilModifyContext_NotExisting(t *testing.T) {
	_, _, err := filewatch.UntilModifyContext(context.Background(), filepath.Join(t.TempDir(), "nowhere"))
	if err == nil {
		t.Error("expected error, but nil")
	}
}
