package filewatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// UntilModifyContext returns a context that is canceled
// when one of target files is modified (= written, created, removed, or renamed).
//
// Files are watched through their directories, so files replaced by
// editors (written to a new file, then renamed) are also noticed.
// When a target is a directory, any change in the directory cancels the context.
//
// # Args
//
// - ctx: context.Context
//
// - targetFilePath ...string: paths to be watched.
//
// # Returns
//
// - context.Context: context that is canceled when one of targets is modified.
// context.Cause tells which one.
//
// - func(): cancel function.
//
// - error: error caused when it fails to start watching files.
//
// If error is not nil, both of the the context and the cancel function are nil.
func UntilModifyContext(ctx context.Context, targetFilePath ...string) (context.Context, func(), error) {
	cctx, cancel := context.WithCancelCause(ctx)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		cancel(err)
		return nil, nil, err
	}

	// watched path -> true for directories watched as they are
	targets := map[string]bool{}
	dirs := map[string]struct{}{}
	for _, f := range targetFilePath {
		abs, err := filepath.Abs(f)
		if err != nil {
			w.Close()
			cancel(err)
			return nil, nil, err
		}
		if err := w.Add(abs); err != nil {
			w.Close()
			cancel(err)
			return nil, nil, err
		}
		isDir := isDirectory(abs)
		targets[abs] = isDir
		if !isDir {
			dirs[filepath.Dir(abs)] = struct{}{}
		}
	}
	for d := range dirs {
		if err := w.Add(d); err != nil {
			w.Close()
			cancel(err)
			return nil, nil, err
		}
	}

	go func() {
		defer w.Close()

		for {
			select {
			case <-cctx.Done():
				return
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				cancel(err)
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if !concerns(targets, event.Name) {
					continue
				}
				cancel(fmt.Errorf("%s is updated (%s)", event.Name, event.Op.String()))
			}
		}
	}()

	return cctx, func() { cancel(nil) }, nil
}

func concerns(targets map[string]bool, name string) bool {
	name = filepath.Clean(name)
	if _, ok := targets[name]; ok {
		return true
	}
	isDir, ok := targets[filepath.Dir(name)]
	return ok && isDir
}

func isDirectory(p string) bool {
	s, err := os.Stat(p)
	return err == nil && s.IsDir()
}
