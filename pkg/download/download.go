// Package download fetches files of resource distributions.
package download

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/labstack/gommon/log"
	"github.com/openbraininstitute/entitykit/pkg/forge"
	"github.com/openbraininstitute/entitykit/pkg/jsonld"
	"github.com/openbraininstitute/entitykit/pkg/utils/logger"
)

var ErrNoDistribution = fmt.Errorf("%w: resource does not have distributions to download", forge.ErrValidation)

// DefaultLocalRoots are roots of shared filesystems.
// Distributions located under them are copied without the store.
var DefaultLocalRoots = []string{"/gpfs"}

type option struct {
	link       bool
	localRoots []string
	logger     *log.Logger
	progress   func(name string, path string)
}

type Option func(*option) *option

// Link makes files on shared filesystems linked instead of copied.
func Link() Option {
	return func(o *option) *option {
		o.link = true
		return o
	}
}

// WithLocalRoots replaces DefaultLocalRoots.
func WithLocalRoots(roots ...string) Option {
	return func(o *option) *option {
		o.localRoots = roots
		return o
	}
}

func WithLogger(l *log.Logger) Option {
	return func(o *option) *option {
		o.logger = l
		return o
	}
}

// WithProgress sets a callback which is called for each downloaded file.
func WithProgress(f func(name string, path string)) Option {
	return func(o *option) *option {
		o.progress = f
		return o
	}
}

// Download fetches files of the distributions of a resource into outDir.
//
// Only DataDownloads with "contentUrl" are downloaded; others are skipped with warning.
// Files on shared filesystems are copied (or linked) directly,
// and other files are downloaded from the store.
//
// # Returns
//
// - map[string]string: file name -> downloaded path.
//
// - error
func Download(ctx context.Context, store forge.Store, id string, outDir string, options ...Option) (map[string]string, error) {
	opt := &option{localRoots: DefaultLocalRoots, logger: logger.Null()}
	for _, o := range options {
		opt = o(opt)
	}

	outDir, err := filepath.Abs(outDir)
	if err != nil {
		return nil, err
	}

	res, err := store.Retrieve(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if !res.Body.Has("distribution") {
		return nil, fmt.Errorf("%w: %s", ErrNoDistribution, id)
	}

	if err := os.MkdirAll(outDir, os.FileMode(0755)); err != nil {
		return nil, err
	}

	paths := map[string]string{}
	for _, d := range forge.Distributions(res.Body) {
		if !downloadable(d, opt.logger) {
			continue
		}
		name, _ := d.GetString("name")
		if name == "" {
			return nil, fmt.Errorf("%w: distribution without name: %s", forge.ErrValidation, d)
		}
		// names may carry directories, but files land flat in outDir.
		base := filepath.Base(name)
		if _, ok := paths[base]; ok {
			return nil, fmt.Errorf(
				"%w: multiple distributions found with the same filename: %s", forge.ErrValidation, base,
			)
		}

		var p string
		if src, ok := opt.local(d); ok {
			p = filepath.Join(outDir, base)
			opt.logger.Debugf("distribution %s is on shared filesystem: %s", name, src)
			if err := place(src, p, opt.link, opt.logger); err != nil {
				return nil, err
			}
		} else {
			opt.logger.Debugf("downloading %s from the store", name)
			p, err = store.Download(ctx, d, outDir)
			if err != nil {
				return nil, fmt.Errorf("downloading %s: %w", name, err)
			}
		}

		paths[base] = p
		if opt.progress != nil {
			opt.progress(base, p)
		}
	}
	return paths, nil
}

func downloadable(d *jsonld.Object, l *log.Logger) bool {
	t, _ := d.Get("type")
	if !slices.Contains(forge.StringOrList(t), forge.TypeDataDownload) {
		l.Warnf("distribution %s is not a DataDownload. skipped.", d)
		return false
	}
	if _, ok := d.GetString("contentUrl"); !ok {
		l.Warnf("distribution %s does not have a 'contentUrl'. skipped.", d)
		return false
	}
	return true
}

// path of the distribution when it is under one of local roots.
func (o *option) local(d *jsonld.Object) (string, bool) {
	loc, ok := forge.Location(d)
	if !ok || !strings.HasPrefix(loc, forge.FileURI) {
		return "", false
	}
	p := filepath.Clean(forge.WithoutFilePrefix(loc))
	for _, root := range o.localRoots {
		root = filepath.Clean(root)
		if p == root || strings.HasPrefix(p, root+string(filepath.Separator)) {
			return p, true
		}
	}
	return "", false
}

// place a file as dest, by copy or link. dest is replaced when it exists.
func place(src string, dest string, link bool, l *log.Logger) error {
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("source path %s: %w", src, err)
	}
	if _, err := os.Lstat(dest); err == nil {
		l.Infof("target %s already exists and will be replaced", dest)
		if err := os.Remove(dest); err != nil {
			return err
		}
	}

	if link {
		l.Debugf("link %s -> %s", src, dest)
		return os.Symlink(src, dest)
	}

	l.Debugf("copy %s -> %s", src, dest)
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(0644))
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
