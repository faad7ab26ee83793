// Package register submits entities to a store.
package register

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/labstack/gommon/log"
	"github.com/openbraininstitute/entitykit/pkg/entity"
	"github.com/openbraininstitute/entitykit/pkg/forge"
	"github.com/openbraininstitute/entitykit/pkg/jsonld"
	"github.com/openbraininstitute/entitykit/pkg/utils/logger"
)

type option struct {
	dryRun   bool
	validate bool
	logger   *log.Logger
}

type Option func(*option) *option

// DryRun makes Register build the resource without submitting it.
//
// Files are described locally, not uploaded.
func DryRun() Option {
	return func(o *option) *option {
		o.dryRun = true
		return o
	}
}

// Validate makes the store check the resource against the schema of its type.
func Validate() Option {
	return func(o *option) *option {
		o.validate = true
		return o
	}
}

func WithLogger(l *log.Logger) Option {
	return func(o *option) *option {
		o.logger = l
		return o
	}
}

func buildOption(options []Option) *option {
	opt := &option{logger: logger.Null()}
	for _, o := range options {
		opt = o(opt)
	}
	return opt
}

// Register builds a resource from the entity and submits it once.
//
// # Returns
//
// - *forge.Resource: built resource. Its id is set only when it is submitted.
//
// - error: *forge.RegistrationFailure when the store rejects the resource.
// Other errors are from formatting the entity or from the store transport.
func Register(ctx context.Context, store forge.Store, e *entity.Entity, options ...Option) (*forge.Resource, error) {
	opt := buildOption(options)

	if opt.dryRun {
		store = forge.DryRun(store)
	}

	res, err := e.ToResource(ctx, store)
	if err != nil {
		return nil, err
	}

	if opt.dryRun {
		opt.logger.Debugf("dry run: %s is not submitted", e.SchemaType())
		return res, nil
	}

	schemaID := ""
	if opt.validate {
		id, err := store.SchemaID(ctx, e.SchemaType())
		switch {
		case err == nil:
			schemaID = id
		case errors.Is(err, forge.ErrNoSchema):
			opt.logger.Infof("no schema for %s. registering without validation", e.SchemaType())
		default:
			return nil, err
		}
	}

	opt.logger.Debugf("registering %s (schema: '%s')", e.SchemaType(), schemaID)
	if err := forge.Submit(ctx, store, res, schemaID); err != nil {
		return nil, err
	}
	opt.logger.Infof("registered: %s", res.ID())
	return res, nil
}

// RegisterFile reads a definition file (YAML or JSON) and registers it.
//
// Relative paths in the definition are resolved against the directory of the file.
func RegisterFile(
	ctx context.Context,
	store forge.Store,
	reg *entity.Registry,
	defaults *entity.Defaults,
	path string,
	options ...Option,
) (*entity.Entity, *forge.Resource, error) {
	e, err := ParseFile(reg, defaults, path)
	if err != nil {
		return nil, nil, err
	}
	res, err := Register(ctx, store, e, options...)
	if err != nil {
		return e, nil, err
	}
	return e, res, nil
}

// ParseFile reads a definition file and validates it.
func ParseFile(reg *entity.Registry, defaults *entity.Defaults, path string) (*entity.Entity, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	def, err := jsonld.ReadObjectFile(abs)
	if err != nil {
		return nil, err
	}
	e, err := entity.Parse(reg, defaults, def, entity.WithBaseDir(filepath.Dir(abs)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return e, nil
}
