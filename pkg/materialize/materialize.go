// Package materialize expands grouped datasets into local paths.
package materialize

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/labstack/gommon/log"
	"github.com/openbraininstitute/entitykit/pkg/forge"
	"github.com/openbraininstitute/entitykit/pkg/jsonld"
	"github.com/openbraininstitute/entitykit/pkg/utils/logger"
)

const METypeDensity = "https://bbp.epfl.ch/ontologies/core/bmo/METypeDensity"

type option struct {
	outputFile string
	logger     *log.Logger
}

type Option func(*option) *option

// WithOutputFile makes the result also written to path, as JSON.
func WithOutputFile(path string) Option {
	return func(o *option) *option {
		o.outputFile = path
		return o
	}
}

func WithLogger(l *log.Logger) Option {
	return func(o *option) *option {
		o.logger = l
		return o
	}
}

type materializer func(ctx context.Context, store forge.Store, res *forge.Resource, l *log.Logger) (*jsonld.Object, error)

var materializers = map[string]materializer{
	METypeDensity: meTypeDensities,
}

// Supported returns ontological types which can be materialized.
func Supported() []string {
	ret := make([]string, 0, len(materializers))
	for k := range materializers {
		ret = append(ret, k)
	}
	sort.Strings(ret)
	return ret
}

// Materialize resolves a grouped dataset resource into a nested mapping.
//
// The materializer is chosen by the first "about" of the resource.
// For METypeDensity, the result is
//
//	{mtype id: {label, etypes: {etype id: {label, path}}}}
//
// where path is the local path of the density file.
func Materialize(ctx context.Context, store forge.Store, id string, options ...Option) (*jsonld.Object, error) {
	opt := &option{logger: logger.Null()}
	for _, o := range options {
		opt = o(opt)
	}

	res, err := store.Retrieve(ctx, id, true)
	if err != nil {
		return nil, err
	}

	v, _ := res.Body.Get("about")
	about := forge.StringOrList(v)
	if len(about) == 0 {
		return nil, fmt.Errorf(
			"%w: resource %s must have an 'about' entry with the ontological type",
			forge.ErrMaterialization, id,
		)
	}
	m, ok := materializers[about[0]]
	if !ok {
		return nil, fmt.Errorf(
			"%w: ontological type %s is not supported for materialization. supported types: %s",
			forge.ErrMaterialization, about[0], strings.Join(Supported(), ", "),
		)
	}

	groups, err := m(ctx, store, res, opt.logger)
	if err != nil {
		return nil, err
	}

	if opt.outputFile != "" {
		if err := jsonld.WriteFile(opt.outputFile, groups); err != nil {
			return nil, err
		}
		opt.logger.Infof("written: %s", opt.outputFile)
	}
	return groups, nil
}

func meTypeDensities(ctx context.Context, store forge.Store, res *forge.Resource, l *log.Logger) (*jsonld.Object, error) {
	dataset, err := forge.LoadDataset(res)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", forge.ErrMaterialization, err)
	}

	mtypes, err := parts(dataset, "dataset")
	if err != nil {
		return nil, err
	}

	groups := jsonld.NewObject()
	for _, mtype := range mtypes {
		mtypeID, mtypeLabel, err := idAndLabel(mtype, "mtype")
		if err != nil {
			return nil, err
		}
		etypes, err := parts(mtype, "mtype "+mtypeID)
		if err != nil {
			return nil, err
		}

		etypeGroups := jsonld.NewObject()
		for _, etype := range etypes {
			etypeID, etypeLabel, err := idAndLabel(etype, "etype")
			if err != nil {
				return nil, err
			}
			densities, err := parts(etype, "etype "+etypeID)
			if err != nil {
				return nil, err
			}
			if len(densities) == 0 {
				return nil, fmt.Errorf("%w: etype %s has no density", forge.ErrMaterialization, etypeID)
			}
			densityID, err := DensityID(densities[0])
			if err != nil {
				return nil, err
			}
			p, err := densityPath(ctx, store, densityID)
			if err != nil {
				return nil, err
			}
			etypeGroups.Set(etypeID, jsonld.NewObject(
				jsonld.P("label", etypeLabel),
				jsonld.P("path", p),
			))
			l.Debugf("MType: %s, EType: %s, Density Path: %s", mtypeLabel, etypeLabel, p)
		}

		groups.Set(mtypeID, jsonld.NewObject(
			jsonld.P("label", mtypeLabel),
			jsonld.P("etypes", etypeGroups),
		))
	}
	return groups, nil
}

// DensityID returns the id of a density entry, qualified with its revision.
//
// When the entry has "_rev" and the id is not qualified, "?rev=N" is appended.
// An id qualified with a revision other than "_rev" is an error.
func DensityID(entry *jsonld.Object) (string, error) {
	id, ok := entry.GetString("@id")
	if !ok {
		return "", fmt.Errorf("%w: density entry without '@id': %s", forge.ErrMaterialization, entry)
	}
	v, ok := entry.Get("_rev")
	if !ok {
		return id, nil
	}
	rev, ok := forge.Revision(v)
	if !ok {
		return "", fmt.Errorf("%w: %s: '_rev' should be an integer, but %v", forge.ErrMaterialization, id, v)
	}
	if _, explicit, qualified := forge.RevisionOf(id); qualified {
		if explicit != rev {
			return "", fmt.Errorf(
				"%w: %w: %s has revision %d, but '_rev' is %d",
				forge.ErrMaterialization, forge.ErrGraphClone, id, explicit, rev,
			)
		}
		return id, nil
	}
	return fmt.Sprintf("%s?rev=%d", id, rev), nil
}

func densityPath(ctx context.Context, store forge.Store, id string) (string, error) {
	density, err := store.Retrieve(ctx, id, true)
	if err != nil {
		return "", fmt.Errorf("density %s: %w", id, err)
	}
	for _, d := range forge.Distributions(density.Body) {
		if loc, ok := forge.Location(d); ok {
			return forge.WithoutFilePrefix(loc), nil
		}
	}
	return "", fmt.Errorf("%w: density %s has no distribution location", forge.ErrMaterialization, id)
}

func parts(obj *jsonld.Object, where string) ([]*jsonld.Object, error) {
	v, ok := obj.Get("hasPart")
	if !ok {
		return nil, fmt.Errorf("%w: %s has no 'hasPart'", forge.ErrMaterialization, where)
	}
	var list []any
	switch t := v.(type) {
	case []any:
		list = t
	case *jsonld.Object:
		list = []any{t}
	default:
		return nil, fmt.Errorf("%w: %s: 'hasPart' should be a list, but %s", forge.ErrMaterialization, where, jsonld.TypeName(v))
	}
	ret := make([]*jsonld.Object, 0, len(list))
	for i, e := range list {
		o, ok := e.(*jsonld.Object)
		if !ok {
			return nil, fmt.Errorf("%w: %s: hasPart[%d] should be an object, but %s", forge.ErrMaterialization, where, i, jsonld.TypeName(e))
		}
		ret = append(ret, o)
	}
	return ret, nil
}

func idAndLabel(obj *jsonld.Object, what string) (string, string, error) {
	id, ok := obj.GetString("@id")
	if !ok {
		return "", "", fmt.Errorf("%w: %s without '@id': %s", forge.ErrMaterialization, what, obj)
	}
	label, _ := obj.GetString("label")
	return id, label, nil
}
