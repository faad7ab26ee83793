// Package clone copies grouped datasets, and the resources they refer, between stores.
package clone

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/labstack/gommon/log"
	"github.com/openbraininstitute/entitykit/pkg/forge"
	"github.com/openbraininstitute/entitykit/pkg/jsonld"
	"github.com/openbraininstitute/entitykit/pkg/utils/logger"
)

// Engine clones resources from one store to another.
//
// An Engine is one run: resources cloned once are not cloned again
// by the same Engine. Nothing is rolled back on error.
//
// Engine is not safe for concurrent use.
type Engine struct {
	from   forge.Store
	to     forge.Store
	logger *log.Logger

	// source id (qualified with ?rev=N when revision is given) -> new id
	migrated map[string]string
}

type Option func(*Engine) *Engine

func WithLogger(l *log.Logger) Option {
	return func(e *Engine) *Engine {
		e.logger = l
		return e
	}
}

// New creates an Engine. When to is nil, resources are cloned within from.
func New(from forge.Store, to forge.Store, options ...Option) *Engine {
	if to == nil {
		to = from
	}
	e := &Engine{
		from:     from,
		to:       to,
		logger:   logger.Null(),
		migrated: map[string]string{},
	}
	for _, o := range options {
		e = o(e)
	}
	return e
}

// Migrated returns a copy of the mapping from source ids to cloned ids.
func (e *Engine) Migrated() map[string]string {
	ret := make(map[string]string, len(e.migrated))
	for k, v := range e.migrated {
		ret[k] = v
	}
	return ret
}

// CloneGroupedDataset clones resources referred from a dataset.
//
// The dataset is walked in document order. "hasPart" of an object is walked
// instead of the object itself. Other objects with "@id" are references:
// each of them is cloned and replaced with {"@id", "@type", "_rev": 1}.
//
// The given dataset is not modified; the cloned dataset is returned.
func (e *Engine) CloneGroupedDataset(ctx context.Context, dataset any) (any, error) {
	return e.walk(ctx, jsonld.DeepCopy(dataset))
}

func (e *Engine) walk(ctx context.Context, node any) (any, error) {
	switch t := node.(type) {
	case *jsonld.Object:
		if parts, ok := t.Get("hasPart"); ok {
			v, err := e.walk(ctx, parts)
			if err != nil {
				return nil, err
			}
			t.Set("hasPart", v)
			return t, nil
		}
		if t.Has("@id") {
			return e.reference(ctx, t)
		}
		for k, v := range t.Iter() {
			nv, err := e.walk(ctx, v)
			if err != nil {
				return nil, err
			}
			t.Set(k, nv)
		}
		return t, nil
	case []any:
		for i, v := range t {
			nv, err := e.walk(ctx, v)
			if err != nil {
				return nil, err
			}
			t[i] = nv
		}
		return t, nil
	case nil, string, bool, json.Number, int, int64, float64:
		return t, nil
	default:
		return nil, fmt.Errorf("%w: unsupported node: %T", forge.ErrGraphClone, node)
	}
}

// memo key of a reference.
func referenceKey(ref *jsonld.Object) (string, error) {
	v, _ := ref.Get("@id")
	id, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: '@id' should be a string, but %s", forge.ErrGraphClone, jsonld.TypeName(v))
	}
	rev, hasRev := ref.Get("_rev")
	if !hasRev {
		return id, nil
	}
	n, ok := forge.Revision(rev)
	if !ok {
		return "", fmt.Errorf("%w: %s: '_rev' should be an integer, but %v", forge.ErrGraphClone, id, rev)
	}
	if _, explicit, qualified := forge.RevisionOf(id); qualified {
		if explicit != n {
			return "", fmt.Errorf(
				"%w: %s has revision %d, but '_rev' is %d", forge.ErrGraphClone, id, explicit, n,
			)
		}
		return id, nil
	}
	return fmt.Sprintf("%s?rev=%d", id, n), nil
}

func (e *Engine) reference(ctx context.Context, ref *jsonld.Object) (*jsonld.Object, error) {
	key, err := referenceKey(ref)
	if err != nil {
		return nil, err
	}

	newID, err := e.memoized(ctx, key, true)
	if err != nil {
		return nil, err
	}

	ret := jsonld.NewObject(jsonld.P("@id", newID))
	if typ, ok := ref.Get("@type"); ok {
		ret.Set("@type", jsonld.DeepCopy(typ))
	}
	ret.Set("_rev", 1)
	return ret, nil
}

// memoized clones the resource of key once per Engine.
//
// A resource first cloned as a nested one is not cloned again when it is
// referenced later, and vice versa.
func (e *Engine) memoized(ctx context.Context, key string, recurse bool) (string, error) {
	if newID, ok := e.migrated[key]; ok {
		e.logger.Debugf("already cloned: %s -> %s", key, newID)
		return newID, nil
	}
	e.logger.Debugf("cloning: %s", key)
	newID, err := e.cloneResource(ctx, key, recurse)
	if err != nil {
		return "", err
	}
	e.migrated[key] = newID
	return newID, nil
}

// CloneResource clones a resource and returns the id of the new one.
//
// Objects with "id" in top-level fields of the resource are cloned too,
// one level deep. Distributions are attached again to the destination,
// from their locations.
func (e *Engine) CloneResource(ctx context.Context, id string) (string, error) {
	return e.memoized(ctx, id, true)
}

func (e *Engine) cloneResource(ctx context.Context, id string, recurse bool) (string, error) {
	old, err := e.from.Retrieve(ctx, id, true)
	if err != nil {
		return "", fmt.Errorf("cloning %s: %w", id, err)
	}

	body := old.AsJSON(false)
	body.Delete("id")

	if recurse {
		for k, v := range body.Iter() {
			nested, ok := v.(*jsonld.Object)
			if !ok || k == "distribution" {
				continue
			}
			nid, ok := nested.GetString("id")
			if !ok {
				continue
			}
			cloned, err := e.memoized(ctx, nid, false)
			if err != nil {
				return "", fmt.Errorf("%s.%s: %w", id, k, err)
			}
			nested.Set("id", cloned)
		}
	}

	if dv, ok := body.Get("distribution"); ok {
		dists := forge.Distributions(old.Body)
		attached := make([]any, 0, len(dists))
		for _, d := range dists {
			dd, err := e.attachExisting(ctx, d)
			if err != nil {
				return "", fmt.Errorf("cloning %s: %w", id, err)
			}
			attached = append(attached, dd)
		}
		if _, single := dv.(*jsonld.Object); single && len(attached) == 1 {
			body.Set("distribution", attached[0])
		} else {
			body.Set("distribution", attached)
		}
	}

	res := forge.NewResource(body)
	if err := forge.Submit(ctx, e.to, res, ""); err != nil {
		return "", err
	}
	e.logger.Infof("cloned: %s -> %s", id, res.ID())
	return res.ID(), nil
}

// attach the file of a distribution to the destination, from its location.
func (e *Engine) attachExisting(ctx context.Context, d *jsonld.Object) (*jsonld.Object, error) {
	loc, ok := forge.Location(d)
	if !ok {
		return nil, fmt.Errorf("%w: distribution without atLocation.location: %s", forge.ErrGraphClone, d)
	}
	ct, _ := d.GetString("encodingFormat")
	return e.to.Attach(ctx, forge.WithoutFilePrefix(loc), ct)
}

// CloneGroupedDatasetResource clones a resource whose distribution is a grouped dataset.
//
// The dataset is cloned with CloneGroupedDataset, and attached to the new
// resource as a JSON file. The other fields of the resource are copied.
func (e *Engine) CloneGroupedDatasetResource(ctx context.Context, r *forge.Resource) (*forge.Resource, error) {
	dataset, err := forge.LoadDataset(r)
	if err != nil {
		return nil, err
	}
	name := "dataset.json"
	if d := forge.Distributions(r.Body); len(d) == 1 {
		if n, ok := d[0].GetString("name"); ok && n != "" {
			name = filepath.Base(n)
		}
	}

	cloned, err := e.CloneGroupedDataset(ctx, dataset)
	if err != nil {
		return nil, err
	}

	body := r.AsJSON(false)
	body.Delete("id")
	res := forge.NewResource(body)

	tmp, err := os.MkdirTemp("", "entity-clone-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmp)

	p := filepath.Join(tmp, name)
	if err := jsonld.WriteFile(p, cloned); err != nil {
		return nil, err
	}
	dd, err := e.to.Attach(ctx, p, "application/json")
	if err != nil {
		return nil, err
	}
	body.Set("distribution", dd)

	if err := forge.Submit(ctx, e.to, res, ""); err != nil {
		return nil, err
	}
	return res, nil
}
