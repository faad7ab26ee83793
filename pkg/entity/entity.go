package entity

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/openbraininstitute/entitykit/pkg/forge"
	"github.com/openbraininstitute/entitykit/pkg/jsonld"
)

// Entity is a definition validated against its class.
type Entity struct {
	reg   *Registry
	class *Class

	// "type" (when given), coerced fields and extra fields, in definition order
	body *jsonld.Object
}

type parseOption struct {
	baseDir string
}

type ParseOption func(*parseOption) *parseOption

// WithBaseDir makes relative paths in the definition resolved against dir.
//
// Without this, relative paths are kept as they are.
func WithBaseDir(dir string) ParseOption {
	return func(po *parseOption) *parseOption {
		po.baseDir = dir
		return po
	}
}

// Parse validates a definition.
//
// The class is resolved from "type", then defaults for the class are
// merged (the definition wins), then each field is coerced and required
// fields are checked. Fields not declared by the class are kept as they are.
//
// defaults can be nil.
func Parse(reg *Registry, defaults *Defaults, definition *jsonld.Object, options ...ParseOption) (*Entity, error) {
	opt := &parseOption{}
	for _, o := range options {
		opt = o(opt)
	}

	typ, err := GetType(definition)
	if err != nil {
		return nil, err
	}
	class, err := reg.Resolve(typ)
	if err != nil {
		return nil, err
	}

	merged := defaults.For(class.Name())
	for k, v := range definition.Iter() {
		merged.Set(k, v)
	}

	body, err := reg.coerce(class, merged, convertOption{baseDir: opt.baseDir}, "")
	if err != nil {
		return nil, err
	}
	return &Entity{reg: reg, class: class, body: body}, nil
}

// Coerce applies the conversion of a field to a raw value.
//
// Relative paths are kept relative.
func (r *Registry) Coerce(f Field, v any) (any, error) {
	return r.convert(f, v, convertOption{}, f.Name)
}

func (r *Registry) coerce(class *Class, obj *jsonld.Object, opt convertOption, prefix string) (*jsonld.Object, error) {
	ret := jsonld.NewObject()
	if t, ok := obj.Get("type"); ok && t != nil {
		ret.Set("type", jsonld.DeepCopy(t))
	}
	for k, v := range obj.Iter() {
		if k == "type" || v == nil {
			continue
		}
		f, ok := class.Field(k)
		if !ok {
			ret.Set(k, jsonld.DeepCopy(v))
			continue
		}
		c, err := r.convert(f, v, opt, prefix+k)
		if err != nil {
			return nil, err
		}
		ret.Set(k, c)
	}

	for _, f := range class.fields {
		if f.Required && !ret.Has(f.Name) {
			return nil, fmt.Errorf(
				"%w: missing required field '%s%s' for %s",
				forge.ErrMissingField, prefix, f.Name, class.Name(),
			)
		}
	}
	return ret, nil
}

func (r *Registry) convert(f Field, v any, opt convertOption, path string) (any, error) {
	var ret any
	var err error
	switch f.Kind {
	case String:
		ret, err = convertString(v)
	case StringList:
		ret, err = convertStringList(v)
	case PathList:
		ret, err = opt.convertPathList(v)
	case Path:
		ret, err = opt.convertPath(v)
	case IDRef:
		ret, err = convertIDRef(v)
	case Distribution:
		ret, err = opt.convertDistribution(v)
	case Enum:
		ret, err = convertEnum(v, f.Values)
	case DataDownload:
		ret, err = opt.convertDataDownload(v)
	case DateTime:
		ret, err = convertDateTime(v)
	case Nested:
		nc, ok := r.classes[f.Schema]
		if !ok {
			return nil, fmt.Errorf("%s: unknown schema %s", path, f.Schema)
		}
		var obj *jsonld.Object
		switch t := v.(type) {
		case string:
			if nc.schema.StringField != "" {
				obj = jsonld.NewObject(jsonld.P(nc.schema.StringField, t))
			}
		case *jsonld.Object:
			obj = t
		}
		if obj == nil {
			expected := "dict type expected"
			if nc.schema.StringField != "" {
				expected = "str or dict type expected"
			}
			err := unsupported(expected, v)
			err.Field = path
			return nil, err
		}
		// nested errors carry their own path
		return r.coerce(nc, obj, opt, path+".")
	default:
		return nil, fmt.Errorf("%s: unknown field kind %d", path, f.Kind)
	}

	if err != nil {
		if uvt := (*UnsupportedValueType)(nil); errors.As(err, &uvt) {
			uvt.Field = path
			return nil, uvt
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ret, nil
}

func (e *Entity) Class() *Class {
	return e.class
}

// SchemaType is the type name used to look up a schema in a store.
func (e *Entity) SchemaType() string {
	return e.class.Name()
}

// Type returns "type" of the definition, or the class name when not given.
func (e *Entity) Type() any {
	if t, ok := e.body.Get("type"); ok {
		return jsonld.DeepCopy(t)
	}
	return e.class.Name()
}

// Get returns a coerced (or extra) field value.
func (e *Entity) Get(name string) (any, bool) {
	v, ok := e.body.Get(name)
	if !ok {
		return nil, false
	}
	return jsonld.DeepCopy(v), true
}

// Definition returns the coerced definition, without fetching anything.
func (e *Entity) Definition() *jsonld.Object {
	ret := jsonld.NewObject(jsonld.P("type", e.Type()))
	for k, v := range e.body.Iter() {
		if k == "type" {
			continue
		}
		ret.Set(k, jsonld.DeepCopy(v))
	}
	return ret
}

// FormattedDefinition renders the entity for submission.
//
// "type" comes first, then declared fields in declaration order, then extra
// fields in definition order. Ids are fetched from the store to be rendered
// with their types, and nested objects are rendered recursively.
func (e *Entity) FormattedDefinition(ctx context.Context, store forge.Store) (*jsonld.Object, error) {
	return e.reg.format(ctx, store, e.class, e.body, nil)
}

func (r *Registry) format(
	ctx context.Context, store forge.Store, class *Class, body *jsonld.Object, skip map[string]bool,
) (*jsonld.Object, error) {
	ret := jsonld.NewObject()
	if t, ok := body.Get("type"); ok {
		ret.Set("type", jsonld.DeepCopy(t))
	} else {
		ret.Set("type", class.Name())
	}

	for _, f := range class.fields {
		if skip[f.Name] {
			continue
		}
		v, ok := body.Get(f.Name)
		if !ok || v == nil {
			continue
		}
		switch f.Kind {
		case IDRef:
			fv, err := FormatIDs(ctx, store, forge.StringOrList(v))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f.Name, err)
			}
			ret.Set(f.Name, fv)
		case Nested:
			obj, ok := v.(*jsonld.Object)
			if !ok {
				return nil, fmt.Errorf("%s: %w: nested object is not coerced", f.Name, forge.ErrValidation)
			}
			nc := r.classes[f.Schema]
			fv, err := r.formatNested(ctx, store, nc, obj)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f.Name, err)
			}
			ret.Set(f.Name, fv)
		default:
			ret.Set(f.Name, jsonld.DeepCopy(v))
		}
	}

	for k, v := range body.Iter() {
		if k == "type" || v == nil {
			continue
		}
		if _, declared := class.Field(k); declared {
			continue
		}
		ret.Set(k, jsonld.DeepCopy(v))
	}
	return ret, nil
}

func (r *Registry) formatNested(ctx context.Context, store forge.Store, class *Class, body *jsonld.Object) (any, error) {
	if class.schema.Format != nil {
		return class.schema.Format(ctx, store, class, body)
	}
	return r.format(ctx, store, class, body, nil)
}

// FormatIDs fetches resources to render references with their types.
//
// One id is rendered as {id, type}, more ids as a list of them.
// It fails on the first id the store cannot find.
func FormatIDs(ctx context.Context, store forge.Store, ids []string) (any, error) {
	ret := make([]any, 0, len(ids))
	for _, id := range ids {
		r, err := store.Retrieve(ctx, id, true)
		if err != nil {
			return nil, err
		}
		typ, _ := r.Body.Get("type")
		ret = append(ret, jsonld.NewObject(
			jsonld.P("id", id),
			jsonld.P("type", jsonld.DeepCopy(typ)),
		))
	}
	if len(ret) == 1 {
		return ret[0], nil
	}
	return ret, nil
}

var singleFiles = []string{"configuration", "template", "target"}

// fields which are attached or linked onto the resource,
// instead of being rendered as values.
func (e *Entity) specialFields() map[string]bool {
	ret := map[string]bool{}
	mark := func(name string, kind Kind) {
		if f, ok := e.class.Field(name); ok && f.Kind == kind {
			ret[name] = true
		}
	}
	mark("distribution", Distribution)
	mark("derivation", IDRef)
	mark("image", PathList)
	for _, name := range singleFiles {
		mark(name, Path)
	}
	return ret
}

// ToResource builds a resource from the entity.
//
// Distributions, images and single file fields are attached to the store,
// and derivations are fetched to be linked.
func (e *Entity) ToResource(ctx context.Context, store forge.Store) (*forge.Resource, error) {
	special := e.specialFields()
	data, err := e.reg.format(ctx, store, e.class, e.body, special)
	if err != nil {
		return nil, err
	}
	res := forge.NewResource(data)

	if v, ok := e.body.Get("derivation"); ok && special["derivation"] {
		for _, id := range forge.StringOrList(v) {
			src, err := store.Retrieve(ctx, id, true)
			if err != nil {
				return nil, fmt.Errorf("derivation: %w", err)
			}
			addDerivation(res.Body, src)
		}
	}

	if v, ok := e.body.Get("image"); ok && special["image"] {
		for _, p := range forge.StringOrList(v) {
			dd, err := store.Attach(ctx, p, "")
			if err != nil {
				return nil, fmt.Errorf("image: attaching %s: %w", p, err)
			}
			addPart(res.Body, jsonld.NewObject(
				jsonld.P("type", "Dataset"),
				jsonld.P("name", filepath.Base(p)),
				jsonld.P("distribution", dd),
			))
		}
	}

	if v, ok := e.body.Get("distribution"); ok && special["distribution"] {
		entries, _ := v.([]any)
		for _, entry := range entries {
			d, _ := entry.(*jsonld.Object)
			p, ok := d.GetString("path")
			if !ok {
				return nil, fmt.Errorf("%w: distribution: entry without path: %s", forge.ErrValidation, d)
			}
			ct, _ := d.GetString("content_type")
			dd, err := store.Attach(ctx, p, ct)
			if err != nil {
				return nil, fmt.Errorf("distribution: attaching %s: %w", p, err)
			}
			forge.AddDistribution(res.Body, dd)
		}
	}

	for _, name := range singleFiles {
		if !special[name] {
			continue
		}
		p, ok := e.body.GetString(name)
		if !ok {
			continue
		}
		dd, err := store.Attach(ctx, p, "")
		if err != nil {
			return nil, fmt.Errorf("%s: attaching %s: %w", name, p, err)
		}
		res.Body.Set(name, dd)
	}

	return res, nil
}

// versioned id of a resource, "id?rev=N"
func versionedID(r *forge.Resource) string {
	id := r.ID()
	if r.Metadata == nil || r.Metadata.Rev == 0 || strings.Contains(id, "?rev=") {
		return id
	}
	return id + "?rev=" + strconv.Itoa(r.Metadata.Rev)
}

func addDerivation(body *jsonld.Object, src *forge.Resource) {
	typ, _ := src.Body.Get("type")
	d := jsonld.NewObject(
		jsonld.P("type", "Derivation"),
		jsonld.P("entity", jsonld.NewObject(
			jsonld.P("id", versionedID(src)),
			jsonld.P("type", jsonld.DeepCopy(typ)),
		)),
	)
	appendValue(body, "derivation", d)
}

func addPart(body *jsonld.Object, part *jsonld.Object) {
	v, ok := body.Get("hasPart")
	if !ok {
		body.Set("hasPart", []any{part})
		return
	}
	switch t := v.(type) {
	case []any:
		body.Set("hasPart", append(t, part))
	default:
		body.Set("hasPart", []any{t, part})
	}
}

// one value as it is, more values as a list
func appendValue(body *jsonld.Object, key string, v any) {
	cur, ok := body.Get(key)
	if !ok {
		body.Set(key, v)
		return
	}
	switch t := cur.(type) {
	case []any:
		body.Set(key, append(t, v))
	default:
		body.Set(key, []any{t, v})
	}
}
