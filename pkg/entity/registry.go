package entity

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/openbraininstitute/entitykit/pkg/forge"
	"github.com/openbraininstitute/entitykit/pkg/jsonld"
)

// Class is a schema resolved in a Registry.
type Class struct {
	schema Schema

	// fields including inherited ones. Ancestors' fields come first.
	fields []Field

	// names from this class up to the root
	ancestors []string
}

func (c *Class) Name() string {
	return c.schema.Name
}

func (c *Class) Parent() string {
	return c.schema.Parent
}

func (c *Class) Abstract() bool {
	return c.schema.Abstract
}

// Fields returns the field declarations including inherited ones.
func (c *Class) Fields() []Field {
	return slices.Clone(c.fields)
}

// Field looks up a field declaration by name.
func (c *Class) Field(name string) (Field, bool) {
	for _, f := range c.fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Ancestors returns names of this class and its ancestors, nearest first.
func (c *Class) Ancestors() []string {
	return slices.Clone(c.ancestors)
}

// Registry is an immutable set of schemas.
type Registry struct {
	classes map[string]*Class
}

// NewRegistry resolves inheritance among schemas.
//
// It is an error when a parent or a nested schema is not in schemas,
// a name is declared twice, a field overrides an inherited one,
// or the inheritance has a cycle.
func NewRegistry(schemas ...Schema) (*Registry, error) {
	decl := map[string]Schema{}
	for _, s := range schemas {
		if _, ok := decl[s.Name]; ok {
			return nil, fmt.Errorf("schema %s is declared twice", s.Name)
		}
		decl[s.Name] = s
	}

	reg := &Registry{classes: map[string]*Class{}}
	var resolve func(name string, visiting []string) (*Class, error)
	resolve = func(name string, visiting []string) (*Class, error) {
		if c, ok := reg.classes[name]; ok {
			return c, nil
		}
		if slices.Contains(visiting, name) {
			return nil, fmt.Errorf("inheritance cycle: %s", strings.Join(append(visiting, name), " -> "))
		}
		s, ok := decl[name]
		if !ok {
			return nil, fmt.Errorf("schema %s is not declared", name)
		}

		c := &Class{schema: s, ancestors: []string{name}}
		if s.Parent != "" {
			parent, err := resolve(s.Parent, append(visiting, name))
			if err != nil {
				return nil, err
			}
			c.fields = slices.Clone(parent.fields)
			c.ancestors = append(c.ancestors, parent.ancestors...)
		}
		for _, f := range s.Fields {
			if _, dup := c.Field(f.Name); dup {
				return nil, fmt.Errorf("schema %s: field %s is declared twice", name, f.Name)
			}
			c.fields = append(c.fields, f)
		}
		reg.classes[name] = c
		return c, nil
	}

	for _, s := range schemas {
		if _, err := resolve(s.Name, nil); err != nil {
			return nil, err
		}
	}
	for _, c := range reg.classes {
		for _, f := range c.fields {
			if f.Kind != Nested {
				continue
			}
			if _, ok := reg.classes[f.Schema]; !ok {
				return nil, fmt.Errorf("schema %s: field %s refers unknown schema %s", c.Name(), f.Name, f.Schema)
			}
		}
	}
	return reg, nil
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	reg, err := NewRegistry(Schemas()...)
	if err != nil {
		panic(err)
	}
	return reg
})

// DefaultRegistry returns the registry of Schemas().
func DefaultRegistry() *Registry {
	return defaultRegistry()
}

func (r *Registry) Lookup(name string) (*Class, bool) {
	c, ok := r.classes[name]
	return c, ok
}

// Known returns the names of types which can be registered and listed, sorted.
func (r *Registry) Known() []string {
	ret := []string{}
	for name, c := range r.classes {
		if c.schema.Abstract || c.schema.Hidden {
			continue
		}
		ret = append(ret, name)
	}
	slices.Sort(ret)
	return ret
}

// IsDescendant reports whether a is b or a descendant of b.
func (r *Registry) IsDescendant(a, b string) bool {
	c, ok := r.classes[a]
	if !ok {
		return false
	}
	return slices.Contains(c.ancestors, b)
}

func notImplemented(name string) error {
	return fmt.Errorf("%w: Entity type not implemented: '%s'", forge.ErrUnknownType, name)
}

// Resolve decides the class of a definition from its "type" value.
//
// A string names the class. For a list of names, the most specific one
// among them is chosen; all of them should be on one inheritance chain.
func (r *Registry) Resolve(typ any) (*Class, error) {
	switch t := typ.(type) {
	case string:
		c, ok := r.classes[t]
		if !ok || c.schema.Abstract {
			return nil, notImplemented(t)
		}
		return c, nil
	case []any:
		names := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("%w: Incorrect type for 'type': %s", forge.ErrValidation, jsonld.TypeName(typ))
			}
			names = append(names, s)
		}
		return r.resolveList(names)
	case []string:
		return r.resolveList(t)
	default:
		return nil, fmt.Errorf("%w: Incorrect type for 'type': %s", forge.ErrValidation, jsonld.TypeName(typ))
	}
}

func (r *Registry) resolveList(names []string) (*Class, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: missing 'type' in definition", forge.ErrMissingField)
	}
	for _, n := range names {
		if _, ok := r.classes[n]; !ok {
			return nil, notImplemented(n)
		}
	}

	for _, candidate := range names {
		specific := true
		for _, other := range names {
			if !r.IsDescendant(candidate, other) {
				specific = false
				break
			}
		}
		if !specific {
			continue
		}
		c := r.classes[candidate]
		if c.schema.Abstract {
			return nil, notImplemented(candidate)
		}
		return c, nil
	}

	quoted := make([]string, len(names))
	for i := range names {
		quoted[i] = "'" + names[i] + "'"
	}
	return nil, fmt.Errorf(
		"%w: All the types [%s] need to exist in the same chain of inheritance",
		forge.ErrUnknownType, strings.Join(quoted, ", "),
	)
}

// GetType reads "type" of a definition.
//
// It should be a string or a list of strings.
func GetType(definition *jsonld.Object) (any, error) {
	typ, ok := definition.Get("type")
	if !ok || typ == nil {
		return nil, fmt.Errorf("%w: missing 'type' in definition", forge.ErrMissingField)
	}
	switch t := typ.(type) {
	case string:
		return t, nil
	case []any:
		for _, e := range t {
			if _, ok := e.(string); !ok {
				return nil, fmt.Errorf("%w: 'type' must be one of: str, List[str]", forge.ErrValidation)
			}
		}
		return t, nil
	}
	return nil, fmt.Errorf("%w: 'type' must be one of: str, List[str]", forge.ErrValidation)
}
