package entity

import (
	_ "embed"
	"fmt"
	"slices"
	"sync"

	"github.com/openbraininstitute/entitykit/pkg/jsonld"
)

//go:embed default_params.yaml
var defaultParams []byte

// Defaults is a table of default field values per type name.
//
// It is not changed after construction.
type Defaults struct {
	byType map[string]*jsonld.Object
}

func newDefaults(doc *jsonld.Object, source string) (*Defaults, error) {
	d := &Defaults{byType: map[string]*jsonld.Object{}}
	for typ, v := range doc.Iter() {
		if v == nil {
			continue
		}
		values, ok := v.(*jsonld.Object)
		if !ok {
			return nil, fmt.Errorf("%s: defaults for %s should be a mapping, but %s", source, typ, jsonld.TypeName(v))
		}
		d.byType[typ] = values.Clone()
	}
	return d, nil
}

// ParseDefaults reads a defaults table in YAML.
func ParseDefaults(buf []byte) (*Defaults, error) {
	doc, err := jsonld.Parse(".yaml", buf)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return &Defaults{byType: map[string]*jsonld.Object{}}, nil
	}
	obj, ok := doc.(*jsonld.Object)
	if !ok {
		return nil, fmt.Errorf("defaults should be a mapping, but %s", jsonld.TypeName(doc))
	}
	return newDefaults(obj, "defaults")
}

// LoadDefaults reads a defaults table from a YAML or JSON file.
func LoadDefaults(path string) (*Defaults, error) {
	doc, err := jsonld.ReadObjectFile(path)
	if err != nil {
		return nil, err
	}
	return newDefaults(doc, path)
}

var builtinDefaults = sync.OnceValue(func() *Defaults {
	d, err := ParseDefaults(defaultParams)
	if err != nil {
		panic(err)
	}
	return d
})

// DefaultDefaults returns the built-in defaults table.
func DefaultDefaults() *Defaults {
	return builtinDefaults()
}

// For returns a copy of default values for the type name.
//
// It is empty when the table has nothing for the type.
func (d *Defaults) For(typeName string) *jsonld.Object {
	if d == nil {
		return jsonld.NewObject()
	}
	v, ok := d.byType[typeName]
	if !ok {
		return jsonld.NewObject()
	}
	return v.Clone()
}

// Types returns type names which have defaults, sorted.
func (d *Defaults) Types() []string {
	if d == nil {
		return nil
	}
	ret := make([]string, 0, len(d.byType))
	for k := range d.byType {
		ret = append(ret, k)
	}
	slices.Sort(ret)
	return ret
}
