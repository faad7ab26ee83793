package jsonld

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrUnknownFormat = errors.New("unknown file format")

// Decode reads one JSON document.
//
// Objects are decoded as *Object, arrays as []any and numbers as json.Number.
func Decode(r io.Reader) (any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected trailing data after json document")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := NewObject()
			for dec.More() {
				ktok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := ktok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is expected, but got %v", ktok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				obj.Set(key, val)
			}
			if _, err := dec.Token(); err != nil { // '}'
				return nil, err
			}
			return obj, nil
		case '[':
			arr := []any{}
			for dec.More() {
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil { // ']'
				return nil, err
			}
			return arr, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %v", t)
		}
	default:
		return tok, nil
	}
}

// FromYAML converts a yaml node tree into *Object, []any and scalars.
//
// Timestamps are kept as strings, as they are written.
func FromYAML(n *yaml.Node) (any, error) {
	switch n.Kind {
	case 0:
		// empty document
		return nil, nil
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return FromYAML(n.Content[0])
	case yaml.AliasNode:
		return FromYAML(n.Alias)
	case yaml.MappingNode:
		obj := NewObject()
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			if k.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: mapping key should be scalar", k.Line)
			}
			val, err := FromYAML(v)
			if err != nil {
				return nil, err
			}
			obj.Set(k.Value, val)
		}
		return obj, nil
	case yaml.SequenceNode:
		arr := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			val, err := FromYAML(c)
			if err != nil {
				return nil, err
			}
			arr = append(arr, val)
		}
		return arr, nil
	case yaml.ScalarNode:
		if n.ShortTag() == "!!timestamp" {
			return n.Value, nil
		}
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("line %d: unsupported yaml node", n.Line)
	}
}

func (o *Object) UnmarshalYAML(n *yaml.Node) error {
	v, err := FromYAML(n)
	if err != nil {
		return err
	}
	obj, ok := v.(*Object)
	if !ok {
		return fmt.Errorf("line %d: mapping is expected, but got %s", n.Line, TypeName(v))
	}
	*o = *obj
	return nil
}

// Parse decodes buf as the format named by ext (".json", ".yml" or ".yaml").
func Parse(ext string, buf []byte) (any, error) {
	switch strings.ToLower(ext) {
	case ".json":
		return Decode(bytes.NewReader(buf))
	case ".yml", ".yaml":
		n := new(yaml.Node)
		if err := yaml.Unmarshal(buf, n); err != nil {
			return nil, err
		}
		return FromYAML(n)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, ext)
	}
}

// ReadFile parses a YAML or JSON file into a document tree.
func ReadFile(path string) (any, error) {
	ext := filepath.Ext(path)
	switch strings.ToLower(ext) {
	case ".json", ".yml", ".yaml":
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	v, err := Parse(ext, buf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

// ReadObjectFile is ReadFile, for documents which should be a mapping.
func ReadObjectFile(path string) (*Object, error) {
	v, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(*Object)
	if !ok {
		return nil, fmt.Errorf("%s: mapping is expected at the top level, but got %s", path, TypeName(v))
	}
	return obj, nil
}

// WriteFile writes v as indented JSON, creating parent directories.
func WriteFile(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), os.FileMode(0755)); err != nil {
		return err
	}
	buf, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(buf, '\n'), os.FileMode(0644))
}
