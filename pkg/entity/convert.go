package entity

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/openbraininstitute/entitykit/pkg/forge"
	"github.com/openbraininstitute/entitykit/pkg/jsonld"
)

// UnsupportedValueType is the error when a raw value cannot be coerced
// to the shape its field declares.
type UnsupportedValueType struct {
	// name of the field. Empty when the value is not of a field.
	Field string

	// legible description of accepted shapes, like "str or List[str] type expected"
	Expected string

	// type name of the given value
	Actual string
}

func (u *UnsupportedValueType) Error() string {
	if u.Field == "" {
		return fmt.Sprintf("%s (got %s)", u.Expected, u.Actual)
	}
	return fmt.Sprintf("%s: %s (got %s)", u.Field, u.Expected, u.Actual)
}

func (u *UnsupportedValueType) Unwrap() error {
	return forge.ErrValidation
}

func unsupported(expected string, actual any) *UnsupportedValueType {
	return &UnsupportedValueType{Expected: expected, Actual: jsonld.TypeName(actual)}
}

var reURI = regexp.MustCompile(`^(https?|file)://`)

// WrapFileURI prefixes "file://" to a path, unless it is already URI-shaped
// (http://, https:// or file://).
func WrapFileURI(path string) string {
	if reURI.MatchString(path) {
		return path
	}
	return forge.FileURI + path
}

var reURL = regexp.MustCompile(`^https?://`)

func isURL(s string) bool {
	return reURL.MatchString(s)
}

type convertOption struct {
	// directory against which relative paths are resolved.
	// When empty, relative paths are kept relative.
	baseDir string
}

func (o convertOption) path(p string) string {
	if o.baseDir != "" && !filepath.IsAbs(p) && !reURI.MatchString(p) {
		p = filepath.Join(o.baseDir, p)
	}
	if reURI.MatchString(p) {
		return p
	}
	return filepath.Clean(p)
}

func toStr(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case int, int64, float64:
		return fmt.Sprint(t), true
	}
	return "", false
}

// listOf coerces a scalar or a non-empty list of scalars into a list.
func listOf(v any, elem func(any) (any, bool), expected string) ([]any, error) {
	if e, ok := elem(v); ok {
		return []any{e}, nil
	}
	l, ok := v.([]any)
	if !ok || len(l) == 0 {
		return nil, unsupported(expected, v)
	}
	ret := make([]any, 0, len(l))
	for _, i := range l {
		e, ok := elem(i)
		if !ok {
			return nil, unsupported(expected, i)
		}
		ret = append(ret, e)
	}
	return ret, nil
}

func strElem(v any) (any, bool) {
	s, ok := v.(string)
	return s, ok
}

func convertString(v any) (any, error) {
	if s, ok := toStr(v); ok {
		return s, nil
	}
	return nil, unsupported("str type expected", v)
}

func convertStringList(v any) (any, error) {
	return listOf(v, strElem, "str or List[str] type expected")
}

func (o convertOption) convertPathList(v any) (any, error) {
	return listOf(
		v,
		func(e any) (any, bool) {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			return o.path(s), true
		},
		"str or List[str] type expected",
	)
}

func (o convertOption) convertPath(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, unsupported("str type expected", v)
	}
	return o.path(s), nil
}

func convertIDRef(v any) (any, error) {
	ids, err := listOf(v, strElem, "str or List[str] type expected")
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if !isURL(id.(string)) {
			return nil, fmt.Errorf("%w: Expected URL, but got '%s'", forge.ErrValidation, id)
		}
	}
	return ids, nil
}

func (o convertOption) convertDistribution(v any) (any, error) {
	const expected = "str, dict or List[str, dict] type expected"
	entries, err := listOf(
		v,
		func(e any) (any, bool) {
			switch t := e.(type) {
			case string:
				return jsonld.NewObject(jsonld.P("path", o.path(t))), true
			case *jsonld.Object:
				return t.Clone(), true
			}
			return nil, false
		},
		expected,
	)
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		entry := e.(*jsonld.Object)
		p, ok := entry.Get("path")
		if !ok {
			return nil, unsupported("entry with 'path' expected", entry)
		}
		ps, ok := p.(string)
		if !ok {
			return nil, unsupported("str type expected for 'path'", p)
		}
		entry.Set("path", o.path(ps))
		if ct, ok := entry.Get("content_type"); ok {
			if _, ok := ct.(string); !ok {
				return nil, unsupported("str type expected for 'content_type'", ct)
			}
		}
	}
	return entries, nil
}

func convertEnum(v any, values []string) (any, error) {
	s, ok := v.(string)
	if ok {
		for _, c := range values {
			if s == c {
				return s, nil
			}
		}
	}
	quoted := make([]string, len(values))
	for i := range values {
		quoted[i] = "'" + values[i] + "'"
	}
	return nil, fmt.Errorf(
		"%w: unexpected value %v; permitted: %s",
		forge.ErrValidation, v, strings.Join(quoted, ", "),
	)
}

func (o convertOption) convertDataDownload(v any) (any, error) {
	switch t := v.(type) {
	case string:
		return jsonld.NewObject(
			jsonld.P("type", forge.TypeDataDownload),
			jsonld.P("url", WrapFileURI(o.path(t))),
		), nil
	case *jsonld.Object:
		// already wrapped
		typ, _ := t.GetString("type")
		if _, ok := t.GetString("url"); ok && typ == forge.TypeDataDownload {
			return t.Clone(), nil
		}
	}
	return nil, unsupported("str type expected", v)
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func convertDateTime(v any) (any, error) {
	switch t := v.(type) {
	case string:
		for _, layout := range dateTimeLayouts {
			if tm, err := time.Parse(layout, t); err == nil {
				return tm.Format(time.RFC3339Nano), nil
			}
		}
	case json.Number:
		if sec, err := t.Int64(); err == nil {
			return time.Unix(sec, 0).UTC().Format(time.RFC3339Nano), nil
		}
	case int:
		return time.Unix(int64(t), 0).UTC().Format(time.RFC3339Nano), nil
	}
	return nil, unsupported("datetime type expected", v)
}
