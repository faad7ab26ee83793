package entity_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/openbraininstitute/entitykit/pkg/entity"
	"github.com/openbraininstitute/entitykit/pkg/forge"
	"github.com/openbraininstitute/entitykit/pkg/jsonld"
	"pgregory.net/rapid"
)

func TestCoerce(t *testing.T) {
	reg := entity.DefaultRegistry()

	type when struct {
		field entity.Field
		value any
	}
	type then struct {
		value any
		err   error

		// substring of error message
		message string
	}

	theory := func(when when, then then) func(*testing.T) {
		return func(t *testing.T) {
			actual, err := reg.Coerce(when.field, when.value)
			if then.err != nil {
				if !errors.Is(err, then.err) {
					t.Fatalf("expected error %v, got %v", then.err, err)
				}
				if !strings.Contains(err.Error(), then.message) {
					t.Errorf("message %q does not contain %q", err.Error(), then.message)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !jsonld.Equal(actual, then.value) {
				t.Errorf("expected %v, got %v", then.value, actual)
			}
		}
	}

	strList := entity.Field{Name: "types", Kind: entity.StringList}
	t.Run("string list: a bare string becomes a list", theory(
		when{field: strList, value: "a"},
		then{value: []any{"a"}},
	))
	t.Run("string list: a list of strings is kept", theory(
		when{field: strList, value: []any{"a", "b"}},
		then{value: []any{"a", "b"}},
	))
	t.Run("string list: a mixed list is an error", theory(
		when{field: strList, value: []any{"a", 1}},
		then{err: forge.ErrValidation, message: "types: str or List[str] type expected"},
	))
	t.Run("string list: a mapping is an error", theory(
		when{field: strList, value: jsonld.NewObject()},
		then{err: forge.ErrValidation, message: "str or List[str] type expected (got dict)"},
	))
	t.Run("string list: an empty list is an error", theory(
		when{field: strList, value: []any{}},
		then{err: forge.ErrValidation, message: "str or List[str] type expected"},
	))

	t.Run("string: numbers are written as strings", theory(
		when{field: entity.Field{Name: "jobId", Kind: entity.String}, value: json.Number("42")},
		then{value: "42"},
	))
	t.Run("string: a list is an error", theory(
		when{field: entity.Field{Name: "name", Kind: entity.String}, value: []any{"x"}},
		then{err: forge.ErrValidation, message: "name: str type expected (got list)"},
	))

	paths := entity.Field{Name: "image", Kind: entity.PathList}
	t.Run("path list: paths are cleaned", theory(
		when{field: paths, value: []any{"a/./b.png", "c//d.png"}},
		then{value: []any{"a/b.png", "c/d.png"}},
	))

	dd := entity.Field{Name: "circuitConfigPath", Kind: entity.DataDownload}
	t.Run("data download: a path is wrapped", theory(
		when{field: dd, value: "/gpfs/circuit/CircuitConfig"},
		then{value: jsonld.NewObject(
			jsonld.P("type", "DataDownload"),
			jsonld.P("url", "file:///gpfs/circuit/CircuitConfig"),
		)},
	))
	t.Run("data download: a relative path is wrapped literally", theory(
		when{field: dd, value: "circuit/CircuitConfig"},
		then{value: jsonld.NewObject(
			jsonld.P("type", "DataDownload"),
			jsonld.P("url", "file://circuit/CircuitConfig"),
		)},
	))
	t.Run("data download: a url is left alone", theory(
		when{field: dd, value: "https://example.com/CircuitConfig"},
		then{value: jsonld.NewObject(
			jsonld.P("type", "DataDownload"),
			jsonld.P("url", "https://example.com/CircuitConfig"),
		)},
	))
	t.Run("data download: a number is an error", theory(
		when{field: dd, value: 1},
		then{err: forge.ErrValidation, message: "str type expected"},
	))

	dist := entity.Field{Name: "distribution", Kind: entity.Distribution}
	t.Run("distribution: a bare string becomes an entry", theory(
		when{field: dist, value: "a.json"},
		then{value: []any{jsonld.NewObject(jsonld.P("path", "a.json"))}},
	))
	t.Run("distribution: a mapping and a string in a list", theory(
		when{field: dist, value: []any{
			jsonld.NewObject(jsonld.P("path", "b.nrrd"), jsonld.P("content_type", "application/nrrd")),
			"c.json",
		}},
		then{value: []any{
			jsonld.NewObject(jsonld.P("path", "b.nrrd"), jsonld.P("content_type", "application/nrrd")),
			jsonld.NewObject(jsonld.P("path", "c.json")),
		}},
	))
	t.Run("distribution: a mapping without path is an error", theory(
		when{field: dist, value: jsonld.NewObject(jsonld.P("content_type", "application/json"))},
		then{err: forge.ErrValidation, message: "distribution: entry with 'path' expected (got dict)"},
	))
	t.Run("distribution: a path which is not a string is an error", theory(
		when{field: dist, value: []any{"a.json", jsonld.NewObject(jsonld.P("path", []any{"b.json"}))}},
		then{err: forge.ErrValidation, message: "distribution: str type expected for 'path' (got list)"},
	))
	t.Run("distribution: a content type which is not a string is an error", theory(
		when{field: dist, value: jsonld.NewObject(jsonld.P("path", "a.json"), jsonld.P("content_type", 7))},
		then{err: forge.ErrValidation, message: "distribution: str type expected for 'content_type' (got int)"},
	))
	t.Run("distribution: a number is an error", theory(
		when{field: dist, value: []any{"a", 3}},
		then{err: forge.ErrValidation, message: "str, dict or List[str, dict] type expected"},
	))

	ids := entity.Field{Name: "wasDerivedFrom", Kind: entity.IDRef}
	t.Run("id: a url becomes a list", theory(
		when{field: ids, value: "https://example.com/a"},
		then{value: []any{"https://example.com/a"}},
	))
	t.Run("id: not a url is an error", theory(
		when{field: ids, value: []any{"https://example.com/a", "b"}},
		then{err: forge.ErrValidation, message: "wasDerivedFrom: validation error: Expected URL"},
	))

	status := entity.Field{Name: "status", Kind: entity.Enum, Values: []string{"Pending", "Done"}}
	t.Run("enum: a member is kept", theory(
		when{field: status, value: "Done"},
		then{value: "Done"},
	))
	t.Run("enum: not a member is an error", theory(
		when{field: status, value: "Finished"},
		then{err: forge.ErrValidation, message: "permitted: 'Pending', 'Done'"},
	))

	date := entity.Field{Name: "dateCreated", Kind: entity.DateTime}
	t.Run("datetime: yaml style timestamp", theory(
		when{field: date, value: "1990-11-30 03:04:00"},
		then{value: "1990-11-30T03:04:00Z"},
	))
	t.Run("datetime: rfc3339 is kept", theory(
		when{field: date, value: "2022-01-02T03:04:05+02:00"},
		then{value: "2022-01-02T03:04:05+02:00"},
	))
	t.Run("datetime: garbage is an error", theory(
		when{field: date, value: "yesterday"},
		then{err: forge.ErrValidation, message: "datetime type expected"},
	))

	region := entity.Field{Name: "brainRegion", Kind: entity.Nested, Schema: "BrainRegion"}
	t.Run("nested: a bare string becomes an id", theory(
		when{field: region, value: "http://api.brain-map.org/api/v2/data/Structure/322"},
		then{value: jsonld.NewObject(jsonld.P("id", "http://api.brain-map.org/api/v2/data/Structure/322"))},
	))
	t.Run("nested: a list is an error", theory(
		when{field: region, value: []any{"x"}},
		then{err: forge.ErrValidation, message: "brainRegion: str or dict type expected"},
	))
	t.Run("nested: missing required field is an error", theory(
		when{field: entity.Field{Name: "brainLocation", Kind: entity.Nested, Schema: "BrainLocation"}, value: jsonld.NewObject()},
		then{err: forge.ErrMissingField, message: "brainLocation.brainRegion"},
	))
}

func TestUnsupportedValueType(t *testing.T) {
	_, err := entity.DefaultRegistry().Coerce(entity.Field{Name: "types", Kind: entity.StringList}, 1.5)

	var uvt *entity.UnsupportedValueType
	if !errors.As(err, &uvt) {
		t.Fatalf("unexpected error: %v", err)
	}
	if uvt.Field != "types" || uvt.Expected != "str or List[str] type expected" || uvt.Actual != "float" {
		t.Errorf("unexpected content: %+v", uvt)
	}
}

func genPath() *rapid.Generator[string] {
	return rapid.StringMatching(`(/|\./)?[a-z]{1,5}(/{1,2}[a-z._]{1,6}){0,3}`)
}

func genRaw(kind entity.Kind) *rapid.Generator[any] {
	strOrList := func(elem *rapid.Generator[string]) *rapid.Generator[any] {
		return rapid.Custom(func(t *rapid.T) any {
			if rapid.Bool().Draw(t, "bare") {
				return elem.Draw(t, "elem")
			}
			l := rapid.SliceOfN(elem, 1, 4).Draw(t, "list")
			ret := make([]any, len(l))
			for i := range l {
				ret[i] = l[i]
			}
			return ret
		})
	}

	switch kind {
	case entity.String:
		return rapid.Custom(func(t *rapid.T) any { return rapid.String().Draw(t, "s") })
	case entity.StringList:
		return strOrList(rapid.String())
	case entity.PathList:
		return strOrList(genPath())
	case entity.Path:
		return rapid.Custom(func(t *rapid.T) any { return genPath().Draw(t, "p") })
	case entity.IDRef:
		return strOrList(rapid.StringMatching(`https://bbp\.epfl\.ch/data/[a-z0-9]{1,8}`))
	case entity.Distribution:
		entry := rapid.Custom(func(t *rapid.T) any {
			p := genPath().Draw(t, "path")
			if rapid.Bool().Draw(t, "bare") {
				return p
			}
			return jsonld.NewObject(
				jsonld.P("path", p),
				jsonld.P("content_type", rapid.SampledFrom([]string{"application/json", "application/nrrd"}).Draw(t, "ct")),
			)
		})
		return rapid.Custom(func(t *rapid.T) any {
			if rapid.Bool().Draw(t, "bare") {
				return entry.Draw(t, "entry")
			}
			return rapid.SliceOfN(entry, 1, 3).Draw(t, "list")
		})
	case entity.Enum:
		return rapid.Custom(func(t *rapid.T) any {
			return rapid.SampledFrom([]string{"Pending", "Running", "Done", "Failed"}).Draw(t, "v")
		})
	case entity.DataDownload:
		return rapid.Custom(func(t *rapid.T) any {
			if rapid.Bool().Draw(t, "url") {
				return rapid.StringMatching(`https://example\.com/[a-z]{1,8}`).Draw(t, "u")
			}
			return genPath().Draw(t, "p")
		})
	case entity.DateTime:
		return rapid.Custom(func(t *rapid.T) any {
			sec := rapid.Int64Range(0, 4_000_000_000).Draw(t, "sec")
			layout := rapid.SampledFrom([]string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}).Draw(t, "layout")
			return time.Unix(sec, 0).UTC().Format(layout)
		})
	}
	panic("unsupported kind")
}

func TestCoerce_Idempotent(t *testing.T) {
	reg := entity.DefaultRegistry()
	kinds := []entity.Kind{
		entity.String, entity.StringList, entity.PathList, entity.Path, entity.IDRef,
		entity.Distribution, entity.Enum, entity.DataDownload, entity.DateTime,
	}
	for _, kind := range kinds {
		t.Run(kind.String(), func(t *testing.T) {
			field := entity.Field{Name: "field", Kind: kind, Values: []string{"Pending", "Running", "Done", "Failed"}}
			rapid.Check(t, func(rt *rapid.T) {
				raw := genRaw(kind).Draw(rt, "raw")
				once, err := reg.Coerce(field, raw)
				if err != nil {
					rt.Fatalf("coercing %#v: %v", raw, err)
				}
				twice, err := reg.Coerce(field, once)
				if err != nil {
					rt.Fatalf("coercing coerced value %#v: %v", once, err)
				}
				if !jsonld.Equal(once, twice) {
					rt.Fatalf("not idempotent: %v -> %v", once, twice)
				}
			})
		})
	}

	t.Run("nested", func(t *testing.T) {
		field := entity.Field{Name: "brainLocation", Kind: entity.Nested, Schema: "BrainLocation"}
		rapid.Check(t, func(rt *rapid.T) {
			id := rapid.StringMatching(`http://api\.brain-map\.org/api/v2/data/Structure/[0-9]{1,4}`).Draw(rt, "id")
			raw := jsonld.NewObject(jsonld.P("brainRegion", id))
			once, err := reg.Coerce(field, raw)
			if err != nil {
				rt.Fatal(err)
			}
			twice, err := reg.Coerce(field, once)
			if err != nil {
				rt.Fatal(err)
			}
			if !jsonld.Equal(once, twice) {
				rt.Fatalf("not idempotent: %v -> %v", once, twice)
			}
		})
	})
}

func TestWrapFileURI(t *testing.T) {
	for input, expected := range map[string]string{
		"/gpfs/a":            "file:///gpfs/a",
		"relative/a":         "file://relative/a",
		"file:///gpfs/a":     "file:///gpfs/a",
		"http://example.com": "http://example.com",
		"https://example.co": "https://example.co",
	} {
		if actual := entity.WrapFileURI(input); actual != expected {
			t.Errorf("WrapFileURI(%q) = %q, expected %q", input, actual, expected)
		}
	}

	rapid.Check(t, func(rt *rapid.T) {
		p := rapid.String().Draw(rt, "path")
		once := entity.WrapFileURI(p)
		if twice := entity.WrapFileURI(once); twice != once {
			rt.Fatalf("wrap(wrap(%q)) = %q, but wrap(%q) = %q", p, twice, p, once)
		}
	})
}
