package forge

import (
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/openbraininstitute/entitykit/pkg/jsonld"
)

const (
	FileURI = "file://"

	TypeDataDownload = "DataDownload"
)

// WithoutFilePrefix removes the leading "file://" from a location.
func WithoutFilePrefix(location string) string {
	return strings.TrimPrefix(location, FileURI)
}

// Distributions returns the distributions of a resource body.
//
// "distribution" can be one object or a list of them. Elements which are
// not objects are skipped.
func Distributions(body *jsonld.Object) []*jsonld.Object {
	v, ok := body.Get("distribution")
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case *jsonld.Object:
		return []*jsonld.Object{t}
	case []any:
		ret := make([]*jsonld.Object, 0, len(t))
		for _, e := range t {
			if o, ok := e.(*jsonld.Object); ok {
				ret = append(ret, o)
			}
		}
		return ret
	}
	return nil
}

// Location returns atLocation.location of a distribution.
func Location(distribution *jsonld.Object) (string, bool) {
	at, ok := distribution.GetObject("atLocation")
	if !ok {
		return "", false
	}
	return at.GetString("location")
}

// AddDistribution appends a distribution to a resource body.
//
// The first distribution is set as an object, and it becomes a list
// when the second one is added.
func AddDistribution(body *jsonld.Object, distribution *jsonld.Object) {
	v, ok := body.Get("distribution")
	if !ok {
		body.Set("distribution", distribution)
		return
	}
	switch t := v.(type) {
	case []any:
		body.Set("distribution", append(t, distribution))
	default:
		body.Set("distribution", []any{t, distribution})
	}
}

// GuessContentType guesses the media type of a file by its extension.
func GuessContentType(path string) string {
	ext := filepath.Ext(path)
	switch strings.ToLower(ext) {
	case ".json":
		return "application/json"
	case ".yml", ".yaml":
		return "application/yaml"
	case ".nrrd":
		return "application/nrrd"
	case "":
		return "application/octet-stream"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// LocalAttach describes a local file as a DataDownload, without uploading.
//
// When the file exists, its size is recorded as contentSize.
func LocalAttach(path string, contentType string) *jsonld.Object {
	if contentType == "" {
		contentType = GuessContentType(path)
	}
	location := path
	if abs, err := filepath.Abs(path); err == nil {
		location = abs
	}

	dd := jsonld.NewObject(
		jsonld.P("type", TypeDataDownload),
		jsonld.P("name", filepath.Base(path)),
		jsonld.P("encodingFormat", contentType),
	)
	if s, err := os.Stat(path); err == nil && s.Mode().IsRegular() {
		dd.Set("contentSize", jsonld.NewObject(
			jsonld.P("unitCode", "bytes"),
			jsonld.P("value", s.Size()),
		))
	}
	dd.Set("atLocation", jsonld.NewObject(
		jsonld.P("type", "Location"),
		jsonld.P("location", FileURI+location),
	))
	return dd
}
