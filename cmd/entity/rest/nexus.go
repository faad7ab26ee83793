package rest

import (
	"strings"

	"github.com/openbraininstitute/entitykit/pkg/forge"
	"github.com/openbraininstitute/entitykit/pkg/jsonld"
)

// fromNexus converts a Nexus payload into a resource.
//
// "@id" and "@type" are renamed to "id" and "type" at every level.
// Metadata ("_"-prefixed keys) goes to StoreMetadata, and "@context" is dropped.
func fromNexus(payload *jsonld.Object) *forge.Resource {
	body := jsonld.NewObject()
	md := &forge.StoreMetadata{}
	for k, v := range payload.Iter() {
		s, _ := v.(string)
		switch k {
		case "@context":
		case "_self":
			md.Self = s
		case "_project":
			md.Project = s
		case "_constrainedBy":
			md.ConstrainedBy = s
		case "_createdAt":
			md.CreatedAt = s
		case "_updatedAt":
			md.UpdatedAt = s
		case "_createdBy":
			md.CreatedBy = s
		case "_updatedBy":
			md.UpdatedBy = s
		case "_rev":
			md.Rev, _ = forge.Revision(v)
		case "_deprecated":
			md.Deprecated, _ = v.(bool)
		default:
			if strings.HasPrefix(k, "_") {
				continue
			}
			body.Set(renameKey(k, fromKeyword), renameKeys(v, fromKeyword))
		}
	}
	r := forge.NewResource(body)
	r.Metadata = md
	return r
}

// toNexus builds a payload to be submitted, with context.
func toNexus(body *jsonld.Object, context string) *jsonld.Object {
	payload := jsonld.NewObject(jsonld.P("@context", context))
	for k, v := range body.Iter() {
		payload.Set(renameKey(k, toKeyword), renameKeys(v, toKeyword))
	}
	return payload
}

var fromKeyword = map[string]string{"@id": "id", "@type": "type"}
var toKeyword = map[string]string{"id": "@id", "type": "@type"}

func renameKey(k string, names map[string]string) string {
	if n, ok := names[k]; ok {
		return n
	}
	return k
}

func renameKeys(v any, names map[string]string) any {
	switch t := v.(type) {
	case *jsonld.Object:
		ret := jsonld.NewObject()
		for k, val := range t.Iter() {
			ret.Set(renameKey(k, names), renameKeys(val, names))
		}
		return ret
	case []any:
		ret := make([]any, len(t))
		for i, val := range t {
			ret[i] = renameKeys(val, names)
		}
		return ret
	default:
		return v
	}
}
