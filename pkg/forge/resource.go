package forge

import (
	"github.com/openbraininstitute/entitykit/pkg/jsonld"
)

// StoreMetadata is what the store assigns to a resource on registration.
type StoreMetadata struct {
	Self          string
	Project       string
	ConstrainedBy string
	CreatedAt     string
	UpdatedAt     string
	CreatedBy     string
	UpdatedBy     string
	Rev           int
	Deprecated    bool
}

// Action is the outcome of the last store operation on a resource.
type Action struct {
	Succeeded bool
	Message   string
}

// Resource is a linked-data resource.
//
// Body holds the document with "id" and "type" as plain keys.
// Metadata is nil until the resource is registered or retrieved.
type Resource struct {
	Body       *jsonld.Object
	Metadata   *StoreMetadata
	LastAction *Action
}

func NewResource(body *jsonld.Object) *Resource {
	if body == nil {
		body = jsonld.NewObject()
	}
	return &Resource{Body: body}
}

// ID returns the identifier of the resource, or "" when it is not assigned.
func (r *Resource) ID() string {
	id, _ := r.Body.GetString("id")
	return id
}

// Types returns the type names of the resource.
func (r *Resource) Types() []string {
	v, _ := r.Body.Get("type")
	return StringOrList(v)
}

// Type returns the first type name, or "".
func (r *Resource) Type() string {
	if t := r.Types(); len(t) != 0 {
		return t[0]
	}
	return ""
}

// Clone deep-copies the resource.
func (r *Resource) Clone() *Resource {
	ret := &Resource{Body: r.Body.Clone()}
	if r.Metadata != nil {
		md := *r.Metadata
		ret.Metadata = &md
	}
	if r.LastAction != nil {
		a := *r.LastAction
		ret.LastAction = &a
	}
	return ret
}

// AsJSON returns a copy of the body.
//
// When withMetadata is true and the resource has store metadata,
// the metadata follows the body as underscore-prefixed keys.
func (r *Resource) AsJSON(withMetadata bool) *jsonld.Object {
	ret := r.Body.Clone()
	if !withMetadata || r.Metadata == nil {
		return ret
	}
	md := r.Metadata
	ret.Set("_self", md.Self)
	if md.ConstrainedBy != "" {
		ret.Set("_constrainedBy", md.ConstrainedBy)
	}
	ret.Set("_project", md.Project)
	ret.Set("_rev", md.Rev)
	ret.Set("_deprecated", md.Deprecated)
	ret.Set("_createdAt", md.CreatedAt)
	ret.Set("_createdBy", md.CreatedBy)
	ret.Set("_updatedAt", md.UpdatedAt)
	ret.Set("_updatedBy", md.UpdatedBy)
	return ret
}

// Reshape picks fields from the body, in the given order.
//
// Fields which the body does not have are skipped.
func Reshape(body *jsonld.Object, fields []string) *jsonld.Object {
	ret := jsonld.NewObject()
	for _, f := range fields {
		if v, ok := body.Get(f); ok {
			ret.Set(f, jsonld.DeepCopy(v))
		}
	}
	return ret
}

// StringOrList reads a value which is a string or a list of strings.
//
// Other values (and non-string elements) are ignored.
func StringOrList(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		ret := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				ret = append(ret, s)
			}
		}
		return ret
	case []string:
		return t
	}
	return nil
}
