package forge

import (
	"context"

	"github.com/openbraininstitute/entitykit/pkg/jsonld"
)

// Store is a handle of a knowledge graph store, bound to one bucket.
type Store interface {
	// Retrieve fetches a resource.
	//
	// # Args
	//
	// - context.Context
	//
	// - string: id of the resource. It can be qualified with "?rev=N".
	//
	// - bool: when true, the resource is searched across buckets.
	//
	// # Returns
	//
	// - *Resource: found resource.
	//
	// - error: ErrNotFound when the store does not have the resource.
	Retrieve(ctx context.Context, id string, crossBucket bool) (*Resource, error)

	// Search finds resources with all of given top-level field values.
	Search(ctx context.Context, filter map[string]any, crossBucket bool) ([]*Resource, error)

	// Attach uploads a file and returns a DataDownload describing it.
	//
	// When contentType is empty, it is guessed by the store.
	Attach(ctx context.Context, path string, contentType string) (*jsonld.Object, error)

	// Register submits a resource.
	//
	// When the store rejects the resource, Register returns nil
	// and sets r.LastAction to failed with the store's message.
	// Errors returned are transport failures.
	//
	// On success, the id and r.Metadata are set.
	//
	// schemaID can be empty, for unconstrained registration.
	Register(ctx context.Context, r *Resource, schemaID string) error

	// SchemaID returns the id of the schema constraining the type.
	//
	// ErrNoSchema is returned when there is no such schema.
	SchemaID(ctx context.Context, schemaType string) (string, error)

	// Reshape trims a resource to the given fields.
	Reshape(r *Resource, fields []string) *jsonld.Object

	// Download fetches a distribution's content into dir.
	//
	// # Returns
	//
	// - string: path to the downloaded file.
	//
	// - error
	Download(ctx context.Context, distribution *jsonld.Object, dir string) (string, error)
}

// Submit registers a resource, and turns a rejection into *RegistrationFailure.
func Submit(ctx context.Context, store Store, r *Resource, schemaID string) error {
	if err := store.Register(ctx, r, schemaID); err != nil {
		return err
	}
	if a := r.LastAction; a == nil || !a.Succeeded {
		msg := "no response from the store"
		if a != nil {
			msg = a.Message
		}
		return &RegistrationFailure{ID: r.ID(), Message: msg}
	}
	return nil
}
