package forge

import (
	"context"

	"github.com/openbraininstitute/entitykit/pkg/jsonld"
)

type dryRun struct {
	Store
}

// DryRun wraps a store so that it never writes.
//
// Attach describes local files without uploading them,
// and Register marks the resource as succeeded without submitting it.
// Reading methods are delegated to the base store.
func DryRun(base Store) Store {
	if d, ok := base.(*dryRun); ok {
		return d
	}
	return &dryRun{Store: base}
}

func (*dryRun) Attach(_ context.Context, path string, contentType string) (*jsonld.Object, error) {
	return LocalAttach(path, contentType), nil
}

func (*dryRun) Register(_ context.Context, r *Resource, _ string) error {
	r.LastAction = &Action{Succeeded: true, Message: "dry run: not submitted"}
	return nil
}
