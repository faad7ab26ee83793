package context

import (
	"context"
	"testing"
	"time"
)

// WithTest returns a context which is canceled when the test ends.
//
// When the test has deadline, the context is done 1 second before it,
// to be able to clean-up resources.
func WithTest(t *testing.T) context.Context {
	t.Helper()
	var ctx context.Context
	var cancel func()
	if deadline, ok := t.Deadline(); ok {
		ctx, cancel = context.WithDeadline(context.Background(), deadline.Add(-time.Second))
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	t.Cleanup(cancel)
	return ctx
}
