package pipeline

import (
	"context"

	"github.com/ib-77/txpipe/pkg/capability"
	"github.com/ib-77/txpipe/pkg/rop"
	"github.com/ib-77/txpipe/pkg/rop/solo"
)

// Attempt settles one item: Handle is called until it succeeds or
// maxRetries calls have failed, whichever comes first.
func Attempt[I, V any](ctx context.Context, item I, c capability.Capability[I, V], maxRetries int) rop.Result[V] {
	return solo.Retry(ctx, item, maxRetries, c.Handle)
}
