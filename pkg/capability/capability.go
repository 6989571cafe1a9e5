package capability

import "context"

type Capability[I, V any] interface {
	// Handle processes one item. It must be safe to call again for the same
	// item after an error.
	Handle(ctx context.Context, item I) (V, error)
	// Rollback undoes the effects of items previously passed to Handle,
	// including items whose Handle failed.
	Rollback(ctx context.Context, items []I) error
}

// Func adapts plain functions to Capability. A nil RollbackFunc means there
// is nothing to undo.
type Func[I, V any] struct {
	HandleFunc   func(ctx context.Context, item I) (V, error)
	RollbackFunc func(ctx context.Context, items []I) error
}

func (f Func[I, V]) Handle(ctx context.Context, item I) (V, error) {
	return f.HandleFunc(ctx, item)
}

func (f Func[I, V]) Rollback(ctx context.Context, items []I) error {
	if f.RollbackFunc == nil {
		return nil
	}
	return f.RollbackFunc(ctx, items)
}
