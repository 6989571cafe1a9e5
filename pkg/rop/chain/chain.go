package chain

import (
	"context"

	"github.com/ib-77/txpipe/pkg/rop"
	"github.com/ib-77/txpipe/pkg/rop/solo"
)

// Chain wraps a rop.Result with context to enable fluent chaining
type Chain[T any] struct {
	ctx    context.Context
	result rop.Result[T]
}

// FromValue creates a new chain from a successful value
func FromValue[T any](ctx context.Context, value T) *Chain[T] {
	return &Chain[T]{
		ctx:    ctx,
		result: rop.Success(value),
	}
}

// Result returns the underlying rop.Result
func (c *Chain[T]) Result() rop.Result[T] {
	return c.result
}

// Then chains a function that returns rop.Result[U]
func Then[T, U any](c *Chain[T], onSuccess func(context.Context, T) rop.Result[U]) *Chain[U] {
	if c.result.IsFailure() {
		return &Chain[U]{ctx: c.ctx, result: rop.Fail[U](c.result.Err())}
	}
	return &Chain[U]{
		ctx:    c.ctx,
		result: onSuccess(c.ctx, c.result.Result()),
	}
}

// ThenTry chains a function that returns (U, error)
func ThenTry[T, U any](c *Chain[T], tryOnSuccess func(context.Context, T) (U, error)) *Chain[U] {
	return &Chain[U]{
		ctx:    c.ctx,
		result: solo.Try[T, U](c.ctx, c.result, tryOnSuccess),
	}
}

// Map chains a pure transformation function
func Map[T, U any](c *Chain[T], onSuccess func(context.Context, T) U) *Chain[U] {
	return ThenTry(c, func(ctx context.Context, t T) (U, error) {
		return onSuccess(ctx, t), nil
	})
}

// Finally collapses the chain into a final value using solo.Finally
func Finally[T, U any](c *Chain[T], onSuccess func(context.Context, T) U, onFailure func(context.Context, error) U) U {
	return solo.Finally[T, U](c.ctx, c.result, onSuccess, onFailure)
}
