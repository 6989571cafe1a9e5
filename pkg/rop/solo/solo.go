package solo

import (
	"context"
	"errors"
	"time"

	"github.com/ib-77/txpipe/pkg/rop"
	"github.com/ib-77/txpipe/pkg/rop/core"
)

var ErrNoAttempts = errors.New("retry budget must allow at least one attempt")

func Succeed[T any](input T) rop.Result[T] {
	return rop.Success(input)
}

func Fail[T any](err error) rop.Result[T] {
	return rop.Fail[T](err)
}

func Try[In any, Out any](ctx context.Context, input rop.Result[In],
	onTryExecute func(ctx context.Context, r In) (Out, error)) rop.Result[Out] {

	if input.IsSuccess() {

		out, err := onTryExecute(ctx, input.Result())
		if err != nil {
			return rop.Fail[Out](err)
		}

		return rop.Success(out)
	}

	return rop.Fail[Out](input.Err())
}

// Retry runs onTryExecute against input until it succeeds or maxRetries
// attempts have failed. A success stops the loop immediately; a failure is
// only returned once the whole budget is spent. The returned result carries
// the number of attempts made and, on failure, the last error.
func Retry[In any, Out any](ctx context.Context, input In, maxRetries int,
	onTryExecute func(ctx context.Context, r In) (Out, error)) rop.Result[Out] {

	if maxRetries < 1 {
		return rop.Fail[Out](ErrNoAttempts).WithAttempts(0)
	}

	delay := core.GetRetryDelay(ctx, 0)
	in := Succeed(input)

	var res rop.Result[Out]
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if attempt > 1 {
			pause(ctx, delay)
		}

		res = Try(ctx, in, onTryExecute).WithAttempts(attempt)
		if res.IsSuccess() {
			return res
		}
	}
	return res
}

// pause waits for d unless ctx is done first; it never shortens the retry budget.
func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func DoubleTee[T any](ctx context.Context, input rop.Result[T],
	onSuccess func(ctx context.Context, r T),
	onError func(ctx context.Context, err error)) rop.Result[T] {

	if input.IsSuccess() {
		if onSuccess != nil {
			onSuccess(ctx, input.Result())
		}
	} else if onError != nil {
		onError(ctx, input.Err())
	}

	return input
}

func Finally[In, Out any](ctx context.Context, input rop.Result[In],
	onSuccess func(ctx context.Context, r In) Out,
	onError func(ctx context.Context, err error) Out) Out {

	if input.IsSuccess() {
		return onSuccess(ctx, input.Result())
	}
	return onError(ctx, input.Err())
}
