package chain

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/ib-77/txpipe/pkg/rop"
)

func TestThen_SuccessPath(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := Then(FromValue(ctx, 3), func(ctx context.Context, v int) rop.Result[string] {
		return rop.Success(strconv.Itoa(v * 2))
	})

	out := c.Result()
	if !out.IsSuccess() || out.Result() != "6" {
		t.Fatalf("expected success with \"6\", got: success=%v, val=%q, err=%v", out.IsSuccess(), out.Result(), out.Err())
	}
}

func TestThen_ShortCircuitOnFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	failed := ThenTry(FromValue(ctx, "x"), func(ctx context.Context, s string) (int, error) {
		return strconv.Atoi(s)
	})

	called := false
	out := Then(failed, func(ctx context.Context, v int) rop.Result[int] {
		called = true
		return rop.Success(v)
	}).Result()

	if called {
		t.Fatalf("onSuccess should not be called after a failure")
	}
	var numErr *strconv.NumError
	if out.IsSuccess() || !errors.As(out.Err(), &numErr) {
		t.Fatalf("expected the parse error to travel down the chain, got: %v", out.Err())
	}
}

func TestMap_Success(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	out := Map(FromValue(ctx, 5), func(ctx context.Context, v int) int { return v + 3 }).Result()
	if !out.IsSuccess() || out.Result() != 8 {
		t.Fatalf("expected success with 8, got: success=%v, val=%v, err=%v", out.IsSuccess(), out.Result(), out.Err())
	}
}

func TestFinally_BothTracks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	onSuccess := func(ctx context.Context, v int) string { return "ok:" + strconv.Itoa(v) }
	onFailure := func(ctx context.Context, err error) string { return "err:" + err.Error() }

	s := Finally(FromValue(ctx, 1), onSuccess, onFailure)
	if s != "ok:1" {
		t.Fatalf("expected ok:1, got %s", s)
	}

	failed := Then(FromValue(ctx, 1), func(ctx context.Context, v int) rop.Result[int] {
		return rop.Fail[int](errors.New("boom"))
	})
	f := Finally(failed, onSuccess, onFailure)
	if f != "err:boom" {
		t.Fatalf("expected err:boom, got %s", f)
	}
}
