package rop

import (
	"time"

	"github.com/google/uuid"
)

// Result is the outcome of one unit of work: either a success carrying a
// value or a failure carrying the error that caused it.
type Result[T any] struct {
	id        uuid.UUID
	createdAt time.Time
	result    T
	err       error
	isSuccess bool
	attempts  int
}

func Success[T any](r T) Result[T] {
	return Result[T]{
		result:    r,
		err:       nil,
		isSuccess: true,
		createdAt: time.Now().UTC(),
		attempts:  1,
		id:        uuid.New(),
	}
}

func Fail[T any](err error) Result[T] {
	if err == nil {
		err = ErrUnknownFailure
	}
	return Result[T]{
		err:       err,
		isSuccess: false,
		createdAt: time.Now().UTC(),
		attempts:  1,
		id:        uuid.New(),
	}
}

// WithAttempts returns a copy of r recording how many attempts produced it.
func (r Result[T]) WithAttempts(n int) Result[T] {
	r.attempts = n
	return r
}

func (r Result[T]) Result() T {
	return r.result
}

func (r Result[T]) Err() error {
	return r.err
}

func (r Result[T]) IsSuccess() bool {
	return r.isSuccess
}

func (r Result[T]) IsFailure() bool {
	return !r.isSuccess
}

func (r Result[T]) Attempts() int {
	return r.attempts
}

func (r Result[T]) CreatedAt() time.Time {
	return r.createdAt
}

func (r Result[T]) Id() uuid.UUID {
	return r.id
}
