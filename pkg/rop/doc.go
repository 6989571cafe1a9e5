// Package rop defines Result[T], the success-or-failure value every work
// item settles into, together with small error helpers shared by the
// pipeline, transport and capability packages.
//
// Highlights:
// - Success/Fail: construct Result[T]
// - WithAttempts: stamp a result with the number of tries behind it
// - GetErrors: flatten errors produced by errors.Join
// - IsCancellationError: recognise context cancellation and deadlines
package rop
