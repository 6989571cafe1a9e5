// Package solo contains single-value, synchronous ROP primitives that operate
// on Result[T]. These functions are the building blocks the pipeline executor
// uses to settle one work item.
//
// Highlights:
// - Succeed/Fail: construct Result[T]
// - Try: call a function (Out, error) and convert error to failure
// - Retry: repeat Try up to a fixed budget, stopping at the first success
// - DoubleTee: side effects for the success and failure tracks
// - Finally: reduce to a concrete value via success/error handlers
package solo
