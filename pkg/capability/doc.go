// Package capability defines the work a pipeline performs on each item and
// how that work is undone.
//
// A Capability is supplied per pipeline type. Handle returning an error is a
// handler error: the item is retried and, once the budget is spent, reported
// as a failure. Panics are programming errors and are left to crash the
// process. Rollback is best-effort; its error is recorded by the caller and
// never turns a failed pipeline into a successful one.
//
// Variants:
// - Func: build a capability from two functions
// - Capitalize: capitalizes strings, nothing to undo
// - Adapt: serve a typed capability from untyped wire items
// - Registry: resolve a capability by pipeline name
package capability
