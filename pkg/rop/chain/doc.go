// Package chain provides a fluent wrapper around Result[T]
// for building synchronous Railway-Oriented chains using solo primitives.
//
// The server uses it to take one inbound frame through decode, resolve and
// execute steps, collapsing either track into a reply at the end.
//
// Key operations:
// - FromValue: begin a chain from a value
// - Then: switch to a new Result[U] via a function
// - ThenTry: call a function (U, error) and convert error to failure
// - Map: transform the successful value (T -> U)
// - Finally: collapse the chain into a final value via handlers
package chain
