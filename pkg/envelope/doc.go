// Package envelope defines the request and response records exchanged for
// one pipeline invocation, the wire form of a per-item outcome, and request
// validation.
//
// Both envelopes are plain values built fresh for every round trip; nothing
// in this package keeps state between invocations.
package envelope
