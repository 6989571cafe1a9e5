// Package pipeline runs a request envelope against a capability.
//
// Items are processed one at a time in request order. Each item gets up to
// MaxRetries attempts (Attempt). Under all-or-none the first failed item
// stops the run and every processed item, successful or not, is handed to
// the capability's rollback (Rollback). Per-item failures are reported in
// the response, never returned as errors.
package pipeline
