// Package core carries execution options through a context.Context so the
// retry and pipeline layers can be tuned without widening their signatures.
package core
