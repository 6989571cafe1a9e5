// Package server answers pipeline requests arriving over a transport.
//
// Any number of peers may be connected, but requests are executed by a
// single serving loop, one at a time, in arrival order. Each session reads
// a request, waits for its reply and only then reads the next one.
package server
