// Package transport defines the connection-oriented request-reply channel a
// pipeline travels over. A Conn carries whole messages: one Send delivers one
// envelope and one Recv returns exactly one.
//
// Implementations live in subpackages: tcp (length-prefixed frames), ws
// (websocket binary messages) and mem (in-process pipes for tests). Use
// netstack.NewByKind to pick one from configuration.
package transport
