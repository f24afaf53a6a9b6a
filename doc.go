// Package websocket implements the core of an asynchronous, full-duplex
// RFC 6455 WebSocket client and server on top of any byte-stream transport
// satisfying the Stream interface (plain TCP or TLS).
//
// The package runs the opening handshake, frames messages through an
// external framing engine (github.com/gobwas/ws), multiplexes control and
// data frames over a single connection, and drives the two-step closing
// handshake. A Server binds one or more Listeners and dispatches accepted
// streams to a per-connection handler inside a supervised Scope.
package websocket

import "log/slog"

// defaultLogger is used by constructors that are not given an explicit
// *slog.Logger, so the library never panics for lack of one.
var defaultLogger = slog.Default()
