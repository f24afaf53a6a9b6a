package websocket

import (
	"errors"
	"fmt"
)

// ConnectionClosedError is returned by Connection operations performed
// after the connection has reached (or while reaching) the CLOSED state.
// Reason carries the code and mnemonic name (spec.md §7).
type ConnectionClosedError struct {
	Reason CloseReason
}

func (e *ConnectionClosedError) Error() string {
	return fmt.Sprintf("websocket: connection closed: %s", e.Reason)
}

// ErrConnectionClosed is the sentinel target for errors.Is checks against a
// *ConnectionClosedError, regardless of its Reason.
var ErrConnectionClosed = errors.New("websocket: connection closed")

func (e *ConnectionClosedError) Is(target error) bool {
	return target == ErrConnectionClosed
}

func newConnectionClosedError(r CloseReason) error {
	return &ConnectionClosedError{Reason: r}
}

// HandshakeError reports a refused or malformed opening handshake, on
// either the client or the server side (spec.md §4.1 "Failure semantics").
type HandshakeError struct {
	Reason string
}

func (e *HandshakeError) Error() string {
	return "websocket: handshake failed: " + e.Reason
}

func handshakeErrorf(format string, args ...any) error {
	return &HandshakeError{Reason: fmt.Sprintf(format, args...)}
}

// Sentinel "ValueError" conditions (spec.md §7). Go has no distinct
// ValueError type; these stand in for it the way the teacher already
// expresses domain errors as sentinel values (its ErrSocketClosed) rather
// than a generic exception hierarchy.
var (
	// ErrInvalidURL is returned when a ws(s):// URL fails to parse or uses
	// an unsupported scheme.
	ErrInvalidURL = errors.New("websocket: invalid url")

	// ErrDuplicatePing is returned by Conn.Ping when a ping with the same
	// payload is already outstanding on the connection (spec.md §4.2.4).
	ErrDuplicatePing = errors.New("websocket: duplicate ping payload in flight")

	// ErrControlFrameTooLarge is returned when a control frame payload
	// exceeds 125 bytes (spec.md §6).
	ErrControlFrameTooLarge = errors.New("websocket: control frame payload exceeds 125 bytes")

	// ErrNoListeners is returned by NewServer when constructed with an
	// empty listener list (spec.md §4.3).
	ErrNoListeners = errors.New("websocket: server requires at least one listener")

	// ErrAmbiguousPort is returned by Server.Port when the server does not
	// have exactly one TCP-like listener (spec.md §4.3 "port convenience").
	ErrAmbiguousPort = errors.New("websocket: server.Port is ambiguous: need exactly one TCP listener")

	// ErrSubprotocolNotOffered is returned by Request.SetSubprotocol when
	// the chosen value was not among the proposed subprotocols.
	ErrSubprotocolNotOffered = errors.New("websocket: subprotocol was not offered by the client")

	// ErrRequestFinished is returned when Accept or Reject is called a
	// second time on the same Request (spec.md §4.4 "single-use").
	ErrRequestFinished = errors.New("websocket: request already accepted or rejected")
)
