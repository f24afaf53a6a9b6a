package websocket

import (
	"context"
	"crypto/tls"
	"net"
)

// OpenWebsocket dials a TCP (or TLS, for wss://) connection to target and
// performs the client-side opening handshake, returning an OPEN Connection
// (spec.md §1 "open_websocket_url", §4.5). scope owns the connection's
// reader task; cancelling ctx only bounds the TCP dial and the TLS
// handshake. The WebSocket opening handshake and the connection's
// subsequent lifetime do not observe ctx.
func OpenWebsocket(ctx context.Context, scope *Scope, target string, opts ...DialOption) (*Conn, error) {
	parsed, err := parseWebsocketURL(target)
	if err != nil {
		return nil, err
	}

	var d net.Dialer
	rawConn, err := d.DialContext(ctx, "tcp", parsed.hostPort)
	if err != nil {
		return nil, err
	}

	var stream Stream = rawConn
	if parsed.tls {
		tlsConn := tls.Client(rawConn, &tls.Config{ServerName: parsed.hostname})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = rawConn.Close()
			return nil, err
		}
		stream = tlsConn
	}

	conn, err := WrapClientStream(ctx, scope, stream, parsed.hostname, parsed.resource, opts...)
	if err != nil {
		_ = stream.Close()
		return nil, err
	}
	return conn, nil
}

// ConnectWebsocket performs the client-side opening handshake over an
// already-connected Stream (spec.md §1 "connect_websocket", §4.5). It is a
// thin synonym for WrapClientStream, kept separate so callers that already
// hold a Stream (e.g. a Unix socket, or a Stream obtained some other way)
// don't need to know about the lower-level wrap function's name.
func ConnectWebsocket(ctx context.Context, scope *Scope, stream Stream, host, resource string, opts ...DialOption) (*Conn, error) {
	return WrapClientStream(ctx, scope, stream, host, resource, opts...)
}

// ServeWebsocket is the convenience entrypoint for the common case: build a
// Server bound to listeners and run it until ctx is canceled (spec.md §1
// "serve_websocket", §4.3). For finer control over listener construction,
// handler scoping, or Port()/Listeners() introspection prior to Run, build
// a *Server directly with NewServer.
func ServeWebsocket(ctx context.Context, handler Handler, listeners []Listener, opts ...ServerOption) error {
	server, err := NewServer(handler, listeners, opts...)
	if err != nil {
		return err
	}
	return server.Run(ctx)
}
