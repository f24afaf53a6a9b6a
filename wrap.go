package websocket

import (
	"bufio"
	"context"
	"log/slog"
	"net/http"
)

// WrapClientStream performs the client-side opening handshake over an
// already-established Stream and returns an OPEN Connection (spec.md
// §4.5). scope owns the connection's reader goroutine; host is sent as
// the Host header; resource is the request target (path + query).
func WrapClientStream(ctx context.Context, scope *Scope, stream Stream, host, resource string, opts ...DialOption) (*Conn, error) {
	cfg := defaultDialConfig()
	for _, o := range opts {
		o(cfg)
	}

	result, err := performClientHandshake(stream, host, resource, cfg.subprotocols, cfg.header)
	if err != nil {
		return nil, err
	}

	conn := newConn(connConfig{
		role:        RoleClient,
		stream:      stream,
		reader:      result.reader,
		path:        resource,
		subprotocol: result.subprotocol,
		logger:      cfg.logger,
		bufferSize:  cfg.bufferSize,
	})
	scope.Spawn(conn.runReader)
	return conn, nil
}

// WrapServerStream performs the server-side opening handshake over an
// already-established Stream and returns a Request for the caller's
// handler to inspect and Accept or Reject (spec.md §4.5). scope will own
// the eventual connection's reader goroutine, once Accept is called.
func WrapServerStream(ctx context.Context, scope *Scope, stream Stream, logger *slog.Logger, bufferSize int) (*Request, error) {
	br := bufio.NewReader(stream)
	parsed, err := parseClientHandshake(br)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = defaultLogger
	}

	return &Request{
		stream:       stream,
		br:           parsed.br,
		bw:           bufio.NewWriter(stream),
		path:         parsed.path,
		header:       parsed.request.Header,
		subprotocols: parsed.subprotocols,
		key:          parsed.key,
		scope:        scope,
		logger:       logger,
		bufferSize:   bufferSize,
	}, nil
}

// dialConfig bundles the options accepted by WrapClientStream, OpenWebsocket
// and ConnectWebsocket.
type dialConfig struct {
	header       http.Header
	subprotocols []string
	logger       *slog.Logger
	bufferSize   int
}

func defaultDialConfig() *dialConfig {
	return &dialConfig{header: make(http.Header)}
}

// DialOption configures a client-side connection attempt.
type DialOption func(*dialConfig)

// WithDialHeader adds an extra header to the opening handshake request.
func WithDialHeader(key, value string) DialOption {
	return func(c *dialConfig) { c.header.Add(key, value) }
}

// WithDialSubprotocols sets the ordered list of subprotocols to offer.
func WithDialSubprotocols(subprotocols ...string) DialOption {
	return func(c *dialConfig) { c.subprotocols = subprotocols }
}

// WithDialLogger overrides the *slog.Logger used for this connection.
func WithDialLogger(logger *slog.Logger) DialOption {
	return func(c *dialConfig) { c.logger = logger }
}

// WithDialMessageBufferSize overrides the message buffer channel capacity.
func WithDialMessageBufferSize(n int) DialOption {
	return func(c *dialConfig) { c.bufferSize = n }
}
