package websocket

import (
	"bufio"
	"context"
	"net/http"
	"sync"

	"log/slog"
)

// Request is the one-shot negotiation object delivered to server handlers
// (spec.md §3 "Request (server-side)", §4.4). The handler inspects the
// proposed parameters, optionally sets Subprotocol, and must call exactly
// one of Accept or Reject.
type Request struct {
	stream Stream
	br     *bufio.Reader
	bw     *bufio.Writer

	path         string
	header       http.Header
	subprotocols []string
	key          string

	chosenSubprotocol string
	conn              *Conn

	scope      *Scope
	logger     *slog.Logger
	bufferSize int

	mu       sync.Mutex
	finished bool
}

// Path returns the request target the client sent, query string preserved
// verbatim (spec.md §9 "URL path preservation").
func (req *Request) Path() string { return req.path }

// Header returns the client's handshake headers.
func (req *Request) Header() http.Header { return req.header }

// Subprotocols returns the proposed subprotocols in the order the client
// sent them (spec.md §3 "proposed subprotocols (ordered tuple)").
func (req *Request) Subprotocols() []string {
	out := make([]string, len(req.subprotocols))
	copy(out, req.subprotocols)
	return out
}

// Subprotocol returns the subprotocol chosen so far via SetSubprotocol, or
// "" if none has been chosen.
func (req *Request) Subprotocol() string { return req.chosenSubprotocol }

// SetSubprotocol chooses a subprotocol to report back to the client. It
// must be one of the proposed Subprotocols, or "" to leave it unset
// (spec.md §4.4 "setter enforces").
func (req *Request) SetSubprotocol(s string) error {
	if s != "" && !containsString(req.subprotocols, s) {
		return ErrSubprotocolNotOffered
	}
	req.chosenSubprotocol = s
	return nil
}

// Accept completes the opening handshake, returning an OPEN Connection.
// May be called at most once on a Request, and not after Reject (spec.md
// §4.4 "single-use").
func (req *Request) Accept(ctx context.Context) (*Conn, error) {
	if err := req.finish(); err != nil {
		return nil, err
	}

	acceptKey := makeAcceptKey(req.key)
	if err := writeSwitchingProtocolsResponse(req.bw, acceptKey, req.chosenSubprotocol); err != nil {
		return nil, handshakeErrorf("writing 101 response: %v", err)
	}

	conn := newConn(connConfig{
		role:        RoleServer,
		stream:      req.stream,
		reader:      req.br,
		path:        req.path,
		subprotocol: req.chosenSubprotocol,
		logger:      req.logger,
		bufferSize:  req.bufferSize,
	})
	req.scope.Spawn(conn.runReader)
	req.conn = conn
	return conn, nil
}

// Reject completes the opening handshake negatively: it writes status with
// the given headers and body, and the TCP connection is then closed by the
// caller (the Server's handler wrapper). May be called at most once, and
// not after Accept (spec.md §4.4 "single-use").
func (req *Request) Reject(status int, headers http.Header, body []byte) error {
	if err := req.finish(); err != nil {
		return err
	}
	return writeRejectionResponse(req.bw, status, headers, body)
}

func (req *Request) finish() error {
	req.mu.Lock()
	defer req.mu.Unlock()
	if req.finished {
		return ErrRequestFinished
	}
	req.finished = true
	return nil
}
