package websocket

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// Stream is the generic byte-stream transport the core runs over: plain
// TCP or TLS-wrapped TCP both satisfy it (spec.md §4.1 component table,
// "Stream"). net.Conn (and therefore *tls.Conn) already implements it.
type Stream interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// Listener accepts Streams. The core only ever needs Accept/Close, broad
// enough to cover kernel sockets, TLS listeners, and in-process pipes used
// by tests (spec.md §9 "Listener heterogeneity").
type Listener interface {
	Accept() (Stream, error)
	Close() error
}

// tcpListener adapts a net.Listener (plain or *tls.Listener) to Listener
// and remembers whether it is TLS, for ListenPort rendering.
type tcpListener struct {
	net.Listener
	isTLS bool
}

// NewTCPListener wraps an already-bound net.Listener for use with Server.
func NewTCPListener(l net.Listener) Listener {
	return &tcpListener{Listener: l}
}

// NewTLSListener wraps an already-bound net.Listener that negotiates TLS
// for every accepted connection (e.g. produced by tls.NewListener).
func NewTLSListener(l net.Listener) Listener {
	return &tcpListener{Listener: l, isTLS: true}
}

func (l *tcpListener) Accept() (Stream, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListenPort describes a bound TCP-like listener for diagnostics and tests
// (spec.md §3 "Listener metadata", §6 "ListenPort rendering").
type ListenPort struct {
	Address string
	Port    int
	TLS     bool
}

// String renders ws://host:port or wss://[ipv6]:port, bracketing IPv6
// addresses (spec.md §6).
func (lp ListenPort) String() string {
	scheme := "ws"
	if lp.TLS {
		scheme = "wss"
	}
	host := lp.Address
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, lp.Port)
}

// describeListener renders a Listener as either a ListenPort (for TCP-like
// listeners, i.e. those backed by a *net.TCPAddr) or a debug string
// fallback for anything else, e.g. an in-memory pipe listener used by
// tests (spec.md §3, §9).
func describeListener(l Listener) any {
	tl, ok := l.(*tcpListener)
	if !ok {
		return fmt.Sprintf("%v", l)
	}
	addr, ok := tl.Addr().(*net.TCPAddr)
	if !ok {
		return fmt.Sprintf("%v", l)
	}
	return ListenPort{Address: addr.IP.String(), Port: addr.Port, TLS: tl.isTLS}
}

// isTCPLike reports whether l exposes unambiguous TCP listen-port metadata.
func isTCPLike(l Listener) (ListenPort, bool) {
	lp, ok := describeListener(l).(ListenPort)
	return lp, ok
}

// pipeListener is an in-memory Listener built from net.Pipe, used by tests
// that want a Stream pair without touching the network (spec.md §9
// "in-memory listeners are used for tests").
type pipeListener struct {
	conns  chan net.Conn
	closed chan struct{}
}

// NewPipeListener returns a Listener and a dialer function. Each dialer
// call creates a net.Pipe, hands the server end to a pending Accept, and
// returns the client end to the test's client side.
func NewPipeListener() (Listener, func() Stream) {
	pl := &pipeListener{
		conns:  make(chan net.Conn),
		closed: make(chan struct{}),
	}
	dial := func() Stream {
		client, server := net.Pipe()
		select {
		case pl.conns <- server:
		case <-pl.closed:
			client.Close()
			server.Close()
		}
		return client
	}
	return pl, dial
}

func (p *pipeListener) Accept() (Stream, error) {
	select {
	case c := <-p.conns:
		return c, nil
	case <-p.closed:
		return nil, net.ErrClosed
	}
}

func (p *pipeListener) Close() error {
	select {
	case <-p.closed:
	default:
		close(p.closed)
	}
	return nil
}

func (p *pipeListener) String() string {
	return "pipeListener(in-memory)"
}
