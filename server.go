package websocket

import (
	"context"
	"log/slog"
)

// Handler is invoked once per accepted connection with a Request to
// negotiate (spec.md §4.3 "invokes the user handler"). The handler must
// call exactly one of req.Accept or req.Reject; if it returns without
// doing so, the core rejects with 500 (spec.md §4.1).
type Handler func(ctx context.Context, req *Request)

// Server binds a set of Listeners and dispatches accepted connections to
// a Handler within a supervised Scope (spec.md §3 "Server", §4.3).
type Server struct {
	listeners    []Listener
	handler      Handler
	handlerScope *Scope
	logger       *slog.Logger
	bufferSize   int
}

// ServerOption configures a Server at construction time.
type ServerOption func(*Server)

// WithHandlerScope supplies an external Scope to own connection handler
// tasks, instead of the Server's own internal scope (spec.md §4.3 point 2,
// §5 "Handler scope option"). Each handler task runs its connection's
// reader in a per-connection scope that the handler task waits on. Readers
// do not watch any context: cancelling the external scope does not stop
// them; a reader ends only when its stream closes or the close handshake
// completes.
func WithHandlerScope(scope *Scope) ServerOption {
	return func(s *Server) { s.handlerScope = scope }
}

// WithServerLogger overrides the *slog.Logger used for server and
// connection logging.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithServerMessageBufferSize overrides the per-connection message buffer
// channel capacity.
func WithServerMessageBufferSize(n int) ServerOption {
	return func(s *Server) { s.bufferSize = n }
}

// NewServer constructs a Server. listeners must be non-empty (spec.md §4.3
// "Construction").
func NewServer(handler Handler, listeners []Listener, opts ...ServerOption) (*Server, error) {
	if len(listeners) == 0 {
		return nil, ErrNoListeners
	}
	s := &Server{
		listeners: listeners,
		handler:   handler,
		logger:    defaultLogger,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Listeners exposes, for each bound listener, a ListenPort when the
// listener is TCP-like, or its debug string otherwise (spec.md §3
// "Listener metadata", consulted by diagnostics and tests).
func (s *Server) Listeners() []any {
	out := make([]any, len(s.listeners))
	for i, l := range s.listeners {
		out[i] = describeListener(l)
	}
	return out
}

// Port returns the bound TCP port, iff there is exactly one TCP-like
// listener (spec.md §4.3 "port convenience", §7 "RuntimeError").
func (s *Server) Port() (int, error) {
	var found *ListenPort
	for _, l := range s.listeners {
		lp, ok := isTCPLike(l)
		if !ok {
			continue
		}
		if found != nil {
			return 0, ErrAmbiguousPort
		}
		cp := lp
		found = &cp
	}
	if found == nil {
		return 0, ErrAmbiguousPort
	}
	return found.Port, nil
}

// Run accepts connections on every bound Listener until ctx is canceled,
// dispatching each to the handler in a new task (spec.md §4.3 "run()").
// On return, every listener is closed, every acceptor task has exited, and
// — when no external handler scope was supplied — every handler task has
// finished too (spec.md §4.3 point 4).
func (s *Server) Run(ctx context.Context) error {
	acceptScope, acceptCtx := NewScope(ctx)

	var internalHandlerScope *Scope
	var handlerCtx context.Context
	handlerScope := s.handlerScope
	if handlerScope == nil {
		internalHandlerScope, handlerCtx = NewScope(ctx)
		handlerScope = internalHandlerScope
	} else {
		handlerCtx = ctx
	}

	for _, l := range s.listeners {
		l := l
		acceptScope.Spawn(func() error {
			return s.acceptLoop(acceptCtx, handlerCtx, l, handlerScope)
		})
	}

	<-ctx.Done()

	for _, l := range s.listeners {
		_ = l.Close()
	}

	acceptErr := acceptScope.Wait()

	var handlerErr error
	if internalHandlerScope != nil {
		handlerErr = internalHandlerScope.Wait()
	}

	if acceptErr != nil {
		return acceptErr
	}
	return handlerErr
}

func (s *Server) acceptLoop(acceptCtx, handlerCtx context.Context, l Listener, handlerScope *Scope) error {
	for {
		stream, err := l.Accept()
		if err != nil {
			select {
			case <-acceptCtx.Done():
				return nil
			default:
			}
			if acceptCtx.Err() != nil {
				return nil
			}
			return err
		}

		stream := stream
		handlerScope.Spawn(func() error {
			s.handleConnection(handlerCtx, stream)
			return nil
		})
	}
}

// handleConnection runs the server-side handshake, builds a Request,
// invokes the user handler, and — if the handler returns with the
// connection still OPEN — initiates a normal close (spec.md §4.3 point 3).
func (s *Server) handleConnection(ctx context.Context, stream Stream) {
	connScope, connCtx := NewScope(ctx)

	req, err := WrapServerStream(connCtx, connScope, stream, s.logger, s.bufferSize)
	if err != nil {
		s.logger.Debug("rejecting malformed handshake", slog.Any("error", err))
		_ = stream.Close()
		return
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("handler panicked", slog.Any("panic", r))
			}
		}()
		s.handler(connCtx, req)
	}()

	// If the handler never called Accept or Reject, reject with 500
	// (spec.md §4.1 "if the handler returns without calling either").
	if err := req.finish(); err == nil {
		_ = writeRejectionResponse(req.bw, 500, nil, nil)
	}

	// Reject (whether the handler's own call or the 500 fallback above)
	// never produces a Connection; the TCP stream is this wrapper's to
	// close (spec.md §4.4 "Reject": "the TCP connection is then closed by
	// the caller").
	if req.conn == nil {
		_ = stream.Close()
		return
	}

	// The handler may return with the connection still OPEN; the Server
	// drives the close handshake itself in that case (spec.md §4.3 point 3).
	if conn := req.conn; !conn.IsClosed() {
		_ = conn.Close(connCtx, CloseNormalClosure, "")
	}

	_ = connScope.Wait()
}
