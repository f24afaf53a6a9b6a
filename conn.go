package websocket

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
)

// Role identifies which side of the handshake a Conn played.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

// connState is the Connection state machine of spec.md §3.
type connState int32

const (
	stateConnecting connState = iota
	stateOpen
	stateLocalClosing
	stateRemoteClosing
	stateClosed
)

// closeHandshakeTimeout bounds how long aclose waits for the reader to
// observe the peer's echoed CLOSE frame before forcing the stream shut.
// The source leaves this unspecified (spec.md §9 "Ambiguity"); five
// seconds is a reasonable, documented bound, not a guess at a particular
// implementation's behaviour.
const closeHandshakeTimeout = 5 * time.Second

var connIDCounter atomic.Uint64

// Conn is the per-socket WebSocket state machine: it owns a FrameCodec and
// Stream, runs one reader goroutine, serialises writes, and exposes the
// message/control API of spec.md §4.2.
type Conn struct {
	id     uint64
	role   Role
	stream Stream
	reader io.Reader // buffered handshake reader, preserves any bytes already read past the handshake
	codec  *frameCodec
	log    *slog.Logger

	path        string
	subprotocol string

	state atomic.Int32

	messages chan Message

	writeMu sync.Mutex

	pingMu       sync.Mutex
	pendingPings map[string]chan struct{}

	closeReasonMu sync.Mutex
	closeReason   *CloseReason

	localCloseSignal chan struct{}
	localCloseOnce   sync.Once

	readerDone chan struct{}
	closedCh   chan struct{}
	closedOnce sync.Once
}

// connConfig carries the handshake-resolved fields needed to build a Conn;
// kept separate from Conn itself so handshake code doesn't need to know
// about internal channel wiring.
type connConfig struct {
	role        Role
	stream      Stream
	reader      io.Reader // defaults to stream when nil
	path        string
	subprotocol string
	logger      *slog.Logger
	bufferSize  int
}

func newConn(cfg connConfig) *Conn {
	logger := cfg.logger
	if logger == nil {
		logger = defaultLogger
	}
	bufSize := cfg.bufferSize
	if bufSize <= 0 {
		bufSize = 64
	}
	reader := cfg.reader
	if reader == nil {
		reader = cfg.stream
	}

	id := connIDCounter.Add(1)
	c := &Conn{
		id:               id,
		role:             cfg.role,
		stream:           cfg.stream,
		reader:           reader,
		codec:            newFrameCodec(cfg.role == RoleClient),
		log:              logger.With(slog.Uint64("conn_id", id), slog.String("role", cfg.role.String())),
		path:             cfg.path,
		subprotocol:      cfg.subprotocol,
		messages:         make(chan Message, bufSize),
		pendingPings:     make(map[string]chan struct{}),
		localCloseSignal: make(chan struct{}),
		readerDone:       make(chan struct{}),
		closedCh:         make(chan struct{}),
	}
	c.state.Store(int32(stateOpen))
	return c
}

// ID returns the connection's process-unique monotonic identity.
func (c *Conn) ID() uint64 { return c.id }

// Role reports whether this Conn is the CLIENT or SERVER side.
func (c *Conn) Role() Role { return c.role }

// Path returns the request target negotiated at handshake time. Query
// strings are preserved verbatim (spec.md §9 "URL path preservation").
func (c *Conn) Path() string { return c.path }

// Subprotocol returns the negotiated subprotocol, or "" if none was
// chosen. Immutable once the connection is OPEN (spec.md §3).
func (c *Conn) Subprotocol() string { return c.subprotocol }

// IsClosed reports whether the connection has reached CLOSED.
func (c *Conn) IsClosed() bool {
	return connState(c.state.Load()) == stateClosed
}

// CloseReason returns the recorded (code, reason), if the connection has
// recorded one yet (it may not have if still OPEN).
func (c *Conn) CloseReason() (CloseReason, bool) {
	c.closeReasonMu.Lock()
	defer c.closeReasonMu.Unlock()
	if c.closeReason == nil {
		return CloseReason{}, false
	}
	return *c.closeReason, true
}

func (c *Conn) setCloseReasonOnce(code CloseCode, reason string) {
	c.closeReasonMu.Lock()
	defer c.closeReasonMu.Unlock()
	if c.closeReason == nil {
		c.closeReason = &CloseReason{Code: code, Reason: reason}
	}
}

func (c *Conn) closedErr() error {
	r, ok := c.CloseReason()
	if !ok {
		r = CloseReason{Code: CloseAbnormalClosure, Reason: ""}
	}
	return newConnectionClosedError(r)
}

// runReader starts the reader loop. Callers (handshake helpers, Server)
// spawn this inside the Scope that should own the connection's lifetime,
// per spec.md §5 "the per-connection reader task always runs inside
// whichever scope owns the handler task".
func (c *Conn) runReader() error {
	defer c.finishReader()
	for {
		ev, err := c.codec.decode(c.reader)
		if err != nil {
			c.recordAbnormalClosure(err)
			return nil
		}

		switch ev.kind {
		case evMessage:
			msg := Message{Type: ev.msgType, Data: ev.payload}
			select {
			case c.messages <- msg:
			case <-c.localCloseSignal:
				// Local close discards buffered/incoming messages
				// (spec.md §4.2.2 "Local close then reads").
			}

		case evPing:
			if err := c.writeControl(ws.OpPong, ev.payload); err != nil {
				c.recordAbnormalClosure(err)
				return nil
			}

		case evPong:
			c.completePing(ev.payload)

		case evClose:
			c.handleCloseReceived(ev.code, ev.reason)
			return nil
		}
	}
}

func (c *Conn) recordAbnormalClosure(err error) {
	var pv *errProtocolViolation
	switch {
	case errors.As(err, &pv):
		c.setCloseReasonOnce(pv.code, pv.msg)
		_ = c.writeControl(ws.OpClose, encodeCloseFramePayload(pv.code, pv.msg))
	case errors.Is(err, io.EOF):
		c.setCloseReasonOnce(CloseAbnormalClosure, "remote closed the stream without a close frame")
	default:
		c.setCloseReasonOnce(CloseAbnormalClosure, fmt.Sprintf("stream error: %v", err))
	}
	c.log.Debug("connection reader terminating abnormally", slog.Any("error", err))
}

func (c *Conn) handleCloseReceived(code CloseCode, reason string) {
	c.setCloseReasonOnce(code, reason)

	prev := connState(c.state.Swap(int32(stateRemoteClosing)))
	if prev == stateOpen {
		// Peer initiated: echo the close frame, same code, per
		// spec.md §4.2.1 step 3.
		_ = c.writeControl(ws.OpClose, encodeCloseFramePayload(code, ""))
	}
	// prev == stateLocalClosing means this is the peer's echo of our own
	// close frame; nothing further to send.
}

// finishReader runs exactly once, when the reader loop returns for any
// reason: it moves the connection to CLOSED, closes the message buffer so
// blocked GetMessage calls wake with ConnectionClosed after draining
// whatever was already queued, and closes the underlying stream.
func (c *Conn) finishReader() {
	c.state.Store(int32(stateClosed))
	close(c.messages)
	c.closeStream()
	close(c.readerDone)
	c.closedOnce.Do(func() { close(c.closedCh) })
}

func (c *Conn) closeStream() {
	_ = c.stream.Close()
}

// GetMessage waits for and returns the next buffered message (spec.md
// §4.2 operations table).
func (c *Conn) GetMessage(ctx context.Context) (Message, error) {
	select {
	case <-c.localCloseSignal:
		return Message{}, c.closedErr()
	default:
	}

	select {
	case msg, ok := <-c.messages:
		if !ok {
			return Message{}, c.closedErr()
		}
		return msg, nil
	case <-c.localCloseSignal:
		return Message{}, c.closedErr()
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Send encodes and writes one data frame (spec.md §4.2 "send_message").
func (c *Conn) Send(ctx context.Context, msg Message) error {
	if connState(c.state.Load()) != stateOpen {
		return c.closedErr()
	}
	err := c.writeLocked(func() error {
		return c.codec.encodeMessage(c.stream, msg.Type, msg.Data)
	})
	if err != nil {
		// The write failed because the transport is gone, possibly before
		// the reader has noticed; report it as a closed connection.
		return c.closedErr()
	}
	return nil
}

// SendText is a convenience wrapper around Send for text messages.
func (c *Conn) SendText(ctx context.Context, s string) error {
	return c.Send(ctx, TextMessage(s))
}

// SendBinary is a convenience wrapper around Send for binary messages.
func (c *Conn) SendBinary(ctx context.Context, b []byte) error {
	return c.Send(ctx, BinaryMessage(b))
}

func (c *Conn) writeControl(op ws.OpCode, payload []byte) error {
	return c.writeLocked(func() error {
		return c.codec.encodeControl(c.stream, op, payload)
	})
}

func (c *Conn) writeLocked(fn func() error) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return fn()
}

// Ping sends a PING and waits for the matching PONG (spec.md §4.2,
// §4.2.4). A nil payload generates a fresh 4-byte random value.
func (c *Conn) Ping(ctx context.Context, payload []byte) error {
	if connState(c.state.Load()) != stateOpen {
		return c.closedErr()
	}

	if payload == nil {
		p, err := randomPingPayload()
		if err != nil {
			return err
		}
		payload = p
	}
	if len(payload) > maxControlFramePayload {
		return ErrControlFrameTooLarge
	}

	key := string(payload)
	done := make(chan struct{})

	c.pingMu.Lock()
	if _, exists := c.pendingPings[key]; exists {
		c.pingMu.Unlock()
		return ErrDuplicatePing
	}
	c.pendingPings[key] = done
	c.pingMu.Unlock()

	if err := c.writeControl(ws.OpPing, payload); err != nil {
		c.pingMu.Lock()
		delete(c.pendingPings, key)
		c.pingMu.Unlock()
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		c.pingMu.Lock()
		delete(c.pendingPings, key)
		c.pingMu.Unlock()
		return ctx.Err()
	case <-c.closedCh:
		return c.closedErr()
	}
}

func (c *Conn) completePing(payload []byte) {
	key := string(payload)
	c.pingMu.Lock()
	done, ok := c.pendingPings[key]
	if ok {
		delete(c.pendingPings, key)
	}
	c.pingMu.Unlock()
	if ok {
		close(done)
	}
}

func randomPingPayload() ([]byte, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Pong sends an unsolicited PONG (spec.md §4.2).
func (c *Conn) Pong(ctx context.Context, payload []byte) error {
	if connState(c.state.Load()) != stateOpen {
		return c.closedErr()
	}
	if len(payload) > maxControlFramePayload {
		return ErrControlFrameTooLarge
	}
	return c.writeControl(ws.OpPong, payload)
}

// Close initiates the closing handshake (spec.md §4.2.2). Idempotent: once
// the connection has left OPEN, subsequent calls just wait for the
// connection to finish closing. Guarantees the underlying stream is closed
// on return, even if ctx is canceled or the peer never echoes.
func (c *Conn) Close(ctx context.Context, code CloseCode, reason string) error {
	initiated := c.state.CompareAndSwap(int32(stateOpen), int32(stateLocalClosing))
	if initiated {
		c.setCloseReasonOnce(code, reason)
		c.localCloseOnce.Do(func() { close(c.localCloseSignal) })
		_ = c.writeControl(ws.OpClose, encodeCloseFramePayload(code, reason))
	}

	var waitErr error
	select {
	case <-c.readerDone:
	case <-time.After(closeHandshakeTimeout):
	case <-ctx.Done():
		waitErr = ctx.Err()
	}

	// Guarantee the stream is closed regardless of how we got here
	// (spec.md §5 "Cancelling aclose still guarantees the Stream is
	// closed").
	// If the reader hasn't already torn things down (timeout or
	// cancellation path), force the stream closed now; the reader
	// goroutine, unblocked by that close, will run finishReader itself.
	c.closedOnce.Do(func() {
		c.state.Store(int32(stateClosed))
		c.closeStream()
		close(c.closedCh)
	})

	return waitErr
}
