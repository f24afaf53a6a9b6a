package websocket

import (
	"fmt"
	"io"

	"github.com/gobwas/ws"
)

// maxControlFramePayload is the RFC 6455 §5.5 control-frame payload limit.
const maxControlFramePayload = 125

// eventKind distinguishes the four ways a decoded frame drives the reader
// loop's state machine (spec.md §4.2.1).
type eventKind int

const (
	evMessage eventKind = iota
	evPing
	evPong
	evClose
)

// frameEvent is what FrameCodec.decode hands back to the Conn reader loop
// for each frame read off the Stream.
type frameEvent struct {
	kind    eventKind
	msgType MessageType
	payload []byte
	code    CloseCode
	reason  string
}

// frameCodec adapts github.com/gobwas/ws frame primitives to the event
// stream the reader loop expects, and to the outbound encode calls the
// write path makes (spec.md §2 component table, "FrameCodec": 10%). Besides
// the websocket role (which decides masking direction), it carries the
// in-progress state of a fragmented message, since RFC 6455 §5.4 lets a text
// or binary message span multiple frames with control frames interleaved
// between fragments. A frameCodec is owned by exactly one Conn and decoded
// from exactly one goroutine (the reader loop), so this state needs no lock.
type frameCodec struct {
	client bool

	fragInProgress bool
	fragMsgType    MessageType
	fragPayload    []byte
}

func newFrameCodec(client bool) *frameCodec {
	return &frameCodec{client: client}
}

// errProtocolViolation marks a decode failure that should be surfaced to
// the peer as a CLOSE frame with the given code, rather than treated as an
// abnormal (1006) transport failure.
type errProtocolViolation struct {
	code CloseCode
	msg  string
}

func (e *errProtocolViolation) Error() string { return "websocket: protocol violation: " + e.msg }

// decode reads frames from r until it has a complete event to report: a
// control frame (PING/PONG/CLOSE) is returned as soon as it arrives, while a
// fragmented text/binary message (RFC 6455 §5.4: an initial frame with
// Fin=false followed by zero or more OpContinuation frames) is reassembled
// across as many calls to ws.ReadFrame as it takes, and only reported once
// the final (Fin=true) fragment arrives. Control frames may legally appear
// between fragments and are reported immediately, leaving the partial
// message buffered in the codec for the next call to resume.
func (c *frameCodec) decode(r io.Reader) (frameEvent, error) {
	for {
		f, err := ws.ReadFrame(r)
		if err != nil {
			return frameEvent{}, err
		}

		// RFC 6455 §5.1: frames from a client MUST be masked; frames from a
		// server MUST NOT be. c.client is this Conn's own role, so the peer
		// that sent f is the opposite side.
		serverSide := !c.client
		if serverSide && !f.Header.Masked {
			return frameEvent{}, &errProtocolViolation{code: CloseProtocolError, msg: "expected masked frame from client"}
		}
		if !serverSide && f.Header.Masked {
			return frameEvent{}, &errProtocolViolation{code: CloseProtocolError, msg: "expected unmasked frame from server"}
		}
		// ws.ReadFrame hands back the payload as it was on the wire; undo the
		// client's mask (RFC 6455 §5.3) before interpreting it.
		if f.Header.Masked {
			ws.Cipher(f.Payload, f.Header.Mask, 0)
		}

		switch f.Header.OpCode {
		case ws.OpText, ws.OpBinary:
			if c.fragInProgress {
				return frameEvent{}, &errProtocolViolation{code: CloseProtocolError, msg: "new message started before previous fragmented message finished"}
			}
			msgType := MessageText
			if f.Header.OpCode == ws.OpBinary {
				msgType = MessageBinary
			}
			if f.Header.Fin {
				return frameEvent{kind: evMessage, msgType: msgType, payload: f.Payload}, nil
			}
			c.fragInProgress = true
			c.fragMsgType = msgType
			c.fragPayload = append([]byte(nil), f.Payload...)

		case ws.OpContinuation:
			if !c.fragInProgress {
				return frameEvent{}, &errProtocolViolation{code: CloseProtocolError, msg: "continuation frame without a preceding fragmented message"}
			}
			c.fragPayload = append(c.fragPayload, f.Payload...)
			if f.Header.Fin {
				msg := frameEvent{kind: evMessage, msgType: c.fragMsgType, payload: c.fragPayload}
				c.fragInProgress = false
				c.fragMsgType = 0
				c.fragPayload = nil
				return msg, nil
			}

		case ws.OpPing:
			return frameEvent{kind: evPing, payload: f.Payload}, nil
		case ws.OpPong:
			return frameEvent{kind: evPong, payload: f.Payload}, nil
		case ws.OpClose:
			code, reason := ws.StatusNoStatusRcvd, ""
			if len(f.Payload) >= 2 {
				code, reason = ws.ParseCloseFrameData(f.Payload)
			}
			return frameEvent{kind: evClose, code: CloseCode(code), reason: reason}, nil
		default:
			return frameEvent{}, &errProtocolViolation{code: CloseProtocolError, msg: fmt.Sprintf("unsupported opcode %d", f.Header.OpCode)}
		}
	}
}

// encodeMessage writes one complete data frame (text or binary).
func (c *frameCodec) encodeMessage(w io.Writer, t MessageType, payload []byte) error {
	op := ws.OpText
	if t == MessageBinary {
		op = ws.OpBinary
	}
	return c.encode(w, op, payload)
}

// encodeControl writes one control frame (PING, PONG, or CLOSE), enforcing
// the 125-byte payload limit (spec.md §6).
func (c *frameCodec) encodeControl(w io.Writer, op ws.OpCode, payload []byte) error {
	if len(payload) > maxControlFramePayload {
		return ErrControlFrameTooLarge
	}
	return c.encode(w, op, payload)
}

func (c *frameCodec) encode(w io.Writer, op ws.OpCode, payload []byte) error {
	var f ws.Frame
	switch op {
	case ws.OpText:
		f = ws.NewTextFrame(payload)
	case ws.OpBinary:
		f = ws.NewBinaryFrame(payload)
	case ws.OpPing:
		f = ws.NewPingFrame(payload)
	case ws.OpPong:
		f = ws.NewPongFrame(payload)
	case ws.OpClose:
		f = ws.NewCloseFrame(payload)
	default:
		return handshakeErrorf("cannot encode opcode %d", op)
	}

	// RFC 6455 §5.1: clients MUST mask every frame they send; servers MUST
	// NOT mask frames they send.
	if c.client {
		f = ws.MaskFrame(f)
	}

	return ws.WriteFrame(w, f)
}

// encodeCloseFramePayload builds the payload for a CLOSE frame from a code and
// reason, matching RFC 6455 §5.5.1 (2-byte big-endian code + UTF-8 reason).
func encodeCloseFramePayload(code CloseCode, reason string) []byte {
	return ws.NewCloseFrameBody(ws.StatusCode(code), reason)
}
