package websocket

import (
	"bytes"
	"testing"

	"github.com/gobwas/ws"
)

func TestFrameCodecMessageRoundTrip(t *testing.T) {
	testCases := []struct {
		client bool
		typ    MessageType
	}{
		{client: true, typ: MessageText},
		{client: false, typ: MessageBinary},
	}

	for i, c := range testCases {
		codec := newFrameCodec(c.client)
		var buf bytes.Buffer

		if err := codec.encodeMessage(&buf, c.typ, []byte("payload")); err != nil {
			t.Fatalf("case %d: encode failed: %v", i, err)
		}

		// decode is called from the opposite role's perspective, since it
		// validates the masking direction of the peer that sent the frame.
		peer := newFrameCodec(!c.client)
		ev, err := peer.decode(&buf)
		if err != nil {
			t.Fatalf("case %d: decode failed: %v", i, err)
		}
		if ev.kind != evMessage {
			t.Errorf("case %d: kind = %v, want evMessage", i, ev.kind)
		}
		if ev.msgType != c.typ {
			t.Errorf("case %d: msgType = %v, want %v", i, ev.msgType, c.typ)
		}
		if string(ev.payload) != "payload" {
			t.Errorf("case %d: payload = %q, want %q", i, ev.payload, "payload")
		}
	}
}

func TestFrameCodecRejectsWrongMaskingDirection(t *testing.T) {
	// A client-encoded (masked) frame decoded as if it came from the server
	// (i.e. by a peer expecting an unmasked server frame) must be rejected.
	clientCodec := newFrameCodec(true)
	var buf bytes.Buffer
	if err := clientCodec.encodeMessage(&buf, MessageText, []byte("hi")); err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	// Decoding as the client role means we expect frames from the server
	// (unmasked); a masked frame here is a protocol violation.
	sameRoleCodec := newFrameCodec(true)
	_, err := sameRoleCodec.decode(&buf)
	if err == nil {
		t.Fatal("expected a protocol violation error")
	}
	pv, ok := err.(*errProtocolViolation)
	if !ok {
		t.Fatalf("got %T, want *errProtocolViolation", err)
	}
	if pv.code != CloseProtocolError {
		t.Errorf("code = %v, want %v", pv.code, CloseProtocolError)
	}
}

func TestFrameCodecControlFrameTooLarge(t *testing.T) {
	codec := newFrameCodec(true)
	var buf bytes.Buffer
	big := make([]byte, maxControlFramePayload+1)

	if err := codec.encodeControl(&buf, ws.OpPing, big); err != ErrControlFrameTooLarge {
		t.Errorf("got %v, want %v", err, ErrControlFrameTooLarge)
	}
}

func TestFrameCodecReassemblesFragmentedMessage(t *testing.T) {
	var buf bytes.Buffer

	first := ws.MaskFrame(ws.NewFrame(ws.OpText, false, []byte("hello ")))
	if err := ws.WriteFrame(&buf, first); err != nil {
		t.Fatalf("writing first fragment failed: %v", err)
	}
	last := ws.MaskFrame(ws.NewFrame(ws.OpContinuation, true, []byte("world")))
	if err := ws.WriteFrame(&buf, last); err != nil {
		t.Fatalf("writing final fragment failed: %v", err)
	}

	// A masked frame was written above, so decode as a server (expecting a
	// client's masked frames).
	codec := newFrameCodec(false)
	ev, err := codec.decode(&buf)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if ev.kind != evMessage {
		t.Errorf("kind = %v, want evMessage", ev.kind)
	}
	if ev.msgType != MessageText {
		t.Errorf("msgType = %v, want MessageText", ev.msgType)
	}
	if string(ev.payload) != "hello world" {
		t.Errorf("payload = %q, want %q", ev.payload, "hello world")
	}
}

func TestFrameCodecControlFrameInterleavedWithFragments(t *testing.T) {
	var buf bytes.Buffer

	first := ws.MaskFrame(ws.NewFrame(ws.OpText, false, []byte("part-1-")))
	if err := ws.WriteFrame(&buf, first); err != nil {
		t.Fatalf("writing first fragment failed: %v", err)
	}
	ping := ws.MaskFrame(ws.NewPingFrame([]byte("ping-payload")))
	if err := ws.WriteFrame(&buf, ping); err != nil {
		t.Fatalf("writing interleaved ping failed: %v", err)
	}
	last := ws.MaskFrame(ws.NewFrame(ws.OpContinuation, true, []byte("part-2")))
	if err := ws.WriteFrame(&buf, last); err != nil {
		t.Fatalf("writing final fragment failed: %v", err)
	}

	codec := newFrameCodec(false)

	pingEv, err := codec.decode(&buf)
	if err != nil {
		t.Fatalf("decode (ping) failed: %v", err)
	}
	if pingEv.kind != evPing {
		t.Fatalf("kind = %v, want evPing", pingEv.kind)
	}
	if string(pingEv.payload) != "ping-payload" {
		t.Errorf("ping payload = %q, want %q", pingEv.payload, "ping-payload")
	}

	msgEv, err := codec.decode(&buf)
	if err != nil {
		t.Fatalf("decode (message) failed: %v", err)
	}
	if msgEv.kind != evMessage {
		t.Fatalf("kind = %v, want evMessage", msgEv.kind)
	}
	if string(msgEv.payload) != "part-1-part-2" {
		t.Errorf("payload = %q, want %q", msgEv.payload, "part-1-part-2")
	}
}

func TestFrameCodecCloseRoundTrip(t *testing.T) {
	codec := newFrameCodec(false)
	var buf bytes.Buffer

	payload := encodeCloseFramePayload(CloseGoingAway, "bye")
	if err := codec.encodeControl(&buf, ws.OpClose, payload); err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	peer := newFrameCodec(true)
	ev, err := peer.decode(&buf)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if ev.kind != evClose {
		t.Errorf("kind = %v, want evClose", ev.kind)
	}
	if ev.code != CloseGoingAway {
		t.Errorf("code = %v, want %v", ev.code, CloseGoingAway)
	}
	if ev.reason != "bye" {
		t.Errorf("reason = %q, want %q", ev.reason, "bye")
	}
}
