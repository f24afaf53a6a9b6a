package websocket

import (
	"context"
	"net"
	"testing"
)

// requestPair builds a Request from a server-side net.Pipe half, completing
// only the read of the client's opening handshake (mirroring connPair, but
// stopping short of Accept/Reject so the tests below can exercise those
// calls themselves).
func requestPair(t *testing.T) (req *Request, client Stream, scope *Scope) {
	t.Helper()

	clientStream, serverStream := net.Pipe()
	ctx := context.Background()
	scope, scopeCtx := NewScope(ctx)

	reqCh := make(chan *Request, 1)
	scope.Spawn(func() error {
		r, err := WrapServerStream(scopeCtx, scope, serverStream, nil, 0)
		if err != nil {
			t.Errorf("server handshake failed: %v", err)
			reqCh <- nil
			return nil
		}
		reqCh <- r
		return nil
	})

	scope.Spawn(func() error {
		_, err := WrapClientStream(scopeCtx, scope, clientStream, "example.invalid", "/")
		return err
	})

	req = <-reqCh
	if req == nil {
		t.Fatal("server side did not produce a request")
	}
	return req, clientStream, scope
}

func TestRequestAcceptTwiceFails(t *testing.T) {
	req, _, _ := requestPair(t)
	ctx := context.Background()

	if _, err := req.Accept(ctx); err != nil {
		t.Fatalf("first accept failed: %v", err)
	}
	if _, err := req.Accept(ctx); err != ErrRequestFinished {
		t.Errorf("second accept: got %v, want %v", err, ErrRequestFinished)
	}
}

func TestRequestRejectAfterAcceptFails(t *testing.T) {
	req, _, _ := requestPair(t)
	ctx := context.Background()

	if _, err := req.Accept(ctx); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if err := req.Reject(500, nil, nil); err != ErrRequestFinished {
		t.Errorf("reject after accept: got %v, want %v", err, ErrRequestFinished)
	}
}

func TestRequestRejectTwiceFails(t *testing.T) {
	req, _, _ := requestPair(t)

	if err := req.Reject(403, nil, nil); err != nil {
		t.Fatalf("first reject failed: %v", err)
	}
	if err := req.Reject(403, nil, nil); err != ErrRequestFinished {
		t.Errorf("second reject: got %v, want %v", err, ErrRequestFinished)
	}
}

func TestRequestAcceptAfterRejectFails(t *testing.T) {
	req, _, _ := requestPair(t)
	ctx := context.Background()

	if err := req.Reject(403, nil, nil); err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if _, err := req.Accept(ctx); err != ErrRequestFinished {
		t.Errorf("accept after reject: got %v, want %v", err, ErrRequestFinished)
	}
}

func TestRequestSetSubprotocolNotOffered(t *testing.T) {
	req, _, _ := requestPair(t)

	if err := req.SetSubprotocol("not-proposed"); err != ErrSubprotocolNotOffered {
		t.Errorf("got %v, want %v", err, ErrSubprotocolNotOffered)
	}

	// Clearing it back to "" is always allowed regardless of what was
	// proposed.
	if err := req.SetSubprotocol(""); err != nil {
		t.Errorf("clearing subprotocol failed: %v", err)
	}
}
