package websocket

import "testing"

func TestListenPortString(t *testing.T) {
	testCases := []struct {
		lp   ListenPort
		want string
	}{
		{lp: ListenPort{Address: "127.0.0.1", Port: 8080, TLS: false}, want: "ws://127.0.0.1:8080"},
		{lp: ListenPort{Address: "127.0.0.1", Port: 8443, TLS: true}, want: "wss://127.0.0.1:8443"},
		{lp: ListenPort{Address: "::1", Port: 8080, TLS: false}, want: "ws://[::1]:8080"},
		{lp: ListenPort{Address: "2001:db8::1", Port: 443, TLS: true}, want: "wss://[2001:db8::1]:443"},
	}

	for i, c := range testCases {
		if got := c.lp.String(); got != c.want {
			t.Errorf("case %d: got %q, want %q", i, got, c.want)
		}
	}
}

func TestCloseCodeName(t *testing.T) {
	testCases := []struct {
		code CloseCode
		want string
	}{
		{code: CloseNormalClosure, want: "NORMAL_CLOSURE"},
		{code: CloseGoingAway, want: "GOING_AWAY"},
		{code: CloseCode(4999), want: "UNKNOWN"},
	}

	for i, c := range testCases {
		if got := c.code.Name(); got != c.want {
			t.Errorf("case %d: got %q, want %q", i, got, c.want)
		}
	}
}
