package websocket

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// parsedClientRequest is the validated result of reading a client's
// opening handshake request off a raw Stream (spec.md §4.1 "server side").
// Parsing goes through net/http's request reader (http.ReadRequest), which
// works directly against a bufio.Reader and does not require an
// http.Server — the Server in this core binds raw Listeners, not an
// http.Server, per spec.md §4.3.
type parsedClientRequest struct {
	request      *http.Request
	key          string
	subprotocols []string
	path         string
	br           *bufio.Reader
}

func parseClientHandshake(br *bufio.Reader) (*parsedClientRequest, error) {
	req, err := http.ReadRequest(br)
	if err != nil {
		return nil, handshakeErrorf("reading request: %v", err)
	}

	if err := validateClientHandshake(req); err != nil {
		return nil, err
	}

	return &parsedClientRequest{
		request:      req,
		key:          req.Header.Get("Sec-WebSocket-Key"),
		subprotocols: headerToSlice(req.Header.Get("Sec-WebSocket-Protocol")),
		path:         req.URL.RequestURI(),
		br:           br,
	}, nil
}

func validateClientHandshake(r *http.Request) error {
	if !r.ProtoAtLeast(1, 1) {
		return handshakeErrorf("HTTP version must be 1.1 or higher")
	}
	if r.Method != http.MethodGet {
		return handshakeErrorf("HTTP method must be GET, got %s", r.Method)
	}
	if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return handshakeErrorf(`"Upgrade" header must be "websocket"`)
	}
	hasUpgrade := false
	for _, tok := range headerToSlice(r.Header.Get("Connection")) {
		if strings.EqualFold(tok, "upgrade") {
			hasUpgrade = true
		}
	}
	if !hasUpgrade {
		return handshakeErrorf(`"Connection" header must contain "Upgrade"`)
	}
	if r.Header.Get("Sec-WebSocket-Version") != wsVersion {
		return handshakeErrorf("unsupported Sec-WebSocket-Version %q", r.Header.Get("Sec-WebSocket-Version"))
	}

	key := r.Header.Get("Sec-WebSocket-Key")
	decoded, err := base64.StdEncoding.DecodeString(key)
	if err != nil || len(decoded) != 16 {
		return handshakeErrorf("Sec-WebSocket-Key must decode to 16 bytes")
	}

	return nil
}

// headerToSlice splits a comma-separated HTTP header field into trimmed
// values (spec.md §4.1 subprotocol negotiation).
func headerToSlice(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

// writeSwitchingProtocolsResponse writes the 101 response that completes
// the server-side opening handshake (spec.md §4.1 "server side": the
// handler MUST call accept(), which writes the 101 response using the
// subprotocol field").
func writeSwitchingProtocolsResponse(w *bufio.Writer, acceptKey, subprotocol string) error {
	resp := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + acceptKey + "\r\n"
	if subprotocol != "" {
		resp += "Sec-WebSocket-Protocol: " + subprotocol + "\r\n"
	}
	resp += "\r\n"
	if _, err := w.WriteString(resp); err != nil {
		return err
	}
	return w.Flush()
}

// writeRejectionResponse writes a non-101 response and the handshake
// ends without upgrading (spec.md §4.1 "reject").
func writeRejectionResponse(w *bufio.Writer, status int, headers http.Header, body []byte) error {
	statusText := http.StatusText(status)
	if statusText == "" {
		statusText = "Error"
	}
	if _, err := fmt.Fprintf(w, "HTTP/1.1 %d %s\r\n", status, statusText); err != nil {
		return err
	}
	for k, vs := range headers {
		for _, v := range vs {
			if _, err := fmt.Fprintf(w, "%s: %s\r\n", k, v); err != nil {
				return err
			}
		}
	}
	if _, err := fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(body)); err != nil {
		return err
	}
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return err
		}
	}
	return w.Flush()
}
