package websocket

import (
	"fmt"
	"net/url"
	"strings"
)

// parsedTarget is the result of parsing a ws(s):// URL: enough to dial a
// TCP connection plus the exact request target to send (spec.md §4.1 "URL
// parsing for open_websocket_url").
type parsedTarget struct {
	hostPort string // host:port, always has a port, for dialing
	hostname string // bare host, for the Host header and TLS ServerName
	port     string
	tls      bool
	resource string // path + "?" + query, verbatim (spec.md §9 "URL path preservation")
}

// parseWebsocketURL parses a ws:// or wss:// URL. Any other scheme fails
// with ErrInvalidURL (spec.md §4.1, §6). Default ports are 80 (ws) and 443
// (wss), per spec.md §6 — unlike some hand-rolled WebSocket clients, this
// core does not special-case a non-standard default port.
func parseWebsocketURL(raw string) (*parsedTarget, error) {
	if !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	var isTLS bool
	switch u.Scheme {
	case "ws":
		isTLS = false
	case "wss":
		isTLS = true
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	port := u.Port()
	if port == "" {
		if isTLS {
			port = "443"
		} else {
			port = "80"
		}
	}

	resource := u.EscapedPath()
	if resource == "" {
		resource = "/"
	}
	if u.RawQuery != "" {
		resource += "?" + u.RawQuery
	}

	return &parsedTarget{
		hostPort: joinHostPort(host, port),
		hostname: host,
		port:     port,
		tls:      isTLS,
		resource: resource,
	}, nil
}

func joinHostPort(host, port string) string {
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}
	return host + ":" + port
}
