// Package transport provides the byte-stream connections nettables runs
// over. The engines only need a net.Conn; this package supplies plain TCP
// and WebSocket (binary messages carried as a stream) on both the dialing
// and the accepting side.
package transport

import (
	"context"
	"net"
	"strings"
	"time"
)

// Dialer opens a connection to a peer.
type Dialer interface {
	// DialContext opens a connection to address. TCP dialers take
	// "host:port"; WebSocket dialers take a ws:// or wss:// URL.
	DialContext(ctx context.Context, address string) (net.Conn, error)
}

// Compile-time interface checks.
var (
	_ Dialer       = (*TCPDialer)(nil)
	_ Dialer       = (*WSDialer)(nil)
	_ net.Conn     = (*WSConn)(nil)
	_ net.Listener = (*WSListener)(nil)
)

// DialerFor picks a dialer from the address scheme: ws:// and wss://
// use WebSocket, anything else plain TCP.
func DialerFor(address string, timeout time.Duration) Dialer {
	if IsWebSocketURL(address) {
		return &WSDialer{Timeout: timeout}
	}
	return &TCPDialer{Timeout: timeout}
}

// IsWebSocketURL reports whether address uses a WebSocket scheme.
func IsWebSocketURL(address string) bool {
	return strings.HasPrefix(address, "ws://") || strings.HasPrefix(address, "wss://")
}
