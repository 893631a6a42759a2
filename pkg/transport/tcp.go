package transport

import (
	"context"
	"net"
	"time"
)

// TCPDialer opens TCP connections.
type TCPDialer struct {
	// Timeout is the maximum time to wait for the connection to be
	// established. Zero means only the context deadline applies.
	Timeout time.Duration
}

// DialContext opens a TCP connection to address (host:port).
func (d *TCPDialer) DialContext(ctx context.Context, address string) (net.Conn, error) {
	return (&net.Dialer{Timeout: d.Timeout}).DialContext(ctx, "tcp", address)
}

// ListenTCP opens a TCP listener. Use ":0" for a random port.
func ListenTCP(address string) (net.Listener, error) {
	return net.Listen("tcp", address)
}
