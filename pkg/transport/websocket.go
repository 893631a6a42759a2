package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSConn adapts a WebSocket connection to a net.Conn byte stream. Each
// Write is sent as one binary message; Read returns message payloads
// back to back, so frame boundaries need not line up with messages.
type WSConn struct {
	ws *websocket.Conn

	readMu sync.Mutex
	reader io.Reader

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewWSConn wraps ws as a net.Conn.
func NewWSConn(ws *websocket.Conn) *WSConn {
	return &WSConn{ws: ws}
}

// Read reads from the current binary message, advancing to the next one
// when it is exhausted. Text messages are skipped. A normal close from
// the peer reads as io.EOF.
func (c *WSConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for {
		if c.reader == nil {
			typ, r, err := c.ws.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			if typ != websocket.BinaryMessage {
				continue
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if errors.Is(err, io.EOF) {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

// Write sends p as a single binary message.
func (c *WSConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a close message and closes the underlying connection.
func (c *WSConn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

func (c *WSConn) LocalAddr() net.Addr  { return c.ws.LocalAddr() }
func (c *WSConn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

// SetDeadline sets both read and write deadlines.
func (c *WSConn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *WSConn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *WSConn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }

// WSDialer opens WebSocket connections.
type WSDialer struct {
	// Timeout bounds the opening handshake. Zero means only the context
	// deadline applies.
	Timeout time.Duration

	// Header is sent with the upgrade request.
	Header http.Header
}

// DialContext opens a WebSocket connection to a ws:// or wss:// URL.
func (d *WSDialer) DialContext(ctx context.Context, address string) (net.Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.Timeout,
	}
	ws, resp, err := dialer.DialContext(ctx, address, d.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return NewWSConn(ws), nil
}

// WSListener is an http.Handler that upgrades requests to WebSocket and
// hands the resulting connections out through Accept, so a WebSocket
// endpoint can be served like any other net.Listener.
type WSListener struct {
	upgrader websocket.Upgrader
	addr     net.Addr

	conns     chan net.Conn
	done      chan struct{}
	closeOnce sync.Once
}

// NewWSListener creates a listener reporting addr from Addr. If
// checkOrigin is nil every origin is accepted; nettables peers are not
// browsers.
func NewWSListener(addr net.Addr, checkOrigin func(*http.Request) bool) *WSListener {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &WSListener{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		addr:  addr,
		conns: make(chan net.Conn),
		done:  make(chan struct{}),
	}
}

// ServeHTTP upgrades the request and waits for Accept to take the
// connection.
func (l *WSListener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-l.done:
		http.Error(w, "listener closed", http.StatusServiceUnavailable)
		return
	default:
	}

	ws, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		return
	}
	conn := NewWSConn(ws)

	select {
	case l.conns <- conn:
	case <-l.done:
		conn.Close()
	case <-r.Context().Done():
		conn.Close()
	}
}

// Accept waits for the next upgraded connection.
func (l *WSListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

// Close stops Accept. Connections already accepted stay open.
func (l *WSListener) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	return nil
}

// Addr returns the address given to NewWSListener.
func (l *WSListener) Addr() net.Addr {
	if l.addr == nil {
		return wsAddr("websocket")
	}
	return l.addr
}

type wsAddr string

func (a wsAddr) Network() string { return "websocket" }
func (a wsAddr) String() string  { return string(a) }
