// Package link drives one connection for either engine: it owns the
// net.Conn, serializes writes behind a send lock, pumps inbound bytes
// through the session, and sends keepalives.
package link

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/vango-dev/nettables/pkg/metrics"
	"github.com/vango-dev/nettables/pkg/protocol"
	"github.com/vango-dev/nettables/pkg/session"
	"github.com/vango-dev/nettables/pkg/store"
)

// readBufferSize is the size of each conn.Read.
const readBufferSize = 32 * 1024

// Options configures a Link.
type Options struct {
	// WriteTimeout bounds each batched write. Zero disables the deadline.
	WriteTimeout time.Duration

	// IdleTimeout closes the link when nothing arrives for this long.
	// Peers send keepalives, so this only fires on dead connections.
	// Zero disables the deadline.
	IdleTimeout time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// SendFunc writes messages while the send lock is held.
type SendFunc func(msgs ...protocol.Message) error

// Link is one connection and its session.
type Link struct {
	sess    *session.Session
	conn    net.Conn
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu sync.Mutex // send lock

	closeOnce sync.Once
	done      chan struct{}
}

// New wraps conn. The caller owns sess until Close.
func New(sess *session.Session, conn net.Conn, opts Options) *Link {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Link{
		sess:    sess,
		conn:    conn,
		opts:    opts,
		logger:  logger.With("session", sess.ID(), "remote_addr", remoteAddr(conn)),
		metrics: opts.Metrics,
		done:    make(chan struct{}),
	}
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// Session returns the link's session.
func (l *Link) Session() *session.Session {
	return l.sess
}

// Logger returns the link-scoped logger.
func (l *Link) Logger() *slog.Logger {
	return l.logger
}

// RemoteAddr returns the peer address.
func (l *Link) RemoteAddr() string {
	return remoteAddr(l.conn)
}

// Done is closed once the link has been closed.
func (l *Link) Done() <-chan struct{} {
	return l.done
}

// Send writes msgs as one batch under the send lock.
func (l *Link) Send(msgs ...protocol.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.write(msgs...)
}

// Sync runs fn with the send lock held. Everything fn sends goes out in
// order with nothing from other goroutines in between, so fn may encode
// (and thereby assign sequence numbers) and write as one step.
func (l *Link) Sync(fn func(send SendFunc) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(l.write)
}

// write serializes and writes msgs. Caller must hold l.mu.
func (l *Link) write(msgs ...protocol.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	select {
	case <-l.done:
		l.logger.Debug("write after close dropped", "messages", len(msgs))
		return net.ErrClosed
	default:
	}

	var (
		buf  []byte
		errs []error
	)
	for _, m := range msgs {
		b, err := protocol.Serialize(m)
		if err != nil {
			l.logger.Warn("dropping unencodable message", "type", m.Type().String(), "error", err)
			errs = append(errs, err)
			continue
		}
		buf = append(buf, b...)
	}
	if len(buf) == 0 {
		return errors.Join(errs...)
	}

	if l.opts.WriteTimeout > 0 {
		l.conn.SetWriteDeadline(time.Now().Add(l.opts.WriteTimeout))
	}
	if _, err := l.conn.Write(buf); err != nil {
		l.metrics.WriteError()
		if errors.Is(err, net.ErrClosed) {
			l.logger.Debug("write after close", "error", err)
		} else {
			l.logger.Warn("write failed", "error", err)
		}
		l.Close()
		return err
	}
	for _, m := range msgs {
		l.metrics.MessageSent(m.Type().String())
	}
	return errors.Join(errs...)
}

// Forward encodes a store notification on the session and writes the
// result as one step under the send lock.
func (l *Link) Forward(n store.Notification) error {
	return l.Sync(func(send SendFunc) error {
		msgs, err := l.sess.Encode(n)
		if err != nil {
			return err
		}
		return send(msgs...)
	})
}

// Apply applies one inbound message to st and records the outcome.
func (l *Link) Apply(st *store.Store, m protocol.Message) (session.Result, error) {
	res, err := l.sess.Apply(st, m)
	if err != nil {
		l.metrics.ApplyError()
		return res, err
	}
	if res.Stale {
		l.metrics.StaleUpdate()
		l.logger.Debug("stale update dropped", "type", m.Type().String())
	}
	return res, nil
}

// Handler processes one decoded message. Returning an error ends the
// read loop.
type Handler func(m protocol.Message) error

// ReadLoop reads until the connection fails or handle returns an error,
// feeding bytes through the session and passing each complete message to
// handle in arrival order. Undecodable frames are logged, counted and
// skipped. A clean close by either side returns nil.
func (l *Link) ReadLoop(handle Handler) error {
	buf := make([]byte, readBufferSize)
	for {
		if l.opts.IdleTimeout > 0 {
			l.conn.SetReadDeadline(time.Now().Add(l.opts.IdleTimeout))
		}
		n, err := l.conn.Read(buf)
		if n > 0 {
			msgs, ferr := l.sess.Feed(buf[:n])
			if ferr != nil {
				if errors.Is(ferr, session.ErrClosed) {
					return nil
				}
				for range unwrapAll(ferr) {
					l.metrics.DecodeError()
				}
				l.logger.Warn("dropped undecodable frames", "error", ferr)
			}
			for _, m := range msgs {
				l.metrics.MessageReceived(m.Type().String())
				if herr := handle(m); herr != nil {
					return herr
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || l.Closed() {
				return nil
			}
			return err
		}
	}
}

func unwrapAll(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}

// KeepAlive sends a KeepAlive every interval once the session has sent
// its hello, until ctx is done or the link closes.
func (l *Link) KeepAlive(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case <-ticker.C:
			if !l.sess.CanSend() {
				continue
			}
			if err := l.Send(&protocol.KeepAlive{}); err != nil {
				return
			}
		}
	}
}

// Closed reports whether Close has been called.
func (l *Link) Closed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// Close closes the connection and the session. It is safe to call more
// than once and from any goroutine.
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.conn.Close()
		l.sess.Close()
	})
	return err
}
