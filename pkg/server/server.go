package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/nettables/internal/link"
	"github.com/vango-dev/nettables/pkg/metrics"
	"github.com/vango-dev/nettables/pkg/protocol"
	"github.com/vango-dev/nettables/pkg/session"
	"github.com/vango-dev/nettables/pkg/store"
	"github.com/vango-dev/nettables/pkg/transport"
)

// tracerName is the instrumentation scope for server spans.
const tracerName = "github.com/vango-dev/nettables/pkg/server"

// Server keeps a store in sync with every connected client.
type Server struct {
	store    *store.Store
	config   Config
	identity string

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	peers     *xsync.MapOf[string, *peer]
	listeners *xsync.MapOf[string, net.Listener]

	// active counts reserved session slots, including sessions still
	// being set up, so MaxSessions holds under concurrent accepts.
	active atomic.Int64

	addrMu sync.Mutex
	addr   net.Addr

	listenerID store.ListenerID
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	stopped    atomic.Bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. The server adds component=server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics sink. Nil disables metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithTracer sets the tracer used for handshake spans.
// Default: the global provider's tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Server) {
		s.tracer = tracer
	}
}

// peer is one connected client.
type peer struct {
	link      *link.Link
	connected time.Time

	// synced is set once the snapshot has been written; guarded by the
	// link's send lock.
	synced bool
}

// forward sends n to the peer once it has its snapshot.
func (p *peer) forward(n store.Notification) error {
	return p.link.Sync(func(send link.SendFunc) error {
		if !p.synced {
			return nil
		}
		msgs, err := p.link.Session().Encode(n)
		if err != nil {
			return err
		}
		return send(msgs...)
	})
}

// New creates a Server for st and registers its fan-out listener.
func New(st *store.Store, config Config, opts ...Option) *Server {
	config = config.withDefaults()

	s := &Server{
		store:     st,
		config:    config,
		identity:  config.Identity,
		peers:     xsync.NewMapOf[string, *peer](),
		listeners: xsync.NewMapOf[string, net.Listener](),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "server")
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	if s.identity == "" {
		s.identity = "nettables-" + uuid.NewString()
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.listenerID = st.AddListener(s.fanout, store.ListenerOptions{Events: store.EventAll})
	s.metrics.SetEntries(st.Len())
	return s
}

// Identity returns the name sent in ServerHello.
func (s *Server) Identity() string {
	return s.identity
}

// Config returns the server configuration.
func (s *Server) Config() Config {
	return s.config
}

// Store returns the store the server synchronizes.
func (s *Server) Store() *store.Store {
	return s.store
}

// fanout forwards one mutation to every synced session except the one
// it came from.
func (s *Server) fanout(n store.Notification) {
	switch n.Event {
	case store.EventCreate, store.EventDelete, store.EventClear:
		s.metrics.SetEntries(s.store.Len())
	}

	s.peers.Range(func(id string, p *peer) bool {
		if !n.Origin.IsLocal() && n.Origin.Session == id {
			return true
		}
		if err := p.forward(n); err != nil && !p.link.Closed() {
			p.link.Logger().Warn("forward failed", "entry", n.Entry.Name, "event", n.Event.String(), "error", err)
		}
		return true
	})
}

// ListenAndServe listens on the configured TCP address and serves until
// ctx is done or Stop is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.config.Validate(); err != nil {
		return err
	}
	ln, err := transport.ListenTCP(s.config.Address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done or Stop is called,
// then closes ln. It returns nil on either kind of shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.stopped.Load() {
		ln.Close()
		return ErrServerStopped
	}

	key := ln.Addr().Network() + "://" + ln.Addr().String()
	s.listeners.Store(key, ln)
	s.setAddr(ln.Addr())
	defer s.listeners.Delete(key)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-s.ctx.Done():
		case <-done:
		}
		ln.Close()
	}()

	s.logger.Info("listening", "address", key, "identity", s.identity)

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.stopped.Load() || ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.logger.Info("listener closed", "address", key)
				return nil
			}
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff = min(2*backoff, time.Second)
			}
			s.logger.Error("accept failed", "address", key, "error", err, "retry_in", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.ServeConn(ctx, conn); err != nil {
				s.logger.Info("session ended", "remote_addr", conn.RemoteAddr().String(), "error", err)
			}
		}()
	}
}

func (s *Server) setAddr(addr net.Addr) {
	s.addrMu.Lock()
	defer s.addrMu.Unlock()
	if s.addr == nil {
		s.addr = addr
	}
}

// Addr returns the address of the first listener passed to Serve, or nil.
func (s *Server) Addr() net.Addr {
	s.addrMu.Lock()
	defer s.addrMu.Unlock()
	return s.addr
}

// ServeConn runs one session on conn and blocks until it ends. It is
// what Serve runs for each accepted connection and can be used directly
// for connections accepted elsewhere.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) error {
	if s.stopped.Load() {
		conn.Close()
		return ErrServerStopped
	}
	if n := s.active.Add(1); s.config.MaxSessions > 0 && n > int64(s.config.MaxSessions) {
		s.active.Add(-1)
		conn.Close()
		return ErrMaxSessionsReached
	}
	defer s.active.Add(-1)

	id := uuid.NewString()
	sess := session.New(id, session.RoleServer)
	l := link.New(sess, conn, link.Options{
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
		Logger:       s.logger,
		Metrics:      s.metrics,
	})
	p := &peer{link: l, connected: time.Now()}

	s.peers.Store(id, p)
	s.metrics.SessionOpened()
	l.Logger().Info("session opened")
	defer func() {
		s.peers.Delete(id)
		l.Close()
		s.metrics.SessionClosed()
		s.store.UpdateConnection(id, store.ConnectionInfo{State: store.Disconnected})
		l.Logger().Info("session closed")
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-ctx.Done():
		case <-s.ctx.Done():
		case <-l.Done():
		}
		l.Close()
	}()

	_, hs := link.StartHandshake(ctx, s.tracer, s.metrics, "nettables.server.handshake", trace.SpanKindServer,
		attribute.String("nettables.session", id),
		attribute.String("net.peer.addr", l.RemoteAddr()),
	)
	defer hs.Fail("aborted", nil)

	if s.config.HandshakeTimeout > 0 {
		timer := time.AfterFunc(s.config.HandshakeTimeout, func() {
			if !sess.Ready() {
				l.Logger().Warn("handshake timed out", "timeout", s.config.HandshakeTimeout)
				hs.Fail("timeout", ErrHandshakeTimeout)
				l.Close()
			}
		})
		defer timer.Stop()
	}

	if err := l.Send(sess.Hello(s.identity)); err != nil {
		return &SessionError{SessionID: id, Op: "hello", Err: err}
	}
	go l.KeepAlive(ctx, s.config.KeepAliveInterval)

	err := l.ReadLoop(func(m protocol.Message) error {
		return s.handle(p, m, hs)
	})
	if err != nil {
		return &SessionError{SessionID: id, Op: "read", Err: err}
	}
	return nil
}

// handle processes one inbound message for p.
func (s *Server) handle(p *peer, m protocol.Message, hs *link.Handshake) error {
	sess := p.link.Session()

	res, err := p.link.Apply(s.store, m)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrVersionMismatch):
			p.link.Send(res.Replies...)
			p.link.Logger().Warn("rejecting client protocol version", "error", err)
			hs.Fail("version_mismatch", err)
			return err
		case errors.Is(err, session.ErrClosed):
			return err
		}
		p.link.Logger().Warn("message rejected", "type", m.Type().String(), "error", err)
		return nil
	}

	if _, ok := m.(*protocol.ClientHello); ok {
		hs.SetAttributes(attribute.String("nettables.client", sess.RemoteID()))
	}

	if res.Ready {
		return s.sync(p, res.Replies, hs)
	}
	if len(res.Replies) > 0 {
		if err := p.link.Send(res.Replies...); err != nil && p.link.Closed() {
			return err
		}
	}
	return nil
}

// sync completes the handshake: ServerHelloComplete, then every entry as
// an assignment, all under the send lock so no fan-out interleaves.
func (s *Server) sync(p *peer, replies []protocol.Message, hs *link.Handshake) error {
	sess := p.link.Session()

	var sent int
	err := p.link.Sync(func(send link.SendFunc) error {
		if err := send(replies...); err != nil && p.link.Closed() {
			return err
		}
		for _, e := range s.store.List() {
			msgs, err := sess.Assign(e)
			if err != nil {
				p.link.Logger().Warn("snapshot entry skipped", "entry", e.Name, "error", err)
				continue
			}
			if err := send(msgs...); err != nil && p.link.Closed() {
				return err
			}
			sent++
		}
		// A keepalive right behind the snapshot tells the client it has
		// the whole table and may send its own changes.
		if err := send(&protocol.KeepAlive{}); err != nil && p.link.Closed() {
			return err
		}
		p.synced = true
		return nil
	})
	if err != nil {
		hs.Fail("write", err)
		return err
	}

	hs.Done()
	s.store.UpdateConnection(sess.ID(), store.ConnectionInfo{
		State:           store.Connected,
		RemoteID:        sess.RemoteID(),
		Address:         p.link.RemoteAddr(),
		ProtocolVersion: sess.ProtocolVersion(),
	})
	p.link.Logger().Info("session ready", "client", sess.RemoteID(), "snapshot_entries", sent)
	return nil
}

// SessionInfo describes one connected client.
type SessionInfo struct {
	ID              string    `json:"id" cbor:"id"`
	RemoteID        string    `json:"remote_id" cbor:"remote_id"`
	Address         string    `json:"address" cbor:"address"`
	Phase           string    `json:"phase" cbor:"phase"`
	ProtocolVersion uint16    `json:"protocol_version" cbor:"protocol_version"`
	Connected       time.Time `json:"connected" cbor:"connected"`
}

// Sessions returns the open sessions, oldest first.
func (s *Server) Sessions() []SessionInfo {
	var out []SessionInfo
	s.peers.Range(func(id string, p *peer) bool {
		sess := p.link.Session()
		out = append(out, SessionInfo{
			ID:              id,
			RemoteID:        sess.RemoteID(),
			Address:         p.link.RemoteAddr(),
			Phase:           sess.Phase().String(),
			ProtocolVersion: sess.ProtocolVersion(),
			Connected:       p.connected,
		})
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Connected.Equal(out[j].Connected) {
			return out[i].ID < out[j].ID
		}
		return out[i].Connected.Before(out[j].Connected)
	})
	return out
}

// Stop closes every listener and session, waits for sessions started by
// Serve to finish, and unregisters the store listener. The store keeps
// its entries. Stop is idempotent.
func (s *Server) Stop() {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}
	s.cancel()

	s.listeners.Range(func(_ string, ln net.Listener) bool {
		ln.Close()
		return true
	})
	s.peers.Range(func(_ string, p *peer) bool {
		p.link.Close()
		return true
	})
	s.wg.Wait()

	s.store.RemoveListener(s.listenerID)
	s.logger.Info("server stopped")
}
