package client

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
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

// tracerName is the instrumentation scope for client spans.
const tracerName = "github.com/vango-dev/nettables/pkg/client"

// Client keeps a store in sync with one server.
type Client struct {
	store    *store.Store
	config   Config
	identity string

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	mu          sync.Mutex
	gen         uint64
	addr        string
	cancel      context.CancelFunc // nil while not connected
	conn        *conn
	info        store.ConnectionInfo
	ready       chan struct{}
	readyClosed bool
	listenerID  store.ListenerID

	// dirty holds local changes no synced connection has carried yet,
	// by name. It outlives connections so changes made while
	// reconnecting are sent once the next handshake completes.
	dirty map[string]store.Entry
	// watermark is the newest LastChange in the store when the
	// forwarding listener was last removed. Entries changed after it
	// were written while nothing was listening.
	watermark int64
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. The client adds component=client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics sink. Nil disables metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithTracer sets the tracer used for handshake spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = tracer
	}
}

// conn is one transport connection and its session.
type conn struct {
	link *link.Link
	gen  uint64

	// synced is set once the server's snapshot is applied and dirty
	// entries are flushed. Until then local changes go to Client.dirty.
	// Written only by the read loop, under the link's send lock.
	synced bool
}

// New creates a Client for st.
func New(st *store.Store, config Config, opts ...Option) *Client {
	config = config.withDefaults()

	c := &Client{
		store:    st,
		config:   config,
		identity: config.Identity,
		ready:    make(chan struct{}),
		dirty:    make(map[string]store.Entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "client")
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	if c.identity == "" {
		c.identity = "nettables-" + uuid.NewString()
	}
	return c
}

// Identity returns the name sent in ClientHello.
func (c *Client) Identity() string {
	return c.identity
}

// Status returns the current connection state.
func (c *Client) Status() store.ConnectionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

// Connect dials addr and starts the handshake. It returns once the
// transport is open; use WaitReady to wait for the handshake. If the
// first dial fails Connect returns the error and the client stays
// disconnected. Later drops are retried per the reconnect policy.
func (c *Client) Connect(ctx context.Context, addr string) error {
	if err := c.config.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.gen++
	gen := c.gen
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.addr = addr
	c.resetReady()
	c.listenerID = c.store.AddListener(c.forward, store.ListenerOptions{
		Events: store.EventCreate | store.EventUpdate | store.EventFlags,
	})
	for _, e := range c.store.List() {
		if e.LastChange > c.watermark {
			c.dirty[e.Name] = e
		}
	}
	c.mu.Unlock()

	cn, err := c.dial(ctx, gen)
	if err != nil {
		c.retire(gen)
		return err
	}

	go c.run(runCtx, gen, cn)
	return nil
}

// WaitReady blocks until the handshake completes and the server's
// snapshot is in the store, or ctx is done.
func (c *Client) WaitReady(ctx context.Context) error {
	c.mu.Lock()
	if c.cancel == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	ready := c.ready
	c.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect closes the connection, stops reconnecting and unregisters
// the forwarding listener. Store entries are kept.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.cancel == nil {
		c.mu.Unlock()
		return
	}
	gen := c.gen
	cn := c.conn
	addr := c.addr
	c.mu.Unlock()

	if cn != nil {
		cn.link.Close()
	}
	c.retire(gen)
	c.logger.Info("disconnected", "address", addr)
}

// retire ends generation gen: later work from it becomes a no-op.
func (c *Client) retire(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || c.cancel == nil {
		c.mu.Unlock()
		return
	}
	c.gen++
	c.cancel()
	c.cancel = nil
	c.conn = nil
	c.store.RemoveListener(c.listenerID)
	for _, e := range c.store.List() {
		c.watermark = max(c.watermark, e.LastChange)
	}
	addr := c.addr
	c.info = store.ConnectionInfo{State: store.Disconnected, Address: addr}
	c.mu.Unlock()

	c.store.UpdateConnection(addr, store.ConnectionInfo{State: store.Disconnected})
}

// address returns the address passed to the latest Connect.
func (c *Client) address() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addr
}

// current reports whether gen is still the active generation.
func (c *Client) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen && c.cancel != nil
}

// setStatus publishes info if gen is still current.
func (c *Client) setStatus(gen uint64, info store.ConnectionInfo) {
	c.mu.Lock()
	if c.gen != gen || c.cancel == nil {
		c.mu.Unlock()
		return
	}
	info.Address = c.addr
	c.info = info
	addr := c.addr
	if info.State == store.Connected && !c.readyClosed {
		close(c.ready)
		c.readyClosed = true
	} else if info.State != store.Connected {
		c.resetReady()
	}
	c.mu.Unlock()

	c.store.UpdateConnection(addr, info)
}

// resetReady arms a fresh ready channel. Caller must hold c.mu.
func (c *Client) resetReady() {
	if c.readyClosed || c.ready == nil {
		c.ready = make(chan struct{})
		c.readyClosed = false
	}
}

// dial opens a connection for generation gen and sends ClientHello.
func (c *Client) dial(ctx context.Context, gen uint64) (*conn, error) {
	c.setStatus(gen, store.ConnectionInfo{State: store.Connecting})

	c.mu.Lock()
	addr := c.addr
	c.mu.Unlock()

	dialer := c.config.Dialer
	if dialer == nil {
		dialer = transport.DialerFor(addr, c.config.ConnectTimeout)
	}
	dctx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()

	nc, err := dialer.DialContext(dctx, addr)
	if err != nil {
		c.setStatus(gen, store.ConnectionInfo{State: store.Disconnected})
		return nil, err
	}

	sess := session.New(uuid.NewString(), session.RoleClient)
	cn := &conn{
		link: link.New(sess, nc, link.Options{
			WriteTimeout: c.config.WriteTimeout,
			IdleTimeout:  c.config.IdleTimeout,
			Logger:       c.logger,
			Metrics:      c.metrics,
		}),
		gen: gen,
	}

	c.mu.Lock()
	if c.gen != gen || c.cancel == nil {
		c.mu.Unlock()
		cn.link.Close()
		return nil, errStale
	}
	c.conn = cn
	c.mu.Unlock()

	if err := cn.link.Send(sess.Hello(c.identity)); err != nil {
		cn.link.Close()
		c.setStatus(gen, store.ConnectionInfo{State: store.Disconnected})
		return nil, err
	}
	cn.link.Logger().Info("connected", "address", addr)
	return cn, nil
}

// run serves cn and then reconnects until gen is retired, the attempt
// cap is reached, or the server rejects the protocol version.
func (c *Client) run(ctx context.Context, gen uint64, cn *conn) {
	for {
		err := c.serve(ctx, cn)
		if ctx.Err() != nil || !c.current(gen) {
			return
		}
		if errors.Is(err, session.ErrProtoUnsupported) {
			c.retire(gen)
			return
		}
		c.setStatus(gen, store.ConnectionInfo{State: store.Disconnected})

		cn = c.reconnect(ctx, gen)
		if cn == nil {
			return
		}
	}
}

// reconnect dials until it succeeds, gen is retired, or the attempt cap
// is reached.
func (c *Client) reconnect(ctx context.Context, gen uint64) *conn {
	for attempt := 1; ; attempt++ {
		if limit := c.config.MaxReconnectAttempts; limit > 0 && attempt > limit {
			c.logger.Warn("giving up reconnecting", "address", c.address(), "attempts", limit)
			c.retire(gen)
			return nil
		}

		timer := time.NewTimer(c.config.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		c.metrics.Reconnect()
		cn, err := c.dial(ctx, gen)
		if err == nil {
			return cn
		}
		if errors.Is(err, errStale) || ctx.Err() != nil {
			return nil
		}
		c.logger.Info("reconnect failed", "address", c.address(), "attempt", attempt, "error", err)
	}
}

// serve runs the read loop for cn until the connection ends.
func (c *Client) serve(ctx context.Context, cn *conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-ctx.Done():
		case <-cn.link.Done():
		}
		cn.link.Close()
	}()
	go cn.link.KeepAlive(ctx, c.config.KeepAliveInterval)

	_, hs := link.StartHandshake(ctx, c.tracer, c.metrics, "nettables.client.handshake", trace.SpanKindClient,
		attribute.String("nettables.identity", c.identity),
		attribute.String("net.peer.addr", c.address()),
	)
	defer hs.Fail("aborted", nil)

	err := cn.link.ReadLoop(func(m protocol.Message) error {
		return c.handle(cn, m, hs)
	})
	cn.link.Close()

	c.mu.Lock()
	if c.conn == cn {
		c.conn = nil
	}
	c.mu.Unlock()

	if err != nil {
		cn.link.Logger().Warn("connection lost", "error", err)
	} else {
		cn.link.Logger().Info("connection closed")
	}
	return err
}

// handle processes one inbound message.
func (c *Client) handle(cn *conn, m protocol.Message, hs *link.Handshake) error {
	if !c.current(cn.gen) {
		return errStale
	}
	sess := cn.link.Session()

	res, err := cn.link.Apply(c.store, m)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrProtoUnsupported):
			cn.link.Logger().Error("server rejected protocol version", "error", err)
			hs.Fail("proto_unsupported", err)
			return err
		case errors.Is(err, session.ErrClosed):
			return err
		}
		cn.link.Logger().Warn("message rejected", "type", m.Type().String(), "error", err)
		return nil
	}

	if _, ok := m.(*protocol.ServerHello); ok {
		hs.SetAttributes(attribute.String("nettables.server", sess.RemoteID()))
	}
	if len(res.Replies) > 0 {
		if err := cn.link.Send(res.Replies...); err != nil && cn.link.Closed() {
			return err
		}
	}
	if res.Ready {
		cn.link.Logger().Debug("handshake complete", "server", sess.RemoteID())
	}

	// The server's snapshot follows ServerHelloComplete back to back and
	// the first keepalive after it ends the snapshot.
	if _, ok := m.(*protocol.KeepAlive); ok && sess.Ready() && !cn.synced {
		if err := c.flush(cn); err != nil {
			hs.Fail("write", err)
			return err
		}
		hs.Done()
		c.setStatus(cn.gen, store.ConnectionInfo{
			State:           store.Connected,
			RemoteID:        sess.RemoteID(),
			ProtocolVersion: sess.ProtocolVersion(),
		})
		cn.link.Logger().Info("ready", "server", sess.RemoteID())
	}
	return nil
}

// flush sends the dirty entries as assignments and switches cn to direct
// forwarding. Dirty values the snapshot overwrote are first written back
// to the store, so local changes made while offline win over the
// server's older copy.
func (c *Client) flush(cn *conn) error {
	c.mu.Lock()
	restore := make([]store.Entry, 0, len(c.dirty))
	for _, e := range c.dirty {
		restore = append(restore, e)
	}
	c.mu.Unlock()

	for _, e := range restore {
		cur, ok := c.store.Get(e.Name)
		if !ok {
			// Deleted locally; deletes are not sent.
			c.clean(e)
			continue
		}
		if cur.Value.Equal(e.Value) && cur.Flags == e.Flags {
			continue
		}
		if _, err := c.store.CreateOrUpdate(e.Name, e.Type(), e.Value, e.Flags, store.Local); err != nil {
			cn.link.Logger().Warn("local change dropped", "entry", e.Name, "error", err)
			c.clean(e)
		}
	}

	sess := cn.link.Session()
	var pending map[string]store.Entry
	err := cn.link.Sync(func(send link.SendFunc) error {
		c.mu.Lock()
		pending = c.dirty
		c.dirty = make(map[string]store.Entry)
		c.mu.Unlock()

		names := make([]string, 0, len(pending))
		for name := range pending {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			e, ok := c.store.Get(name)
			if !ok {
				continue
			}
			msgs, err := sess.Assign(e)
			if err != nil {
				cn.link.Logger().Warn("dirty entry skipped", "entry", name, "error", err)
				continue
			}
			if err := send(msgs...); err != nil && cn.link.Closed() {
				return err
			}
		}
		cn.synced = true
		return nil
	})
	if err != nil {
		c.mu.Lock()
		for name, e := range pending {
			if _, ok := c.dirty[name]; !ok {
				c.dirty[name] = e
			}
		}
		c.mu.Unlock()
	}
	return err
}

// markDirty records a local change for the next flush.
func (c *Client) markDirty(e store.Entry) {
	c.mu.Lock()
	c.dirty[e.Name] = e
	c.mu.Unlock()
}

// clean forgets e unless a newer local change replaced it.
func (c *Client) clean(e store.Entry) {
	c.mu.Lock()
	if cur, ok := c.dirty[e.Name]; ok && cur.LastChange == e.LastChange {
		delete(c.dirty, e.Name)
	}
	c.mu.Unlock()
}

// forward is the store listener for local changes.
func (c *Client) forward(n store.Notification) {
	if !n.Origin.IsLocal() {
		return
	}
	c.mu.Lock()
	cn := c.conn
	if cn == nil {
		c.dirty[n.Entry.Name] = n.Entry
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	err := cn.link.Sync(func(send link.SendFunc) error {
		if !cn.synced {
			c.markDirty(n.Entry)
			return nil
		}
		msgs, err := cn.link.Session().Encode(n)
		if err != nil {
			return err
		}
		return send(msgs...)
	})
	if err == nil {
		return
	}
	if cn.link.Closed() || errors.Is(err, net.ErrClosed) || errors.Is(err, session.ErrClosed) {
		c.markDirty(n.Entry)
		return
	}
	cn.link.Logger().Warn("forward failed", "entry", n.Entry.Name, "error", err)
}
