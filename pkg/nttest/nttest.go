package nttest

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/vango-dev/nettables/pkg/client"
	"github.com/vango-dev/nettables/pkg/protocol"
	"github.com/vango-dev/nettables/pkg/server"
	"github.com/vango-dev/nettables/pkg/store"
	"github.com/vango-dev/nettables/pkg/transport"
)

// Timeout bounds every wait in this package.
var Timeout = 3 * time.Second

// QuietLogger returns a logger that discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ServerBuilder allows fluent construction of test servers.
type ServerBuilder struct {
	config  server.Config
	entries []seed
	opts    []server.Option
}

type seed struct {
	name  string
	value any
}

// NewServer creates a builder for a loopback server with short timeouts.
//
// Example:
//
//	h := nttest.NewServer().WithEntry("/a", true).Start(t)
func NewServer() *ServerBuilder {
	return &ServerBuilder{
		config: server.Config{
			Address:           "127.0.0.1:0",
			KeepAliveInterval: 50 * time.Millisecond,
			HandshakeTimeout:  2 * time.Second,
			IdleTimeout:       2 * time.Second,
		},
	}
}

// WithEntry seeds the server store before it starts.
func (b *ServerBuilder) WithEntry(name string, value any) *ServerBuilder {
	b.entries = append(b.entries, seed{name, value})
	return b
}

// WithConfig replaces the server configuration. Address is forced to a
// loopback port when empty.
func (b *ServerBuilder) WithConfig(cfg server.Config) *ServerBuilder {
	if cfg.Address == "" {
		cfg.Address = "127.0.0.1:0"
	}
	b.config = cfg
	return b
}

// WithOption passes a server option through.
func (b *ServerBuilder) WithOption(opt server.Option) *ServerBuilder {
	b.opts = append(b.opts, opt)
	return b
}

// Harness is a running test server.
type Harness struct {
	Store  *store.Store
	Server *server.Server

	// Addr is the host:port clients dial.
	Addr string
}

// Start seeds the store, starts serving and registers cleanup.
func (b *ServerBuilder) Start(t testing.TB) *Harness {
	t.Helper()

	st := store.New()
	for _, e := range b.entries {
		if _, err := st.Set(e.name, e.value); err != nil {
			t.Fatalf("nttest: seed %q: %v", e.name, err)
		}
	}

	opts := append([]server.Option{server.WithLogger(QuietLogger())}, b.opts...)
	srv := server.New(st, b.config, opts...)

	ln, err := transport.ListenTCP(b.config.Address)
	if err != nil {
		t.Fatalf("nttest: listen: %v", err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(context.Background(), ln)
	}()
	t.Cleanup(func() {
		srv.Stop()
		<-done
	})

	return &Harness{Store: st, Server: srv, Addr: ln.Addr().String()}
}

// Connect starts a client on a fresh store and waits for the snapshot.
func (h *Harness) Connect(t testing.TB, opts ...client.Option) (*client.Client, *store.Store) {
	t.Helper()

	st := store.New()
	cfg := client.Config{
		ReconnectDelay:    20 * time.Millisecond,
		KeepAliveInterval: 50 * time.Millisecond,
		IdleTimeout:       2 * time.Second,
	}
	opts = append([]client.Option{client.WithLogger(QuietLogger())}, opts...)
	c := client.New(st, cfg, opts...)
	t.Cleanup(c.Disconnect)

	if err := c.Connect(context.Background(), h.Addr); err != nil {
		t.Fatalf("nttest: connect %s: %v", h.Addr, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), Timeout)
	defer cancel()
	if err := c.WaitReady(ctx); err != nil {
		t.Fatalf("nttest: wait ready: %v", err)
	}
	return c, st
}

// WaitFor polls cond until it holds or Timeout passes.
func WaitFor(t testing.TB, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(Timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ExpectValue waits until name holds want in st. want is anything
// protocol.ValueOf accepts.
//
// Example:
//
//	nttest.ExpectValue(t, st, "/arm/angles", []float64{10, 20})
func ExpectValue(t testing.TB, st *store.Store, name string, want any) {
	t.Helper()
	v, err := protocol.ValueOf(want)
	if err != nil {
		t.Fatalf("nttest: %v", err)
	}
	deadline := time.Now().Add(Timeout)
	for {
		e, ok := st.Get(name)
		if ok && e.Value.Equal(v) {
			return
		}
		if time.Now().After(deadline) {
			if !ok {
				t.Fatalf("expected %s = %s, entry missing", name, v)
			}
			t.Fatalf("expected %s = %s, got %s", name, v, e.Value)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ExpectMissing waits until name is absent from st.
func ExpectMissing(t testing.TB, st *store.Store, name string) {
	t.Helper()
	WaitFor(t, name+" to be deleted", func() bool {
		_, ok := st.Get(name)
		return !ok
	})
}

// FreeAddr returns a loopback address that was free a moment ago, for
// tests that restart a server on the same port.
func FreeAddr(t testing.TB) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("nttest: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}
