package admin

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/nettables/pkg/middleware"
	"github.com/vango-dev/nettables/pkg/server"
	"github.com/vango-dev/nettables/pkg/store"
	"github.com/vango-dev/nettables/pkg/transport"
)

// Admin serves the HTTP inspection surface for a store and, optionally,
// the server sharing it.
type Admin struct {
	store    *store.Store
	server   *server.Server
	registry *prometheus.Registry
	provider trace.TracerProvider
	logger   *slog.Logger

	wsPath string
	ws     *transport.WSListener

	router chi.Router
}

// Option configures an Admin.
type Option func(*Admin)

// WithServer enables /sessions and, with WithWebSocket, the protocol
// endpoint.
func WithServer(srv *server.Server) Option {
	return func(a *Admin) {
		a.server = srv
	}
}

// WithRegistry sets the registry exposed on /metrics. HTTP metrics are
// registered on it too.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(a *Admin) {
		a.registry = reg
	}
}

// WithTracerProvider sets the provider for request spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(a *Admin) {
		a.provider = tp
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Admin) {
		a.logger = logger
	}
}

// WithWebSocket serves the protocol over WebSocket at path. It needs
// WithServer.
func WithWebSocket(path string) Option {
	return func(a *Admin) {
		a.wsPath = path
	}
}

// New builds the admin router.
func New(st *store.Store, opts ...Option) *Admin {
	a := &Admin{store: st}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	a.logger = a.logger.With("component", "admin")
	if a.registry == nil {
		a.registry = prometheus.NewRegistry()
	}
	if a.server != nil && a.wsPath != "" {
		a.ws = transport.NewWSListener(nil, nil)
	}
	a.router = a.routes()
	return a
}

func (a *Admin) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Prometheus(middleware.WithRegistry(a.registry)))
	otelOpts := []middleware.OTelOption{
		middleware.WithRequestFilter(func(r *http.Request) bool {
			return r.URL.Path != "/metrics" && r.URL.Path != "/healthz"
		}),
	}
	if a.provider != nil {
		otelOpts = append(otelOpts, middleware.WithTracerProvider(a.provider))
	}
	r.Use(middleware.OpenTelemetry(otelOpts...))
	r.Use(a.logRequests)

	r.Get("/healthz", a.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))

	r.Get("/entries", a.handleListEntries)
	r.Get("/entries/*", a.handleGetEntry)
	r.Put("/entries/*", a.handlePutEntry)
	r.Delete("/entries/*", a.handleDeleteEntry)

	if a.server != nil {
		r.Get("/sessions", a.handleSessions)
	}
	if a.ws != nil {
		r.Handle(a.wsPath, a.ws)
	}
	return r
}

// Handler returns the admin router.
func (a *Admin) Handler() http.Handler {
	return a.router
}

// Registry returns the registry served on /metrics.
func (a *Admin) Registry() *prometheus.Registry {
	return a.registry
}

// Serve serves HTTP on ln until ctx is cancelled. When the WebSocket
// endpoint is enabled its connections are handed to the server for the
// same lifetime.
func (a *Admin) Serve(ctx context.Context, ln net.Listener) error {
	httpSrv := &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	var wg sync.WaitGroup
	if a.ws != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.server.Serve(ctx, a.ws); err != nil {
				a.logger.Error("websocket listener stopped", "error", err)
			}
		}()
	}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	})
	defer stop()

	a.logger.Info("admin listening", "addr", ln.Addr().String(), "websocket", a.wsPath)
	err := httpSrv.Serve(ln)
	if a.ws != nil {
		a.ws.Close()
	}
	wg.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ListenAndServe listens on addr and calls Serve.
func (a *Admin) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return a.Serve(ctx, ln)
}

func (a *Admin) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", chimw.GetReqID(r.Context()),
		)
	})
}
