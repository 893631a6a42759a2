// Package metrics exposes Prometheus instrumentation for the nettables
// engines. A nil *Metrics is valid and records nothing, so engines can
// run uninstrumented without checks at every call site.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "nettables").
	Namespace string

	// Subsystem is the metrics subsystem, typically "server" or "client".
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for handshake duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the collectors.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "nettables",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the protocol collectors.
type Metrics struct {
	messagesIn        *prometheus.CounterVec
	messagesOut       *prometheus.CounterVec
	decodeErrors      prometheus.Counter
	staleUpdates      prometheus.Counter
	applyErrors       prometheus.Counter
	writeErrors       prometheus.Counter
	activeSessions    prometheus.Gauge
	handshakes        *prometheus.CounterVec
	handshakeDuration prometheus.Histogram
	reconnects        prometheus.Counter
	entries           prometheus.Gauge
}

// New registers the collectors with the configured registry.
//
// Metrics collected (with the default namespace):
//   - nettables_messages_received_total: messages decoded, by type
//   - nettables_messages_sent_total: messages written, by type
//   - nettables_decode_errors_total: frames dropped as undecodable
//   - nettables_stale_updates_total: updates dropped for old sequence numbers
//   - nettables_apply_errors_total: messages rejected by the session or store
//   - nettables_write_errors_total: failed connection writes
//   - nettables_active_sessions: sessions currently open
//   - nettables_handshakes_total: handshakes by result
//   - nettables_handshake_duration_seconds: time from connect to Ready
//   - nettables_reconnects_total: client reconnect attempts
//   - nettables_entries: entries in the local store
func New(opts ...Option) *Metrics {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}

	return &Metrics{
		messagesIn: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "messages_received_total",
			Help:        "Total protocol messages received by type",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),

		messagesOut: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "messages_sent_total",
			Help:        "Total protocol messages sent by type",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),

		handshakes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "handshakes_total",
			Help:        "Total handshakes by result",
			ConstLabels: config.ConstLabels,
		}, []string{"result"}),

		handshakeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "handshake_duration_seconds",
			Help:        "Time from connection open to Ready",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		decodeErrors:   counter("decode_errors_total", "Total frames dropped because they could not be decoded"),
		staleUpdates:   counter("stale_updates_total", "Total updates dropped for a sequence number that was not newer"),
		applyErrors:    counter("apply_errors_total", "Total messages rejected by the session or store"),
		writeErrors:    counter("write_errors_total", "Total failed connection writes"),
		reconnects:     counter("reconnects_total", "Total client reconnect attempts"),
		activeSessions: gauge("active_sessions", "Number of open sessions"),
		entries:        gauge("entries", "Number of entries in the local store"),
	}
}

// MessageReceived counts one decoded inbound message.
func (m *Metrics) MessageReceived(typ string) {
	if m == nil {
		return
	}
	m.messagesIn.WithLabelValues(typ).Inc()
}

// MessageSent counts one outbound message.
func (m *Metrics) MessageSent(typ string) {
	if m == nil {
		return
	}
	m.messagesOut.WithLabelValues(typ).Inc()
}

// DecodeError counts one undecodable frame.
func (m *Metrics) DecodeError() {
	if m == nil {
		return
	}
	m.decodeErrors.Inc()
}

// StaleUpdate counts one dropped out-of-order update.
func (m *Metrics) StaleUpdate() {
	if m == nil {
		return
	}
	m.staleUpdates.Inc()
}

// ApplyError counts one rejected message.
func (m *Metrics) ApplyError() {
	if m == nil {
		return
	}
	m.applyErrors.Inc()
}

// WriteError counts one failed write.
func (m *Metrics) WriteError() {
	if m == nil {
		return
	}
	m.writeErrors.Inc()
}

// SessionOpened increments the active session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

// SessionClosed decrements the active session gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

// Handshake records a finished handshake. result is "ok" or a short
// failure reason; d is only observed for successful handshakes.
func (m *Metrics) Handshake(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.handshakes.WithLabelValues(result).Inc()
	if result == "ok" {
		m.handshakeDuration.Observe(d.Seconds())
	}
}

// Reconnect counts one reconnect attempt.
func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

// SetEntries records the current store size.
func (m *Metrics) SetEntries(n int) {
	if m == nil {
		return
	}
	m.entries.Set(float64(n))
}
