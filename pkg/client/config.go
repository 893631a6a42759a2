package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/vango-dev/nettables/pkg/transport"
)

// Client errors.
var (
	// ErrAlreadyConnected is returned by Connect while a connection (or
	// reconnect loop) is active.
	ErrAlreadyConnected = errors.New("client: already connected")

	// ErrNotConnected is returned by WaitReady when Connect has not been
	// called or the client has given up reconnecting.
	ErrNotConnected = errors.New("client: not connected")

	// errStale marks work from a generation that Disconnect has retired.
	errStale = errors.New("client: stale connection attempt")
)

// Config holds configuration for the client engine.
type Config struct {
	// Identity is the name sent to the server in ClientHello.
	// Default: "nettables-" followed by a random UUID.
	Identity string

	// Reconnection

	// ReconnectDelay is the wait before each reconnect attempt.
	// Default: 1 second.
	ReconnectDelay time.Duration

	// MaxReconnectAttempts caps consecutive failed reconnects before the
	// client gives up. 0 means retry forever.
	// Default: 0.
	MaxReconnectAttempts int

	// Timeouts

	// ConnectTimeout bounds each dial.
	// Default: 5 seconds.
	ConnectTimeout time.Duration

	// KeepAliveInterval is the time between keepalives.
	// Default: 1 second.
	KeepAliveInterval time.Duration

	// IdleTimeout drops the connection when the server sends nothing for
	// this long. 0 disables the check.
	// Default: 10 seconds.
	IdleTimeout time.Duration

	// WriteTimeout bounds each write.
	// Default: 5 seconds.
	WriteTimeout time.Duration

	// Transport

	// Dialer opens connections. If nil, ws:// and wss:// addresses use a
	// WebSocket dialer and anything else uses TCP.
	Dialer transport.Dialer
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ReconnectDelay:    time.Second,
		ConnectTimeout:    5 * time.Second,
		KeepAliveInterval: time.Second,
		IdleTimeout:       10 * time.Second,
		WriteTimeout:      5 * time.Second,
	}
}

// withDefaults fills unset fields from DefaultConfig.
func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = defaults.ReconnectDelay
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = defaults.ConnectTimeout
	}
	if c.KeepAliveInterval == 0 {
		c.KeepAliveInterval = defaults.KeepAliveInterval
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = defaults.WriteTimeout
	}
	return c
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if c.ReconnectDelay < 0 || c.ConnectTimeout < 0 || c.KeepAliveInterval < 0 ||
		c.IdleTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("client: negative timeout")
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("client: negative max reconnect attempts")
	}
	if c.IdleTimeout > 0 && c.IdleTimeout <= c.KeepAliveInterval {
		return fmt.Errorf("client: idle timeout %v must exceed keepalive interval %v", c.IdleTimeout, c.KeepAliveInterval)
	}
	return nil
}
