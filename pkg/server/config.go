package server

import (
	"fmt"
	"net"
	"time"

	"github.com/vango-dev/nettables/pkg/protocol"
)

// Config holds configuration for the server engine.
type Config struct {
	// Identity is the name sent to clients in ServerHello.
	// Default: "nettables-" followed by a random UUID.
	Identity string

	// Address is the TCP address ListenAndServe binds.
	// Default: ":1735".
	Address string

	// Timeouts

	// KeepAliveInterval is the time between keepalives on each session.
	// Default: 1 second.
	KeepAliveInterval time.Duration

	// HandshakeTimeout closes sessions that have not completed the
	// handshake in time. 0 disables the check.
	// Default: 10 seconds.
	HandshakeTimeout time.Duration

	// IdleTimeout closes sessions that send nothing for this long.
	// Clients send keepalives, so only dead connections hit it.
	// Default: 10 seconds.
	IdleTimeout time.Duration

	// WriteTimeout bounds each write to a session.
	// Default: 5 seconds.
	WriteTimeout time.Duration

	// Limits

	// MaxSessions caps concurrent sessions. 0 means no limit.
	// Default: 0.
	MaxSessions int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Address:           fmt.Sprintf(":%d", protocol.DefaultPort),
		KeepAliveInterval: time.Second,
		HandshakeTimeout:  10 * time.Second,
		IdleTimeout:       10 * time.Second,
		WriteTimeout:      5 * time.Second,
	}
}

// withDefaults fills unset fields from DefaultConfig.
func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Address == "" {
		c.Address = defaults.Address
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
	if _, _, err := net.SplitHostPort(c.Address); err != nil {
		return fmt.Errorf("server: invalid address %q: %w", c.Address, err)
	}
	if c.KeepAliveInterval < 0 || c.HandshakeTimeout < 0 || c.IdleTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("server: negative timeout")
	}
	if c.IdleTimeout > 0 && c.IdleTimeout <= c.KeepAliveInterval {
		return fmt.Errorf("server: idle timeout %v must exceed keepalive interval %v", c.IdleTimeout, c.KeepAliveInterval)
	}
	if c.MaxSessions < 0 {
		return fmt.Errorf("server: negative max sessions")
	}
	return nil
}
