package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/vango-dev/nettables/pkg/client"
	"github.com/vango-dev/nettables/pkg/protocol"
	"github.com/vango-dev/nettables/pkg/server"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "nettables.toml"

	// DefaultHTTPListen is the default address of the admin HTTP surface.
	DefaultHTTPListen = ":8080"

	// DefaultWebSocketPath is where the admin surface serves the
	// protocol over WebSocket.
	DefaultWebSocketPath = "/nt"
)

// Config errors.
var (
	// ErrNotFound is returned when no configuration file exists.
	ErrNotFound = errors.New("config: file not found")

	// ErrInvalid wraps every rejected key or value.
	ErrInvalid = errors.New("config: invalid")
)

// Config is the complete nettables.toml configuration.
type Config struct {
	// Identity names this process in handshakes. Empty picks a random one.
	Identity string

	Server ServerConfig
	Client ClientConfig
	Log    LogConfig

	// path stores the path where the config was loaded from.
	path string
}

// ServerConfig configures `nettables server`.
type ServerConfig struct {
	// Listen is the TCP address for protocol clients.
	Listen string

	// HTTPListen is the admin HTTP address. Empty disables it.
	HTTPListen string

	// WebSocketPath serves the protocol over WebSocket on the admin
	// surface. Empty disables it.
	WebSocketPath string

	KeepAlive        time.Duration
	HandshakeTimeout time.Duration
	IdleTimeout      time.Duration
	WriteTimeout     time.Duration
	MaxSessions      int
}

// ClientConfig configures `nettables client`.
type ClientConfig struct {
	// Server is host:port for TCP or a ws:// URL.
	Server string

	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	ConnectTimeout       time.Duration
	KeepAlive            time.Duration
	IdleTimeout          time.Duration
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

// fileConfig mirrors the TOML layout. Durations are strings.
type fileConfig struct {
	Identity string `toml:"identity"`

	Server struct {
		Listen           string `toml:"listen"`
		HTTPListen       string `toml:"http_listen"`
		WebSocketPath    string `toml:"websocket_path"`
		KeepAlive        string `toml:"keepalive"`
		HandshakeTimeout string `toml:"handshake_timeout"`
		IdleTimeout      string `toml:"idle_timeout"`
		WriteTimeout     string `toml:"write_timeout"`
		MaxSessions      int    `toml:"max_sessions"`
	} `toml:"server"`

	Client struct {
		Server               string `toml:"server"`
		ReconnectDelay       string `toml:"reconnect_delay"`
		MaxReconnectAttempts int    `toml:"max_reconnect_attempts"`
		ConnectTimeout       string `toml:"connect_timeout"`
		KeepAlive            string `toml:"keepalive"`
		IdleTimeout          string `toml:"idle_timeout"`
	} `toml:"client"`

	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`
}

// New returns a Config with defaults taken from the engines.
func New() *Config {
	srv := server.DefaultConfig()
	cli := client.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Listen:           srv.Address,
			HTTPListen:       DefaultHTTPListen,
			WebSocketPath:    DefaultWebSocketPath,
			KeepAlive:        srv.KeepAliveInterval,
			HandshakeTimeout: srv.HandshakeTimeout,
			IdleTimeout:      srv.IdleTimeout,
			WriteTimeout:     srv.WriteTimeout,
			MaxSessions:      srv.MaxSessions,
		},
		Client: ClientConfig{
			Server:               fmt.Sprintf("localhost:%d", protocol.DefaultPort),
			ReconnectDelay:       cli.ReconnectDelay,
			MaxReconnectAttempts: cli.MaxReconnectAttempts,
			ConnectTimeout:       cli.ConnectTimeout,
			KeepAlive:            cli.KeepAliveInterval,
			IdleTimeout:          cli.IdleTimeout,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads ConfigFileName from dir.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads the configuration at path. Keys present in the file
// override the defaults; absent keys keep them.
func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: unknown key %q in %s", ErrInvalid, undecoded[0].String(), path)
	}

	cfg := New()
	cfg.path = path
	if err := cfg.overlay(meta, &raw); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) overlay(meta toml.MetaData, raw *fileConfig) error {
	if meta.IsDefined("identity") {
		c.Identity = strings.TrimSpace(raw.Identity)
	}

	if meta.IsDefined("server", "listen") {
		c.Server.Listen = strings.TrimSpace(raw.Server.Listen)
	}
	if meta.IsDefined("server", "http_listen") {
		c.Server.HTTPListen = strings.TrimSpace(raw.Server.HTTPListen)
	}
	if meta.IsDefined("server", "websocket_path") {
		c.Server.WebSocketPath = strings.TrimSpace(raw.Server.WebSocketPath)
	}
	if meta.IsDefined("server", "max_sessions") {
		c.Server.MaxSessions = raw.Server.MaxSessions
	}

	if meta.IsDefined("client", "server") {
		c.Client.Server = strings.TrimSpace(raw.Client.Server)
	}
	if meta.IsDefined("client", "max_reconnect_attempts") {
		c.Client.MaxReconnectAttempts = raw.Client.MaxReconnectAttempts
	}

	if meta.IsDefined("log", "level") {
		c.Log.Level = strings.ToLower(strings.TrimSpace(raw.Log.Level))
	}
	if meta.IsDefined("log", "format") {
		c.Log.Format = strings.ToLower(strings.TrimSpace(raw.Log.Format))
	}

	durations := []struct {
		key []string
		raw string
		dst *time.Duration
	}{
		{[]string{"server", "keepalive"}, raw.Server.KeepAlive, &c.Server.KeepAlive},
		{[]string{"server", "handshake_timeout"}, raw.Server.HandshakeTimeout, &c.Server.HandshakeTimeout},
		{[]string{"server", "idle_timeout"}, raw.Server.IdleTimeout, &c.Server.IdleTimeout},
		{[]string{"server", "write_timeout"}, raw.Server.WriteTimeout, &c.Server.WriteTimeout},
		{[]string{"client", "reconnect_delay"}, raw.Client.ReconnectDelay, &c.Client.ReconnectDelay},
		{[]string{"client", "connect_timeout"}, raw.Client.ConnectTimeout, &c.Client.ConnectTimeout},
		{[]string{"client", "keepalive"}, raw.Client.KeepAlive, &c.Client.KeepAlive},
		{[]string{"client", "idle_timeout"}, raw.Client.IdleTimeout, &c.Client.IdleTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key...) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, strings.Join(d.key, "."), err)
		}
		*d.dst = v
	}
	return nil
}

// Validate reports configuration errors.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Server.Listen); err != nil {
		return fmt.Errorf("%w: server.listen: %v", ErrInvalid, err)
	}
	if c.Server.HTTPListen != "" {
		if _, _, err := net.SplitHostPort(c.Server.HTTPListen); err != nil {
			return fmt.Errorf("%w: server.http_listen: %v", ErrInvalid, err)
		}
	}
	if p := c.Server.WebSocketPath; p != "" && !strings.HasPrefix(p, "/") {
		return fmt.Errorf("%w: server.websocket_path %q must start with /", ErrInvalid, p)
	}
	if c.Client.Server == "" {
		return fmt.Errorf("%w: client.server is empty", ErrInvalid)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log.level %q: want debug, info, warn or error", ErrInvalid, c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format %q: want text or json", ErrInvalid, c.Log.Format)
	}

	if err := c.ServerEngine().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := c.ClientEngine().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// ServerEngine returns the server engine configuration.
func (c *Config) ServerEngine() server.Config {
	return server.Config{
		Identity:          c.Identity,
		Address:           c.Server.Listen,
		KeepAliveInterval: c.Server.KeepAlive,
		HandshakeTimeout:  c.Server.HandshakeTimeout,
		IdleTimeout:       c.Server.IdleTimeout,
		WriteTimeout:      c.Server.WriteTimeout,
		MaxSessions:       c.Server.MaxSessions,
	}
}

// ClientEngine returns the client engine configuration.
func (c *Config) ClientEngine() client.Config {
	cfg := client.DefaultConfig()
	cfg.Identity = c.Identity
	cfg.ReconnectDelay = c.Client.ReconnectDelay
	cfg.MaxReconnectAttempts = c.Client.MaxReconnectAttempts
	cfg.ConnectTimeout = c.Client.ConnectTimeout
	cfg.KeepAliveInterval = c.Client.KeepAlive
	cfg.IdleTimeout = c.Client.IdleTimeout
	return cfg
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.path
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}
