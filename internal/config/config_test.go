package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return dir
}

func TestNew(t *testing.T) {
	cfg := New()

	if cfg.Server.Listen != ":1735" {
		t.Errorf("Server.Listen = %q, want :1735", cfg.Server.Listen)
	}
	if cfg.Server.HTTPListen != DefaultHTTPListen {
		t.Errorf("Server.HTTPListen = %q, want %q", cfg.Server.HTTPListen, DefaultHTTPListen)
	}
	if cfg.Client.Server != "localhost:1735" {
		t.Errorf("Client.Server = %q, want localhost:1735", cfg.Client.Server)
	}
	if cfg.Client.ReconnectDelay != time.Second {
		t.Errorf("Client.ReconnectDelay = %v, want 1s", cfg.Client.ReconnectDelay)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("Log = %+v, want info/text", cfg.Log)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadOverlaysDefinedKeys(t *testing.T) {
	dir := writeConfig(t, `
identity = "robot"

[server]
listen = "127.0.0.1:5810"
keepalive = "250ms"
idle_timeout = "3s"
max_sessions = 8

[client]
server = "ws://10.0.0.2:8080/nt"
reconnect_delay = " 2s "
max_reconnect_attempts = 5

[log]
level = "DEBUG"
format = "json"
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Identity != "robot" {
		t.Errorf("Identity = %q", cfg.Identity)
	}
	if cfg.Server.Listen != "127.0.0.1:5810" {
		t.Errorf("Server.Listen = %q", cfg.Server.Listen)
	}
	if cfg.Server.KeepAlive != 250*time.Millisecond {
		t.Errorf("Server.KeepAlive = %v", cfg.Server.KeepAlive)
	}
	if cfg.Server.IdleTimeout != 3*time.Second {
		t.Errorf("Server.IdleTimeout = %v", cfg.Server.IdleTimeout)
	}
	if cfg.Server.MaxSessions != 8 {
		t.Errorf("Server.MaxSessions = %d", cfg.Server.MaxSessions)
	}
	// Untouched keys keep their defaults.
	if cfg.Server.HandshakeTimeout != 10*time.Second {
		t.Errorf("Server.HandshakeTimeout = %v, want default", cfg.Server.HandshakeTimeout)
	}
	if cfg.Server.HTTPListen != DefaultHTTPListen {
		t.Errorf("Server.HTTPListen = %q, want default", cfg.Server.HTTPListen)
	}
	if cfg.Client.Server != "ws://10.0.0.2:8080/nt" {
		t.Errorf("Client.Server = %q", cfg.Client.Server)
	}
	if cfg.Client.ReconnectDelay != 2*time.Second {
		t.Errorf("Client.ReconnectDelay = %v", cfg.Client.ReconnectDelay)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.Path() != filepath.Join(dir, ConfigFileName) {
		t.Errorf("Path = %q", cfg.Path())
	}

	srv := cfg.ServerEngine()
	if srv.Identity != "robot" || srv.Address != "127.0.0.1:5810" || srv.MaxSessions != 8 {
		t.Errorf("ServerEngine = %+v", srv)
	}
	cli := cfg.ClientEngine()
	if cli.Identity != "robot" || cli.MaxReconnectAttempts != 5 || cli.ReconnectDelay != 2*time.Second {
		t.Errorf("ClientEngine = %+v", cli)
	}
}

func TestLoadEmptyStringDisablesHTTP(t *testing.T) {
	dir := writeConfig(t, `
[server]
http_listen = ""
websocket_path = ""
`)
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPListen != "" || cfg.Server.WebSocketPath != "" {
		t.Errorf("Server = %+v, want HTTP disabled", cfg.Server)
	}
}

func TestLoadNotFound(t *testing.T) {
	_, err := Load(t.TempDir())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"syntax", `[server`, "parse"},
		{"unknown key", "[server]\nport = 1", "unknown key"},
		{"bad duration", "[server]\nkeepalive = \"soon\"", "server.keepalive"},
		{"bad listen", "[server]\nlisten = \"nowhere\"", "server.listen"},
		{"bad http", "[server]\nhttp_listen = \"8080\"", "server.http_listen"},
		{"bad ws path", "[server]\nwebsocket_path = \"nt\"", "websocket_path"},
		{"empty client server", "[client]\nserver = \"\"", "client.server"},
		{"bad level", "[log]\nlevel = \"loud\"", "log.level"},
		{"bad format", "[log]\nformat = \"xml\"", "log.format"},
		{"idle below keepalive", "[server]\nkeepalive = \"5s\"\nidle_timeout = \"2s\"", "idle timeout"},
		{"negative attempts", "[client]\nmax_reconnect_attempts = -1", "max reconnect"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want substring %q", err, tt.want)
			}
			if tt.name != "syntax" && !errors.Is(err, ErrInvalid) {
				t.Errorf("err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestExists(t *testing.T) {
	if Exists(t.TempDir()) {
		t.Error("Exists on empty dir = true")
	}
	if !Exists(writeConfig(t, "")) {
		t.Error("Exists after write = false")
	}
}
