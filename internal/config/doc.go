// Package config loads nettables.toml.
//
// Only keys present in the file override the defaults, so a file can be
// as small as a single setting. Durations are Go duration strings.
//
// # Configuration File Structure
//
//	identity = "field-robot"
//
//	[server]
//	listen = ":1735"
//	http_listen = ":8080"
//	websocket_path = "/nt"
//	keepalive = "1s"
//	handshake_timeout = "10s"
//	idle_timeout = "10s"
//	write_timeout = "5s"
//	max_sessions = 0
//
//	[client]
//	server = "localhost:1735"
//	reconnect_delay = "1s"
//	max_reconnect_attempts = 0
//	connect_timeout = "5s"
//
//	[log]
//	level = "info"
//	format = "text"
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if errors.Is(err, config.ErrNotFound) {
//	    cfg = config.New()
//	}
//	srv := server.New(st, cfg.ServerEngine())
package config
