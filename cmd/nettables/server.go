package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/vango-dev/nettables/internal/config"
	"github.com/vango-dev/nettables/pkg/admin"
	"github.com/vango-dev/nettables/pkg/metrics"
	"github.com/vango-dev/nettables/pkg/server"
	"github.com/vango-dev/nettables/pkg/store"
)

func serverCmd(g *globalFlags) *cobra.Command {
	var (
		listen     string
		httpListen string
		noHTTP     bool
	)

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run a nettables server",
		Long: `Run a server that accepts clients over TCP and, when the admin
surface is enabled, over WebSocket.

The admin surface serves /healthz, /metrics, /entries and /sessions.

Examples:
  nettables server
  nettables server --listen=:5810 --http=:8081
  nettables server --no-http`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}
			if httpListen != "" {
				cfg.Server.HTTPListen = httpListen
			}
			if noHTTP {
				cfg.Server.HTTPListen = ""
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, g, cfg)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "TCP address for clients (default from nettables.toml or :1735)")
	cmd.Flags().StringVar(&httpListen, "http", "", "Admin HTTP address (default from nettables.toml or :8080)")
	cmd.Flags().BoolVar(&noHTTP, "no-http", false, "Disable the admin HTTP surface")

	return cmd
}

func runServer(ctx context.Context, g *globalFlags, cfg *config.Config) error {
	logger, err := g.logger(cfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(metrics.WithRegistry(reg), metrics.WithSubsystem("server"))

	st := store.New(store.WithLogger(logger))
	srv := server.New(st, cfg.ServerEngine(), server.WithLogger(logger), server.WithMetrics(m))
	defer srv.Stop()

	errs := make(chan error, 2)
	go func() { errs <- srv.ListenAndServe(ctx) }()

	if cfg.Server.HTTPListen != "" {
		opts := []admin.Option{
			admin.WithServer(srv),
			admin.WithRegistry(reg),
			admin.WithLogger(logger),
		}
		if cfg.Server.WebSocketPath != "" {
			opts = append(opts, admin.WithWebSocket(cfg.Server.WebSocketPath))
		}
		a := admin.New(st, opts...)
		go func() { errs <- a.ListenAndServe(ctx, cfg.Server.HTTPListen) }()
	}

	success("nettables server %s", srv.Identity())
	info("Protocol:  tcp://%s", cfg.Server.Listen)
	if cfg.Server.HTTPListen != "" {
		info("Admin:     http://%s", cfg.Server.HTTPListen)
		if cfg.Server.WebSocketPath != "" {
			info("WebSocket: ws://%s%s", cfg.Server.HTTPListen, cfg.Server.WebSocketPath)
		}
	}

	select {
	case err := <-errs:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}
	fmt.Println("\n  Shutting down...")
	return nil
}
