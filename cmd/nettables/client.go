package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/nettables/internal/config"
	"github.com/vango-dev/nettables/pkg/client"
	"github.com/vango-dev/nettables/pkg/protocol"
	"github.com/vango-dev/nettables/pkg/store"
)

func clientCmd(g *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Talk to a nettables server",
		Long: `Connect to a server to read, set, delete or watch entries.

The server address is host:port for TCP or a ws:// URL for WebSocket.

Examples:
  nettables client get
  nettables client set /SmartDashboard/speed 1.5
  nettables client set /arm/angles 10,20,30 --type=DoubleArray
  nettables client watch /SmartDashboard/ --server=ws://10.0.0.2:8080/nt`,
	}
	cmd.PersistentFlags().StringVarP(&addr, "server", "S", "", "Server address (default from nettables.toml or localhost:1735)")

	session := func() (*config.Config, error) {
		cfg, err := g.load()
		if err != nil {
			return nil, err
		}
		if addr != "" {
			cfg.Client.Server = addr
		}
		if _, err := g.logger(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	cmd.AddCommand(
		clientGetCmd(session),
		clientSetCmd(session),
		clientDeleteCmd(session),
		clientWatchCmd(session),
	)
	return cmd
}

// connectClient dials the configured server and waits for the initial
// snapshot. The caller must Disconnect.
func connectClient(ctx context.Context, cfg *config.Config) (*client.Client, *store.Store, error) {
	st := store.New()
	c := client.New(st, cfg.ClientEngine())
	if err := c.Connect(ctx, cfg.Client.Server); err != nil {
		return nil, nil, err
	}
	readyCtx, cancel := context.WithTimeout(ctx, cfg.Client.ConnectTimeout)
	defer cancel()
	if err := c.WaitReady(readyCtx); err != nil {
		c.Disconnect()
		return nil, nil, fmt.Errorf("waiting for %s: %w", cfg.Client.Server, err)
	}
	return c, st, nil
}

func clientGetCmd(session func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "get [prefix]",
		Short: "Print entries from the server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := session()
			if err != nil {
				return err
			}
			c, st, err := connectClient(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer c.Disconnect()

			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			for _, e := range st.List() {
				if strings.HasPrefix(e.Name, prefix) {
					printEntry(cmd.OutOrStdout(), "", e)
				}
			}
			return nil
		},
	}
}

func clientSetCmd(session func() (*config.Config, error)) *cobra.Command {
	var (
		typ        string
		persistent bool
	)

	cmd := &cobra.Command{
		Use:   "set <name> <value>",
		Short: "Set an entry on the server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			value, err := parseValue(typ, args[1])
			if err != nil {
				return err
			}

			cfg, err := session()
			if err != nil {
				return err
			}
			c, st, err := connectClient(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer c.Disconnect()

			var flags protocol.EntryFlags
			if cur, ok := st.Get(name); ok {
				flags = cur.Flags
			}
			if cmd.Flags().Changed("persistent") {
				flags = 0
				if persistent {
					flags = protocol.FlagPersistent
				}
			}
			e, err := st.CreateOrUpdate(name, value.Type, value, flags, store.Local)
			if err != nil {
				return err
			}
			success("%s = %s", e.Name, e.Value)
			return nil
		},
	}

	cmd.Flags().StringVarP(&typ, "type", "t", "", "Value type (Boolean, Double, String, Raw, BooleanArray, DoubleArray, StringArray)")
	cmd.Flags().BoolVarP(&persistent, "persistent", "p", false, "Set the persistent flag")

	return cmd
}

func clientDeleteCmd(session func() (*config.Config, error)) *cobra.Command {
	var adminURL string

	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete an entry through the server's admin surface",
		Long: `Delete an entry. Clients do not send deletes over the wire, so this
talks to the server's admin HTTP surface instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := session(); err != nil {
				return err
			}
			if err := deleteViaAdmin(cmd.Context(), adminURL, args[0]); err != nil {
				return err
			}
			success("deleted %s", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&adminURL, "admin", "http://localhost:8080", "Base URL of the server's admin surface")

	return cmd
}

// deleteViaAdmin issues DELETE /entries/<name> against the admin surface.
func deleteViaAdmin(ctx context.Context, base, name string) error {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return fmt.Errorf("admin url: %w", err)
	}
	u = u.JoinPath("entries", strings.TrimPrefix(name, "/"))

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", store.ErrNotFound, name)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("admin: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
}

func clientWatchCmd(session func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [prefix]",
		Short: "Stream entry changes until interrupted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := session()
			if err != nil {
				return err
			}
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st := store.New()
			out := cmd.OutOrStdout()
			st.AddListener(func(n store.Notification) {
				switch n.Event {
				case store.EventClear:
					fmt.Fprintf(out, "%s clear\n", time.Now().Format(time.TimeOnly))
				default:
					printEntry(out, n.Event.String(), n.Entry)
				}
			}, store.ListenerOptions{Prefix: prefix})
			st.AddConnectionListener(func(n store.ConnectionNotification) {
				fmt.Fprintf(out, "%s %s %s\n", time.Now().Format(time.TimeOnly), n.New.State, n.New.RemoteID)
			}, false)

			c := client.New(st, cfg.ClientEngine())
			if err := c.Connect(ctx, cfg.Client.Server); err != nil {
				return err
			}
			defer c.Disconnect()

			<-ctx.Done()
			return nil
		},
	}
}

func printEntry(w io.Writer, event string, e store.Entry) {
	flags := ""
	if e.Persistent() {
		flags = " [persistent]"
	}
	if event != "" {
		event += " "
	}
	fmt.Fprintf(w, "%s%s (%s) = %s%s\n", event, e.Name, e.Type(), e.Value, flags)
}
