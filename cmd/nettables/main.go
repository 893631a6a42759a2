package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/nettables/internal/config"
	nterrors "github.com/vango-dev/nettables/internal/errors"
	"github.com/vango-dev/nettables/internal/logging"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	identity   string
	logLevel   string
	logFormat  string
}

func main() {
	g := &globalFlags{}
	if err := newRootCmd(g).Execute(); err != nil {
		err = g.describe(err)
		var ne *nterrors.Error
		if g.logFormat == "json" && errors.As(err, &ne) {
			fmt.Fprintln(os.Stderr, ne.FormatJSON())
		} else {
			nterrors.Print(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCmd(g *globalFlags) *cobra.Command {

	rootCmd := &cobra.Command{
		Use:   "nettables",
		Short: "Replicated key-value tables over TCP or WebSocket",
		Long: `nettables keeps a table of named, typed values in sync between one
server and any number of clients.

Run a server that clients connect to, or a client that sets values
and watches for updates. Settings come from nettables.toml in the
working directory unless --config points elsewhere.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "Path to nettables.toml (default: ./nettables.toml if present)")
	pf.StringVar(&g.identity, "identity", "", "Name announced in the handshake")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&g.logFormat, "log-format", "", "Log format: text, json")

	rootCmd.AddCommand(
		serverCmd(g),
		clientCmd(g),
		versionCmd(),
	)
	return rootCmd
}

// load reads the configuration and applies global flag overrides.
func (g *globalFlags) load() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if g.configPath != "" {
		cfg, err = config.LoadFile(g.configPath)
	} else {
		cfg, err = config.Load(".")
		if errors.Is(err, config.ErrNotFound) {
			cfg, err = config.New(), nil
		}
	}
	if err != nil {
		return nil, err
	}

	if g.identity != "" {
		cfg.Identity = g.identity
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Log.Format = g.logFormat
	}
	return cfg, nil
}

// logger builds the process logger and installs it as the default.
func (g *globalFlags) logger(cfg *config.Config) (*slog.Logger, error) {
	logger, err := logging.FromEnv(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}
