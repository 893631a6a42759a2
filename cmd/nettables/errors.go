package main

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/BurntSushi/toml"

	"github.com/vango-dev/nettables/internal/config"
	nterrors "github.com/vango-dev/nettables/internal/errors"
	"github.com/vango-dev/nettables/pkg/client"
	"github.com/vango-dev/nettables/pkg/protocol"
	"github.com/vango-dev/nettables/pkg/session"
	"github.com/vango-dev/nettables/pkg/store"
)

// describe maps a command failure to a coded, explained error. Errors it
// does not recognise are returned unchanged.
func (g *globalFlags) describe(err error) error {
	if err == nil {
		return nil
	}
	var ne *nterrors.Error
	if errors.As(err, &ne) {
		return ne
	}

	configPath := g.configPath
	if configPath == "" {
		configPath = filepath.Join(".", config.ConfigFileName)
	}

	var (
		perr  toml.ParseError
		opErr *net.OpError
	)
	switch {
	case errors.Is(err, config.ErrNotFound):
		return nterrors.New("NT001").Wrap(err).
			WithSuggestion("Check the --config path, or omit it to use defaults.")
	case errors.As(err, &perr):
		return nterrors.New("NT002").Wrap(err).WithLocationFromError(configPath, err)
	case errors.Is(err, config.ErrInvalid):
		return nterrors.New("NT003").Wrap(err).
			WithExample("[server]\nlisten = \":1735\"\nkeepalive = \"1s\"\nidle_timeout = \"10s\"")

	case errors.Is(err, syscall.EADDRINUSE):
		return nterrors.New("NT104").Wrap(err).
			WithSuggestion("Pick another address with --listen or --http, or stop the other process.")
	case errors.Is(err, session.ErrProtoUnsupported):
		return nterrors.New("NT102").Wrap(err)
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.As(err, &opErr) && opErr.Op == "dial":
		return nterrors.New("NT101").Wrap(err).
			WithSuggestion("Start a server with `nettables server` or pass --server.")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, client.ErrNotConnected):
		return nterrors.New("NT103").Wrap(err).
			WithSuggestion("Check that the address points at a nettables server and not another service.")

	case errors.Is(err, store.ErrTypeMismatch):
		return nterrors.New("NT201").Wrap(err).
			WithSuggestion("Delete the entry first or write a value of its current type.")
	case errors.Is(err, protocol.ErrUnsupportedValue),
		errors.Is(err, protocol.ErrUnknownValueType),
		errors.Is(err, strconv.ErrSyntax),
		errors.Is(err, strconv.ErrRange):
		return nterrors.New("NT202").Wrap(err).
			WithExample("nettables client set /arm/angles 10,20,30 --type=DoubleArray")
	case errors.Is(err, store.ErrNotFound):
		return nterrors.New("NT203").Wrap(err)
	}
	return err
}
