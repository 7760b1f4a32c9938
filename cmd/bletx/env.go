package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/bletx/internal/devicefactory"
	"github.com/srg/bletx/pkg/config"
	"github.com/srg/bletx/session"
	"golang.org/x/term"
)

// commandEnv is what every session-backed subcommand needs
type commandEnv struct {
	cfg    *config.Config
	logger *logrus.Logger
	radio  devicefactory.Radio
	out    io.Writer
	colors bool
}

// newCommandEnv loads the configuration, applies the global flags and
// override, then builds the logger and the radio
func newCommandEnv(cmd *cobra.Command, override func(*config.Config)) (*commandEnv, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if backend, _ := cmd.Flags().GetString("backend"); backend != "" {
		cfg.Backend = backend
	}
	if override != nil {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}

	radio, err := devicefactory.RadioFactory(devicefactory.Options{
		Backend:     cfg.Backend,
		ActiveScan:  cfg.ActiveScan,
		DialTimeout: cfg.ConnectTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	out := cmd.OutOrStdout()
	noColor, _ := cmd.Flags().GetBool("no-color")
	return &commandEnv{
		cfg:    cfg,
		logger: logger,
		radio:  radio,
		out:    out,
		colors: !noColor && isTerminal(out),
	}, nil
}

func (e *commandEnv) newSession() *session.Session {
	return session.New(e.radio, e.cfg, e.logger)
}

func (e *commandEnv) Close() {
	if err := e.radio.Close(); err != nil {
		e.logger.WithError(err).Debug("Radio close failed")
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
