package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/gregLibert/secure-element/internal/config"
	"github.com/gregLibert/secure-element/internal/pcsc"
	"github.com/gregLibert/secure-element/pkg/gpac"
	"github.com/gregLibert/secure-element/pkg/weaver"
)

// app carries the state shared by every subcommand.
type app struct {
	configPath string
	reader     string
	logLevel   string

	cfg config.Config
	log *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "seaccess",
		Short:         "Secure Element access rules and Weaver slots",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	cobra.EnableCommandSorting = false
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&a.reader, "reader", "", "PC/SC reader name (substring match)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "TRACE, DEBUG, INFO, WARN or ERROR")

	root.AddCommand(a.cmdRules())
	root.AddCommand(a.cmdRefreshTag())
	root.AddCommand(a.cmdWeaver())
	return root
}

// setup loads the configuration, applies flag overrides and installs the logger.
func (a *app) setup(cmd *cobra.Command) error {
	a.cfg = config.DefaultConfig()
	if a.configPath != "" {
		cfg, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		a.cfg = cfg
	}

	if cmd.Flags().Changed("reader") {
		a.cfg.Reader = a.reader
	}
	if cmd.Flags().Changed("log-level") {
		a.cfg.LogLevel = a.logLevel
	}
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	a.log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: a.cfg.Level()}))
	gpac.SetLogger(a.log)
	weaver.SetLogger(a.log)
	return nil
}

// withTerminal connects to the configured reader for the duration of fn.
func (a *app) withTerminal(fn func(*pcsc.Terminal) error) error {
	term, err := pcsc.Open(a.cfg.Reader, a.log)
	if err != nil {
		return err
	}
	defer func() {
		if err := term.Close(); err != nil {
			a.log.Warn("failed to release reader", "error", err)
		}
	}()
	return fn(term)
}
