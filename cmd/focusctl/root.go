package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ownmi/focussync/internal/apiclient"
	"github.com/ownmi/focussync/internal/config"
	"github.com/ownmi/focussync/internal/logging"
)

var (
	version = "dev"
	commit  = "unknown"
)

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	wsURL    string
	apiURL   string
	token    string
	output   string
	logLevel string

	cfg config.ClientConfig
	log *logrus.Logger
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "focusctl",
		Short: "Track and review focus sessions",
		Long: `focusctl drives a live focus session against the focus service and
manages the recorded history.

Quick Start:
  focusctl watch                       # live timer, type start/end/clear/quit
  focusctl sessions list --output json
  focusctl sessions add --start 2025-06-15T09:00:00Z --duration 45m
  focusctl stats`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.load(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&g.wsURL, "ws-url", "", "Focus websocket URL (default $FOCUS_WS_URL)")
	flags.StringVar(&g.apiURL, "api-url", "", "Focus REST base URL (default $FOCUS_API_URL)")
	flags.StringVar(&g.token, "token", "", "Bearer token (default $FOCUS_TOKEN)")
	flags.StringVarP(&g.output, "output", "o", "table", "Output format: table|json|yaml")
	flags.StringVar(&g.logLevel, "log-level", "", "Log level (default $LOG_LEVEL or warn)")

	root.AddCommand(newWatchCmd(g), newSessionsCmd(g), newStatsCmd(g))
	return root
}

// load merges environment configuration with explicit flags.
func (g *globals) load(cmd *cobra.Command) error {
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	if g.wsURL != "" {
		cfg.WSURL = g.wsURL
	}
	if g.apiURL != "" {
		cfg.APIURL = g.apiURL
	}
	if g.token != "" {
		cfg.Token = g.token
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	if _, err := parseFormat(g.output); err != nil {
		return err
	}

	log, err := logging.NewWithOutput(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	g.cfg = cfg
	g.log = log
	return nil
}

func (g *globals) api() (*apiclient.Client, error) {
	return apiclient.New(g.cfg.APIURL, g.cfg.Token, nil)
}
