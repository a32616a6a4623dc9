package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quailyquaily/telegramdock/internal/config"
)

var (
	version = "dev"
	commit  = "none"
)

func Execute() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "telegramdock",
		Short:         "Telegram customer-support relay bot",
		Version:       strings.TrimSpace(version) + " (" + strings.TrimSpace(commit) + ")",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			return runDock(cmd.Context(), path, cmd.Flags(), cmd.ErrOrStderr())
		},
	}

	cmd.PersistentFlags().String("config", config.DefaultPath, "Config file path; created with placeholders when missing.")
	cmd.PersistentFlags().String("log-level", "", "Logging level: debug|info|warn|error (overrides logging.level).")
	cmd.PersistentFlags().String("log-format", "", "Logging format: text|json (overrides logging.format).")
	cmd.PersistentFlags().String("health-listen", "", "Listen address for /healthz and /metrics, e.g. :8080 (empty disables).")
	return cmd
}
