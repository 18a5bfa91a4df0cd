package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"zapvoice/internal/daemon"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the zapvoice HTTP server in the foreground",
		Long: "Run the pledge API, goal widgets, and browser alert overlay until\n" +
			"interrupted. Only one server may run per data directory.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return daemon.Run(cmd.Context(), cfg, daemon.Options{
				LogLevel: logLevel,
				Bind:     bind,
			})
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	cmd.Flags().StringVar(&bind, "bind", "", "Override the HTTP listen address")
	return cmd
}
