package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pario-ai/pricer/pkg/mcp"
)

func newMCPCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve pricing tools to MCP clients over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			srv := mcp.New(mcp.Deps{
				Pricer:  a.svc,
				Catalog: a.catalog,
				Alerts:  a.alerts,
				Markup:  a.markup,
				Models:  a.cfg.Models,
				Logger:  a.logger,
			}, version)
			return srv.Run(ctx, os.Stdin, os.Stdout)
		},
	}
}
