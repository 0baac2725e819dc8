package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/pricer/pkg/config"
	"github.com/pario-ai/pricer/pkg/server"
	"github.com/pario-ai/pricer/pkg/sweeper"
)

func newServeCmd(configPath *string) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the pricing API with metrics, the sweeper and config hot reload",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if listen == "" {
				listen = a.cfg.Server.Listen
			}
			srv := server.New(a.svc, a.alerts, a.cfg.Models, server.Options{
				Listen:     listen,
				AdminToken: a.cfg.Server.AdminToken,
				Metrics:    a.metrics.Handler(),
				Logger:     a.logger,
			})

			sw := sweeper.New(a.catalog, a.store, a.metrics, sweeper.Config{
				Schedule:           a.cfg.Sweeper.Schedule,
				RejectionRetention: time.Duration(a.cfg.Sweeper.RejectionRetentionDays) * 24 * time.Hour,
			}, a.logger)
			if err := sw.Start(ctx); err != nil {
				return fmt.Errorf("start sweeper: %w", err)
			}
			defer sw.Stop()
			sw.Sweep(ctx)

			if *configPath != "" {
				go func() {
					if err := config.Watch(ctx, *configPath, a.logger, func(c *config.Config) {
						a.applyReload(ctx, c, srv)
					}); err != nil {
						a.logger.Error("config watch stopped", "error", err)
					}
				}()
			}

			a.logger.Info("starting pricer", "config", *configPath, "db", a.cfg.DBPath)
			return srv.ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides server.listen)")
	return cmd
}

// applyReload swaps in the reloaded markup and provider catalog. Other
// sections take effect on restart.
func (a *app) applyReload(ctx context.Context, c *config.Config, srv *server.Server) {
	if err := a.markup.Replace(c.Markup); err != nil {
		a.logger.Error("reloaded markup rejected", "error", err)
		return
	}
	if err := a.saveMarkup(ctx); err != nil {
		a.logger.Error("persisting reloaded markup", "error", err)
	}
	srv.SetModels(c.Models)
	a.logger.Info("markup and models reloaded",
		"provider_overrides", len(c.Markup.ProviderOverrides),
		"model_overrides", len(c.Markup.ModelOverrides),
		"models", len(c.Models),
	)
}
