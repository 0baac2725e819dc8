package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pario-ai/pricer/pkg/alerts"
	"github.com/pario-ai/pricer/pkg/catalog"
	"github.com/pario-ai/pricer/pkg/config"
	"github.com/pario-ai/pricer/pkg/logging"
	"github.com/pario-ai/pricer/pkg/markup"
	"github.com/pario-ai/pricer/pkg/metrics"
	"github.com/pario-ai/pricer/pkg/models"
	"github.com/pario-ai/pricer/pkg/quote"
	"github.com/pario-ai/pricer/pkg/store/sqlite"
)

// app is the wired object graph shared by every command.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *sqlite.Store
	catalog *catalog.Catalog
	markup  *markup.Store
	alerts  *alerts.Manager
	metrics *metrics.Collector
	svc     *quote.Service
}

// openApp loads config, opens the state store and restores catalog, markup
// and alert state from it. An empty configPath uses defaults.
func openApp(ctx context.Context, configPath string) (*app, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := logging.New(cfg.Log, os.Stderr)

	st, err := sqlite.Open(cfg.DBPath, logger)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, store: st}
	if err := a.restore(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}

	a.catalog.AddObserver(st)
	a.alerts.AddNotifier(st)
	a.alerts.AddNotifier(alerts.LogNotifier{Logger: logger})

	namespace := cfg.Metrics.Namespace
	if namespace == "" {
		namespace = metrics.DefaultNamespace
	}
	a.metrics = metrics.NewCollector(namespace, prometheus.NewRegistry())
	a.svc = quote.New(quote.Deps{
		Catalog: a.catalog,
		Markup:  a.markup,
		Alerts:  a.alerts,
		Metrics: a.metrics,
		Options: cfg.Optimizer,
		Logger:  logger,
	})
	a.metrics.SetOpenAlerts(a.alerts.List(alerts.Filter{}))
	a.metrics.SetStaleRecords(len(a.catalog.DueForSync(time.Now().UTC())))
	return a, nil
}

func (a *app) restore(ctx context.Context) error {
	a.catalog = catalog.New(a.logger)
	recs, err := a.store.LoadRecords(ctx)
	if err != nil {
		return err
	}
	if skipped := a.catalog.Restore(recs); skipped > 0 {
		a.logger.Warn("skipped invalid persisted records", "count", skipped)
	}

	cfgMarkup := a.cfg.Markup
	stored, ok, err := a.store.LoadMarkup(ctx)
	if err != nil {
		return err
	}
	if ok {
		cfgMarkup = stored
	}
	a.markup, err = markup.NewStore(cfgMarkup)
	if err != nil {
		return fmt.Errorf("restore markup: %w", err)
	}

	a.alerts = alerts.NewManager(a.logger)
	saved, err := a.store.LoadAlerts(ctx)
	if err != nil {
		return err
	}
	a.alerts.Restore(saved)

	a.logger.Debug("state restored",
		"records", len(recs),
		"alerts", len(saved),
		"stored_markup", ok,
	)
	return nil
}

// saveMarkup persists the live markup after an admin change.
func (a *app) saveMarkup(ctx context.Context) error {
	return a.store.SaveMarkup(ctx, a.markup.Snapshot())
}

// modelInfo returns the configured catalog info for modelID.
func (a *app) modelInfo(modelID string) (models.ModelInfo, bool) {
	for _, m := range a.cfg.Models {
		if m.ModelID == modelID {
			return m, true
		}
	}
	return models.ModelInfo{}, false
}

func (a *app) Close() error {
	return a.store.Close()
}
