// Package sweeper runs periodic catalog maintenance: it reports records past
// their sync deadline and prunes old rejected updates.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pario-ai/pricer/pkg/models"
)

// Catalog reports records whose sync deadline has passed.
type Catalog interface {
	DueForSync(now time.Time) []models.ModelCostRecord
}

// RejectionPruner deletes rejected updates older than a cutoff.
type RejectionPruner interface {
	PruneRejections(ctx context.Context, before time.Time) (int64, error)
}

// Gauges receives the stale-record count after each sweep.
type Gauges interface {
	SetStaleRecords(n int)
}

// Config controls when sweeps run and what they prune.
// A zero RejectionRetention disables pruning.
type Config struct {
	Schedule           string
	RejectionRetention time.Duration
}

// Result is the outcome of one sweep.
type Result struct {
	Stale  []string
	Pruned int64
}

// Sweeper runs Sweep on a cron schedule.
type Sweeper struct {
	catalog Catalog
	pruner  RejectionPruner
	gauges  Gauges
	cfg     Config

	cron    *cron.Cron
	mu      sync.Mutex
	running bool

	logger *slog.Logger
	now    func() time.Time
}

// New creates a Sweeper. pruner and gauges may be nil.
func New(cat Catalog, pruner RejectionPruner, gauges Gauges, cfg Config, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		catalog: cat,
		pruner:  pruner,
		gauges:  gauges,
		cfg:     cfg,
		cron:    cron.New(),
		logger:  logger.With("component", "sweeper"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Start schedules sweeps and returns. They stop when ctx is cancelled or Stop
// is called. An empty schedule disables the sweeper.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Schedule == "" {
		s.logger.Info("sweep schedule not configured, skipping")
		return nil
	}
	if _, err := cron.ParseStandard(s.cfg.Schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.cfg.Schedule, err)
	}
	if _, err := s.cron.AddFunc(s.cfg.Schedule, func() { s.Sweep(ctx) }); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.cron.Start()
	s.running = true

	s.logger.Info("sweeper started",
		"schedule", s.cfg.Schedule,
		"rejection_retention", s.cfg.RejectionRetention,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("sweeper stopped")
	}
}

// NextRun returns the next scheduled sweep, or nil when not running.
func (s *Sweeper) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if !s.running || len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}

// Sweep runs one maintenance pass.
func (s *Sweeper) Sweep(ctx context.Context) Result {
	now := s.now()
	var res Result

	for _, rec := range s.catalog.DueForSync(now) {
		res.Stale = append(res.Stale, rec.ModelID)
		s.logger.Warn("cost record past sync deadline",
			"model", rec.ModelID,
			"provider", rec.ProviderID,
			"due", rec.Provenance.NextSyncDueAt,
			"estimated", rec.IsEstimated(),
		)
	}
	if s.gauges != nil {
		s.gauges.SetStaleRecords(len(res.Stale))
	}

	if s.pruner != nil && s.cfg.RejectionRetention > 0 {
		n, err := s.pruner.PruneRejections(ctx, now.Add(-s.cfg.RejectionRetention))
		if err != nil {
			s.logger.Error("pruning rejected updates failed", "error", err)
		} else {
			res.Pruned = n
		}
	}

	if len(res.Stale) > 0 || res.Pruned > 0 {
		s.logger.Info("sweep completed", "stale", len(res.Stale), "pruned", res.Pruned)
	} else {
		s.logger.Debug("sweep completed, nothing to report")
	}
	return res
}
