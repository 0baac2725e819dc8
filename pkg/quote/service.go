// Package quote ties the catalog, markup store, calculator, optimizer, views
// and alert manager into one service used by the CLI and the server.
package quote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/pario-ai/pricer/pkg/alerts"
	"github.com/pario-ai/pricer/pkg/catalog"
	"github.com/pario-ai/pricer/pkg/markup"
	"github.com/pario-ai/pricer/pkg/metrics"
	"github.com/pario-ai/pricer/pkg/models"
	"github.com/pario-ai/pricer/pkg/optimizer"
	"github.com/pario-ai/pricer/pkg/pricing"
	"github.com/pario-ai/pricer/pkg/views"
)

// ErrCannotPrice is returned for records flagged as impossible to estimate
// that carry no last-known cost. They are never priced at zero.
var ErrCannotPrice = errors.New("model cost unavailable")

// AdminSource is the provenance source of operator-supplied costs.
const AdminSource = "admin"

// ReferenceRequest is priced to snapshot the affected price on new alerts.
var ReferenceRequest = models.PriceRequest{InputTokens: 1000, OutputTokens: 1000}

// Deps are the collaborators of a Service. Metrics may be nil.
type Deps struct {
	Catalog *catalog.Catalog
	Markup  *markup.Store
	Alerts  *alerts.Manager
	Metrics *metrics.Collector
	Options optimizer.Options
	Logger  *slog.Logger
}

// Service answers quote and optimize calls and applies admin actions.
type Service struct {
	catalog *catalog.Catalog
	markup  *markup.Store
	alerts  *alerts.Manager
	metrics *metrics.Collector
	opts    optimizer.Options
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Service and registers it as a catalog observer so estimated
// records raise alerts and verified records resolve them.
func New(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		catalog: d.Catalog,
		markup:  d.Markup,
		alerts:  d.Alerts,
		metrics: d.Metrics,
		opts:    d.Options,
		logger:  logger.With("component", "quote"),
		now:     func() time.Time { return time.Now().UTC() },
	}
	d.Catalog.AddObserver(s)
	if d.Metrics != nil {
		d.Catalog.AddObserver(d.Metrics)
		d.Alerts.AddNotifier(d.Metrics)
	}
	return s
}

// Quote is a priced request against one model.
type Quote struct {
	Record    models.ModelCostRecord `json:"record"`
	Markup    models.ResolvedMarkup  `json:"markup"`
	Price     models.PriceBreakdown  `json:"price"`
	Estimated bool                   `json:"estimated"`
	Stale     bool                   `json:"stale"`
	PricedAt  time.Time              `json:"priced_at"`
}

// ViewInput returns the projection input for q.
func (q Quote) ViewInput() views.Input {
	return views.Input{Record: q.Record, Markup: q.Markup, Price: q.Price, Now: q.PricedAt}
}

// Quote prices req against modelID. Stale and estimated records are still
// priced and flagged; unestimable records without a last-known cost are
// refused with ErrCannotPrice.
func (s *Service) Quote(ctx context.Context, modelID string, req models.PriceRequest, thermal *models.ThermalCostFactors) (Quote, error) {
	rec, err := s.catalog.Get(modelID)
	if err != nil {
		return Quote{}, err
	}
	q, err := s.price(rec, req, thermal)
	if err != nil {
		outcome := metrics.QuoteInvalid
		if errors.Is(err, ErrCannotPrice) {
			outcome = metrics.QuoteRefused
		}
		s.recordQuote(modelID, outcome, 0)
		return Quote{}, err
	}

	outcome := metrics.QuotePriced
	switch {
	case q.Stale:
		outcome = metrics.QuoteStale
	case q.Estimated:
		outcome = metrics.QuoteEstimated
	}
	s.recordQuote(modelID, outcome, q.Price.TotalPrice)
	if q.Stale {
		s.logger.DebugContext(ctx, "priced against stale record", "model", modelID,
			"next_sync_due_at", rec.Provenance.NextSyncDueAt)
	}
	return q, nil
}

// AdminView quotes and projects the result for operators.
func (s *Service) AdminView(ctx context.Context, modelID string, req models.PriceRequest, thermal *models.ThermalCostFactors) (views.AdminView, error) {
	q, err := s.Quote(ctx, modelID, req, thermal)
	if err != nil {
		return views.AdminView{}, err
	}
	return views.ToAdminView(q.ViewInput()), nil
}

// ClientView quotes and projects the result for customers.
func (s *Service) ClientView(ctx context.Context, modelID string, req models.PriceRequest, thermal *models.ThermalCostFactors) (views.ClientView, error) {
	q, err := s.Quote(ctx, modelID, req, thermal)
	if err != nil {
		return views.ClientView{}, err
	}
	return views.ToClientView(q.ViewInput()), nil
}

// Optimize prices req for every model in infos and runs the optimizer.
// Models missing from the catalog or refused with ErrCannotPrice are left out
// of the candidate set.
func (s *Service) Optimize(ctx context.Context, infos []models.ModelInfo, req models.PriceRequest, oreq optimizer.Request) (optimizer.Decision, error) {
	if err := pricing.ValidateRequest(req); err != nil {
		return optimizer.Decision{}, err
	}

	candidates := make([]optimizer.Candidate, 0, len(infos))
	for _, info := range infos {
		rec, err := s.catalog.Get(info.ModelID)
		if err != nil {
			s.logger.DebugContext(ctx, "candidate has no cost record", "model", info.ModelID)
			continue
		}
		q, err := s.price(rec, req, info.Thermal)
		if errors.Is(err, ErrCannotPrice) {
			s.logger.DebugContext(ctx, "candidate cannot be priced", "model", info.ModelID)
			continue
		}
		if err != nil {
			return optimizer.Decision{}, fmt.Errorf("pricing %s: %w", info.ModelID, err)
		}

		c := optimizer.Candidate{
			ModelID:      info.ModelID,
			ProviderID:   rec.ProviderID,
			Capabilities: info.Capabilities,
			Available:    info.Available,
			QualityScore: info.QualityScore,
			Estimated:    q.Estimated,
			Price:        q.Price,
		}
		if q.Price.WarmupApplied && info.Thermal != nil {
			c.WarmupSeconds = float64(info.Thermal.Warmup.EstimatedDurationSeconds)
		}
		candidates = append(candidates, c)
	}

	d, err := optimizer.Optimize(candidates, oreq, s.opts)
	if s.metrics != nil {
		strategy := d.Strategy
		if strategy == "" {
			strategy = oreq.Strategy
		}
		s.metrics.RecordOptimization(strategy, d.Stages, err)
	}
	if err != nil {
		s.logger.InfoContext(ctx, "no eligible candidate", "error", err, "candidates", len(candidates))
		return d, err
	}
	return d, nil
}

// SyncResult summarises a batch of upserts.
type SyncResult struct {
	Accepted  int
	Unchanged int
	Rejected  []error
}

// Sync upserts recs in order. Rejected records do not stop the batch.
func (s *Service) Sync(ctx context.Context, recs []models.ModelCostRecord) SyncResult {
	var res SyncResult
	for _, rec := range recs {
		outcome, err := s.catalog.Upsert(ctx, rec)
		switch {
		case err != nil:
			res.Rejected = append(res.Rejected, err)
		case outcome == catalog.Unchanged:
			res.Unchanged++
			if s.metrics != nil {
				s.metrics.RecordUpdate(string(catalog.Unchanged))
			}
		default:
			res.Accepted++
		}
	}
	return res
}

// AdjustEstimate applies an operator-supplied cost to an acknowledged alert
// and stores it as the model's verified cost, which resolves the alert.
func (s *Service) AdjustEstimate(ctx context.Context, alertID, by string, cost models.BaseCosts) (models.EstimatedCostAlert, error) {
	a, err := s.alerts.Adjust(ctx, alertID, by, cost)
	if err != nil {
		return models.EstimatedCostAlert{}, err
	}

	rec, err := s.catalog.Get(a.ModelID)
	if err != nil {
		return a, fmt.Errorf("adjusting %s: %w", a.ModelID, err)
	}
	rec.BaseCosts = cost
	rec.Estimation = nil
	rec.Provenance.Source = AdminSource
	if _, err := s.catalog.Upsert(ctx, rec); err != nil {
		return a, fmt.Errorf("storing adjusted cost for %s: %w", a.ModelID, err)
	}
	return s.alerts.Get(alertID)
}

// ForceResync marks a model due for resync.
func (s *Service) ForceResync(ctx context.Context, modelID string) error {
	if err := s.catalog.MarkResyncDue(ctx, modelID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "resync forced", "model", modelID)
	return nil
}

// RecordChanged implements catalog.Observer. Alerts are raised only when an
// estimate first appears or its content changes; metadata-only updates such
// as a forced resync leave alerts alone.
func (s *Service) RecordChanged(ctx context.Context, prev *models.ModelCostRecord, cur models.ModelCostRecord) {
	if cur.IsEstimated() {
		if !estimateChanged(prev, cur) {
			return
		}
		var affected float64
		if q, err := s.price(cur, ReferenceRequest, nil); err == nil {
			affected = q.Price.TotalPrice
		}
		if _, _, err := s.alerts.Raise(ctx, cur, affected); err != nil {
			s.logger.ErrorContext(ctx, "raising alert", "model", cur.ModelID, "error", err)
		}
		return
	}

	source := alerts.SourceVerifiedCost
	if cur.Provenance.Source == AdminSource {
		source = alerts.SourceAdmin
	}
	by := cur.Provenance.Source
	if by == "" {
		by = "sync"
	}
	if _, err := s.alerts.ResolveForModel(ctx, cur.ModelID, by, source); err != nil {
		s.logger.ErrorContext(ctx, "resolving alerts", "model", cur.ModelID, "error", err)
	}
}

func estimateChanged(prev *models.ModelCostRecord, cur models.ModelCostRecord) bool {
	if prev == nil || !prev.IsEstimated() {
		return true
	}
	a, b := prev.Estimation, cur.Estimation
	return a.Reason != b.Reason ||
		a.Confidence != b.Confidence ||
		a.Method != b.Method ||
		a.AwaitingRealCost != b.AwaitingRealCost ||
		!slices.Equal(a.SourceModels, b.SourceModels) ||
		prev.BaseCosts != cur.BaseCosts
}

// UpdateRejected implements catalog.Observer. The catalog records and logs
// rejections itself.
func (s *Service) UpdateRejected(context.Context, models.RejectedUpdate) {}

func (s *Service) price(rec models.ModelCostRecord, req models.PriceRequest, thermal *models.ThermalCostFactors) (Quote, error) {
	if !priceable(rec) {
		return Quote{}, fmt.Errorf("%w: %s", ErrCannotPrice, rec.ModelID)
	}
	resolved := s.markup.Resolve(rec.ModelID, rec.ProviderID, rec.IsExternal())
	breakdown, err := pricing.ComputePrice(rec, resolved.Percent, req, thermal)
	if err != nil {
		return Quote{}, err
	}
	now := s.now()
	return Quote{
		Record:    rec,
		Markup:    resolved,
		Price:     breakdown,
		Estimated: rec.IsEstimated(),
		Stale:     rec.IsStale(now),
		PricedAt:  now,
	}, nil
}

// priceable is false for unestimable records without a last-known cost.
func priceable(rec models.ModelCostRecord) bool {
	if !rec.Estimation.CannotEstimate() {
		return true
	}
	return rec.BaseCosts != (models.BaseCosts{}) || rec.Special != (models.SpecialCosts{})
}

func (s *Service) recordQuote(model, outcome string, price float64) {
	if s.metrics != nil {
		s.metrics.RecordQuote(model, outcome, price)
	}
}
