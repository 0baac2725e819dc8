// Package metrics exposes Prometheus metrics for pricing, catalog, alert and
// optimizer activity.
//
// Metrics (namespace defaults to "pricer"):
//   - quotes_total: quotes by model and outcome
//   - quote_price_usd: customer price distribution per quote
//   - catalog_updates_total: cost record upserts by outcome
//   - estimations_total: estimated records by reason
//   - estimation_confidence: confidence distribution of estimates
//   - alerts_created_total: alerts by severity
//   - alerts_open: open alerts by severity
//   - optimizations_total: optimizer runs by strategy and outcome
//   - optimizer_exclusions_total: candidates removed per filter stage
//   - stale_records: records past their sync deadline at the last sweep
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pario-ai/pricer/pkg/alerts"
	"github.com/pario-ai/pricer/pkg/models"
	"github.com/pario-ai/pricer/pkg/optimizer"
)

// DefaultNamespace is used when no namespace is configured.
const DefaultNamespace = "pricer"

// Quote outcomes.
const (
	QuotePriced    = "priced"
	QuoteEstimated = "estimated"
	QuoteStale     = "stale"
	QuoteRefused   = "refused"
	QuoteInvalid   = "invalid"
)

// Collector owns the registry and all metric vectors.
type Collector struct {
	registry *prometheus.Registry

	quotes          *prometheus.CounterVec
	quotePrice      *prometheus.HistogramVec
	catalogUpdates  *prometheus.CounterVec
	estimations     *prometheus.CounterVec
	confidence      prometheus.Histogram
	alertsCreated   *prometheus.CounterVec
	alertsOpen      *prometheus.GaugeVec
	optimizations   *prometheus.CounterVec
	stageExclusions *prometheus.CounterVec
	staleRecords    prometheus.Gauge
}

// NewCollector creates and registers all metrics. A nil registry gets a
// fresh one.
func NewCollector(namespace string, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}

	c := &Collector{
		registry: registry,
		quotes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_total",
			Help:      "Quotes computed by model and outcome",
		}, []string{"model", "outcome"}),
		quotePrice: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quote_price_usd",
			Help:      "Customer price per quote in USD",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0, 50.0},
		}, []string{"model"}),
		catalogUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_updates_total",
			Help:      "Cost record upserts by outcome",
		}, []string{"outcome"}),
		estimations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "estimations_total",
			Help:      "Estimated cost records stored, by reason",
		}, []string{"reason"}),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "estimation_confidence",
			Help:      "Confidence of stored cost estimates",
			Buckets:   []float64{0, 0.1, 0.25, 0.5, 0.65, 0.8, 0.9, 1},
		}),
		alertsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_created_total",
			Help:      "Estimated-cost alerts created by severity",
		}, []string{"severity"}),
		alertsOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alerts_open",
			Help:      "Pending or acknowledged alerts by severity",
		}, []string{"severity"}),
		optimizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "optimizations_total",
			Help:      "Optimizer runs by strategy and outcome",
		}, []string{"strategy", "outcome"}),
		stageExclusions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "optimizer_exclusions_total",
			Help:      "Candidates removed by each optimizer filter stage",
		}, []string{"stage"}),
		staleRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stale_records",
			Help:      "Cost records past their sync deadline at the last sweep",
		}),
	}

	registry.MustRegister(
		c.quotes,
		c.quotePrice,
		c.catalogUpdates,
		c.estimations,
		c.confidence,
		c.alertsCreated,
		c.alertsOpen,
		c.optimizations,
		c.stageExclusions,
		c.staleRecords,
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// RecordQuote counts a quote. price is only observed for priced outcomes.
func (c *Collector) RecordQuote(model, outcome string, price float64) {
	c.quotes.WithLabelValues(model, outcome).Inc()
	switch outcome {
	case QuotePriced, QuoteEstimated, QuoteStale:
		c.quotePrice.WithLabelValues(model).Observe(price)
	}
}

// RecordUpdate counts an upsert outcome ("accepted", "unchanged", "rejected").
func (c *Collector) RecordUpdate(outcome string) {
	c.catalogUpdates.WithLabelValues(outcome).Inc()
}

// RecordOptimization counts an optimizer run and per-stage exclusions.
func (c *Collector) RecordOptimization(strategy optimizer.Strategy, stages []optimizer.StageResult, err error) {
	outcome := "selected"
	if err != nil {
		outcome = "no_eligible"
	}
	c.optimizations.WithLabelValues(string(strategy), outcome).Inc()
	for _, s := range stages {
		if removed := s.Before - s.After; removed > 0 {
			c.stageExclusions.WithLabelValues(string(s.Stage)).Add(float64(removed))
		}
	}
}

// SetStaleRecords records the count found by the last sweep.
func (c *Collector) SetStaleRecords(n int) {
	c.staleRecords.Set(float64(n))
}

// RecordChanged implements catalog.Observer.
func (c *Collector) RecordChanged(_ context.Context, _ *models.ModelCostRecord, cur models.ModelCostRecord) {
	c.RecordUpdate("accepted")
	if est := cur.Estimation; est != nil {
		c.estimations.WithLabelValues(string(est.Reason)).Inc()
		c.confidence.Observe(est.Confidence)
	}
}

// UpdateRejected implements catalog.Observer.
func (c *Collector) UpdateRejected(_ context.Context, _ models.RejectedUpdate) {
	c.RecordUpdate("rejected")
}

// Notify implements alerts.Notifier.
func (c *Collector) Notify(_ context.Context, ev alerts.Event) {
	sev := string(ev.Alert.Severity)
	switch ev.Type {
	case alerts.EventCreated:
		c.alertsCreated.WithLabelValues(sev).Inc()
		c.alertsOpen.WithLabelValues(sev).Inc()
	case alerts.EventTransitioned:
		if ev.From.Open() && !ev.Alert.Status.Open() {
			c.alertsOpen.WithLabelValues(sev).Dec()
		}
	}
}

// SetOpenAlerts resets the open gauge from restored state.
func (c *Collector) SetOpenAlerts(open []models.EstimatedCostAlert) {
	c.alertsOpen.Reset()
	for _, a := range open {
		if a.Status.Open() {
			c.alertsOpen.WithLabelValues(string(a.Severity)).Inc()
		}
	}
}
