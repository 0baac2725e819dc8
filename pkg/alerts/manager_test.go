package alerts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pario-ai/pricer/pkg/models"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Notify(_ context.Context, ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func newTestManager(t *testing.T) (*Manager, *eventLog) {
	t.Helper()
	events := &eventLog{}
	m := NewManager(nil, events)
	m.now = func() time.Time { return testNow }
	var seq atomic.Int64
	m.newID = func() string { return fmt.Sprintf("alert-%03d", seq.Add(1)) }
	return m, events
}

func estimatedRecord(modelID string, confidence float64) models.ModelCostRecord {
	rec := models.ModelCostRecord{
		ModelID:    modelID,
		ProviderID: "acme",
		BaseCosts:  models.BaseCosts{InputPer1K: 0.0028},
		Estimation: &models.Estimation{
			Reason:     models.ReasonNewModel,
			Confidence: confidence,
			Method:     models.MethodWeightedSimilarity,
		},
	}
	if confidence > 0 {
		rec.Estimation.SourceModels = []models.SourceModel{
			{ModelID: "a", SimilarityScore: 0.9, Weight: 0.6},
			{ModelID: "b", SimilarityScore: 0.6, Weight: 0.4},
		}
	}
	return rec
}

func TestSeverityFor(t *testing.T) {
	tests := []struct {
		confidence float64
		want       models.AlertSeverity
	}{
		{0.95, models.SeverityInfo},
		{0.81, models.SeverityInfo},
		{0.8, models.SeverityWarning},
		{0.50625, models.SeverityWarning},
		{0.5, models.SeverityWarning},
		{0.49, models.SeverityCritical},
		{0, models.SeverityCritical},
	}
	for _, tt := range tests {
		if got := SeverityFor(tt.confidence); got != tt.want {
			t.Errorf("confidence %v: expected %s, got %s", tt.confidence, tt.want, got)
		}
	}
}

func TestRaiseCreatesSinglePendingAlert(t *testing.T) {
	m, events := newTestManager(t)
	ctx := context.Background()

	a, created, err := m.Raise(ctx, estimatedRecord("new-model", 0.50625), 3.92)
	if err != nil {
		t.Fatal(err)
	}
	if !created || a.Status != models.AlertPending {
		t.Fatalf("expected new pending alert, got %+v created=%v", a, created)
	}
	if a.Severity != models.SeverityWarning {
		t.Errorf("expected warning severity, got %s", a.Severity)
	}
	if a.AffectedPrice != 3.92 || len(a.SourceModels) != 2 {
		t.Errorf("snapshot not captured: %+v", a)
	}

	dup, created, err := m.Raise(ctx, estimatedRecord("new-model", 0.95), 1)
	if err != nil {
		t.Fatal(err)
	}
	if created || dup.ID != a.ID {
		t.Errorf("duplicate not suppressed: %+v", dup)
	}
	if dup.Severity != models.SeverityWarning {
		t.Errorf("severity recomputed in place: %s", dup.Severity)
	}
	if events.count() != 1 {
		t.Errorf("expected 1 event, got %d", events.count())
	}
}

func TestRaiseRejectsVerifiedRecord(t *testing.T) {
	m, _ := newTestManager(t)
	_, _, err := m.Raise(context.Background(), models.ModelCostRecord{ModelID: "m"}, 0)
	if !errors.Is(err, ErrNotEstimated) {
		t.Errorf("expected ErrNotEstimated, got %v", err)
	}
}

func TestCannotEstimateIsCritical(t *testing.T) {
	m, _ := newTestManager(t)
	a, _, err := m.Raise(context.Background(), estimatedRecord("lonely", 0), 0)
	if err != nil {
		t.Fatal(err)
	}
	if a.Severity != models.SeverityCritical {
		t.Errorf("expected critical, got %s", a.Severity)
	}
}

func TestFullLifecycle(t *testing.T) {
	m, events := newTestManager(t)
	ctx := context.Background()
	a, _, _ := m.Raise(ctx, estimatedRecord("m", 0.7), 1)

	if _, err := m.Adjust(ctx, a.ID, "alice", models.BaseCosts{InputPer1K: 0.003}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("pending -> adjusted should be rejected, got %v", err)
	}

	ack, err := m.Acknowledge(ctx, a.ID, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if ack.Status != models.AlertAcknowledged || ack.AcknowledgedBy != "alice" {
		t.Errorf("unexpected ack %+v", ack)
	}

	adj, err := m.Adjust(ctx, a.ID, "alice", models.BaseCosts{InputPer1K: 0.003, OutputPer1K: 0.015})
	if err != nil {
		t.Fatal(err)
	}
	if adj.Status != models.AlertAdjusted || adj.AdjustedCost == nil || adj.AdjustedCost.OutputPer1K != 0.015 {
		t.Errorf("unexpected adjusted alert %+v", adj)
	}
	if _, open := m.Open("m"); open {
		t.Error("adjusted alert should not count as open")
	}

	res, err := m.Resolve(ctx, a.ID, "alice", "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != models.AlertResolved || res.Resolution == nil || res.Resolution.Source != SourceAdmin {
		t.Errorf("unexpected resolution %+v", res)
	}
	if events.count() != 4 {
		t.Errorf("expected 4 events, got %d", events.count())
	}
}

func TestResolvedIsTerminal(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	a, _, _ := m.Raise(ctx, estimatedRecord("m", 0.9), 1)
	if _, err := m.Resolve(ctx, a.ID, "bob", SourceAdmin); err != nil {
		t.Fatal(err)
	}

	attempts := []func() error{
		func() error { _, err := m.Acknowledge(ctx, a.ID, "x"); return err },
		func() error { _, err := m.Adjust(ctx, a.ID, "x", models.BaseCosts{}); return err },
		func() error { _, err := m.Resolve(ctx, a.ID, "x", SourceAdmin); return err },
	}
	for i, attempt := range attempts {
		if err := attempt(); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("attempt %d: expected ErrInvalidTransition, got %v", i, err)
		}
	}
	got, _ := m.Get(a.ID)
	if got.Status != models.AlertResolved {
		t.Errorf("alert left resolved state: %s", got.Status)
	}
}

func TestNewAlertAfterResolution(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	first, _, _ := m.Raise(ctx, estimatedRecord("m", 0.9), 1)
	if _, err := m.Acknowledge(ctx, first.ID, "x"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.ResolveForModel(ctx, "m", "sync", SourceVerifiedCost); err != nil {
		t.Fatal(err)
	}

	second, created, err := m.Raise(ctx, estimatedRecord("m", 0.3), 1)
	if err != nil {
		t.Fatal(err)
	}
	if !created || second.ID == first.ID || second.Severity != models.SeverityCritical {
		t.Errorf("expected new critical alert, got %+v", second)
	}
}

func TestResolveForModelIncludesAdjusted(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	a, _, _ := m.Raise(ctx, estimatedRecord("m", 0.6), 1)
	_, _ = m.Acknowledge(ctx, a.ID, "x")
	_, _ = m.Adjust(ctx, a.ID, "x", models.BaseCosts{InputPer1K: 0.001})
	b, _, _ := m.Raise(ctx, estimatedRecord("m", 0.6), 1)
	_, _, _ = m.Raise(ctx, estimatedRecord("other", 0.6), 1)

	resolved, err := m.ResolveForModel(ctx, "m", "sync", SourceVerifiedCost)
	if err != nil {
		t.Fatal(err)
	}
	if len(resolved) != 2 {
		t.Fatalf("expected 2 resolved, got %d", len(resolved))
	}
	for _, r := range resolved {
		if r.Resolution.Source != SourceVerifiedCost {
			t.Errorf("unexpected source %s", r.Resolution.Source)
		}
	}
	if got, _ := m.Get(b.ID); got.Status != models.AlertResolved {
		t.Errorf("expected %s resolved", b.ID)
	}
	if _, open := m.Open("other"); !open {
		t.Error("other model's alert must stay open")
	}
}

func TestAdjustRejectsMalformedCost(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	a, _, _ := m.Raise(ctx, estimatedRecord("m", 0.6), 1)
	_, _ = m.Acknowledge(ctx, a.ID, "x")
	if _, err := m.Adjust(ctx, a.ID, "x", models.BaseCosts{InputPer1K: -1}); !errors.Is(err, ErrInvalidAdjustment) {
		t.Errorf("expected ErrInvalidAdjustment, got %v", err)
	}
}

func TestUnknownAlert(t *testing.T) {
	m, _ := newTestManager(t)
	if _, err := m.Acknowledge(context.Background(), "nope", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentRaiseKeepsOneOpenAlert(t *testing.T) {
	m, events := newTestManager(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	var created atomic.Int64

	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			model := fmt.Sprintf("m%d", i%5)
			if _, ok, err := m.Raise(ctx, estimatedRecord(model, 0.7), 1); err == nil && ok {
				created.Add(1)
			}
			if a, ok := m.Open(model); ok && i%3 == 0 {
				_, _ = m.Acknowledge(ctx, a.ID, "x")
			}
		}()
	}
	wg.Wait()

	if created.Load() != 5 {
		t.Errorf("expected 5 alerts created, got %d", created.Load())
	}
	for i := range 5 {
		model := fmt.Sprintf("m%d", i)
		open := 0
		for _, a := range m.List(Filter{ModelID: model}) {
			if a.Status.Open() {
				open++
			}
		}
		if open != 1 {
			t.Errorf("%s: expected 1 open alert, got %d", model, open)
		}
	}
	if events.count() < 5 {
		t.Errorf("expected at least 5 events, got %d", events.count())
	}
}

func TestListFilterAndOrder(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	_, _, _ = m.Raise(ctx, estimatedRecord("a", 0.9), 1)
	m.now = func() time.Time { return testNow.Add(time.Minute) }
	b, _, _ := m.Raise(ctx, estimatedRecord("b", 0.9), 1)
	_, _ = m.Acknowledge(ctx, b.ID, "x")

	all := m.List(Filter{})
	if len(all) != 2 || all[0].ModelID != "b" {
		t.Errorf("expected newest first, got %+v", all)
	}
	pending := m.List(Filter{Status: models.AlertPending})
	if len(pending) != 1 || pending[0].ModelID != "a" {
		t.Errorf("unexpected pending list %+v", pending)
	}
}

func TestRestoreSupersedesDuplicateOpenAlerts(t *testing.T) {
	m, events := newTestManager(t)
	m.Restore([]models.EstimatedCostAlert{
		{ID: "old", ModelID: "m", Status: models.AlertPending, CreatedAt: testNow.Add(-time.Hour)},
		{ID: "new", ModelID: "m", Status: models.AlertAcknowledged, CreatedAt: testNow},
		{ID: "done", ModelID: "m", Status: models.AlertResolved, CreatedAt: testNow.Add(-2 * time.Hour)},
	})
	open, ok := m.Open("m")
	if !ok || open.ID != "new" {
		t.Errorf("expected newest alert open, got %+v", open)
	}
	old, _ := m.Get("old")
	if old.Status != models.AlertResolved {
		t.Errorf("expected superseded alert resolved, got %s", old.Status)
	}
	if events.count() != 0 {
		t.Error("restore must not emit events")
	}
}
