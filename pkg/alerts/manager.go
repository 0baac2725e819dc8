// Package alerts tracks estimated-cost alerts through their review lifecycle:
//
//	pending -> acknowledged -> adjusted -> resolved
//	pending -> resolved
//	acknowledged -> resolved
//
// resolved is terminal. At most one pending or acknowledged alert exists per
// model at any time.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pario-ai/pricer/pkg/keylock"
	"github.com/pario-ai/pricer/pkg/models"
)

var (
	// ErrNotFound is returned for unknown alert IDs.
	ErrNotFound = errors.New("alert not found")

	// ErrInvalidTransition is returned when a status change is not allowed.
	ErrInvalidTransition = errors.New("invalid alert transition")

	// ErrNotEstimated is returned when raising an alert for a verified record.
	ErrNotEstimated = errors.New("record is not estimated")

	// ErrInvalidAdjustment is returned when a replacement cost is malformed.
	ErrInvalidAdjustment = errors.New("invalid replacement cost")
)

// Resolution sources recorded on resolved alerts.
const (
	SourceAdmin        = "admin"
	SourceVerifiedCost = "verified_cost"
)

var transitions = map[models.AlertStatus][]models.AlertStatus{
	models.AlertPending:      {models.AlertAcknowledged, models.AlertResolved},
	models.AlertAcknowledged: {models.AlertAdjusted, models.AlertResolved},
	models.AlertAdjusted:     {models.AlertResolved},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to models.AlertStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SeverityFor maps estimation confidence onto a severity:
// above 0.8 is info, 0.5 to 0.8 is warning, below 0.5 is critical.
func SeverityFor(confidence float64) models.AlertSeverity {
	switch {
	case confidence > 0.8:
		return models.SeverityInfo
	case confidence >= 0.5:
		return models.SeverityWarning
	default:
		return models.SeverityCritical
	}
}

// EventType names an alert lifecycle event.
type EventType string

const (
	EventCreated      EventType = "created"
	EventTransitioned EventType = "transitioned"
)

// Event is delivered to notifiers after every state change.
type Event struct {
	Type  EventType                 `json:"type"`
	From  models.AlertStatus        `json:"from,omitempty"`
	Alert models.EstimatedCostAlert `json:"alert"`
}

// Notifier receives alert events. Delivery and retry are the notifier's
// responsibility; Notify must not block for long.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// Manager owns alert state.
type Manager struct {
	mu     sync.RWMutex
	byID   map[string]*models.EstimatedCostAlert
	open   map[string]string // model ID -> open alert ID
	models keylock.Locker

	notifiers []Notifier
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// NewManager creates an empty Manager.
func NewManager(logger *slog.Logger, notifiers ...Notifier) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		byID:      make(map[string]*models.EstimatedCostAlert),
		open:      make(map[string]string),
		notifiers: notifiers,
		logger:    logger.With("component", "alerts"),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     func() string { return uuid.New().String() },
	}
}

// AddNotifier registers n. It must be called before the manager is shared.
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Raise creates a pending alert for an estimated record. If the model already
// has an open alert it is returned with created=false and nothing changes.
func (m *Manager) Raise(ctx context.Context, rec models.ModelCostRecord, affectedPrice float64) (models.EstimatedCostAlert, bool, error) {
	if !rec.IsEstimated() {
		return models.EstimatedCostAlert{}, false, fmt.Errorf("%w: %s", ErrNotEstimated, rec.ModelID)
	}

	unlock := m.models.Lock(rec.ModelID)
	defer unlock()

	if existing, ok := m.openFor(rec.ModelID); ok {
		m.logger.Debug("duplicate alert suppressed", "model", rec.ModelID, "alert", existing.ID)
		return existing, false, nil
	}

	est := rec.Estimation
	now := m.now()
	a := models.EstimatedCostAlert{
		ID:            m.newID(),
		CreatedAt:     now,
		UpdatedAt:     now,
		Severity:      SeverityFor(est.Confidence),
		ModelID:       rec.ModelID,
		ProviderID:    rec.ProviderID,
		Reason:        est.Reason,
		EstimatedCost: rec.BaseCosts,
		Confidence:    est.Confidence,
		SourceModels:  append([]models.SourceModel(nil), est.SourceModels...),
		AffectedPrice: affectedPrice,
		Status:        models.AlertPending,
	}

	m.mu.Lock()
	stored := a
	m.byID[a.ID] = &stored
	m.open[a.ModelID] = a.ID
	m.mu.Unlock()

	m.logger.Info("estimated cost alert raised",
		"alert", a.ID,
		"model", a.ModelID,
		"severity", a.Severity,
		"confidence", a.Confidence,
	)
	m.emit(ctx, Event{Type: EventCreated, Alert: a.Clone()})
	return a.Clone(), true, nil
}

// Acknowledge moves a pending alert to acknowledged.
func (m *Manager) Acknowledge(ctx context.Context, id, by string) (models.EstimatedCostAlert, error) {
	return m.transition(ctx, id, models.AlertAcknowledged, func(a *models.EstimatedCostAlert) {
		a.AcknowledgedBy = by
	})
}

// Adjust records an admin-supplied replacement cost on an acknowledged alert.
func (m *Manager) Adjust(ctx context.Context, id, by string, cost models.BaseCosts) (models.EstimatedCostAlert, error) {
	if err := validCost(cost); err != nil {
		return models.EstimatedCostAlert{}, err
	}
	return m.transition(ctx, id, models.AlertAdjusted, func(a *models.EstimatedCostAlert) {
		c := cost
		a.AdjustedCost = &c
		if a.AcknowledgedBy == "" {
			a.AcknowledgedBy = by
		}
	})
}

// Resolve closes an alert.
func (m *Manager) Resolve(ctx context.Context, id, by, source string) (models.EstimatedCostAlert, error) {
	if source == "" {
		source = SourceAdmin
	}
	return m.transition(ctx, id, models.AlertResolved, func(a *models.EstimatedCostAlert) {
		a.Resolution = &models.AlertResolution{By: by, At: m.now(), Source: source}
	})
}

// ResolveForModel resolves every unresolved alert for a model, typically
// because a verified cost arrived. It returns the alerts it resolved.
func (m *Manager) ResolveForModel(ctx context.Context, modelID, by, source string) ([]models.EstimatedCostAlert, error) {
	m.mu.RLock()
	var ids []string
	for id, a := range m.byID {
		if a.ModelID == modelID && a.Status != models.AlertResolved {
			ids = append(ids, id)
		}
	}
	m.mu.RUnlock()
	sort.Strings(ids)

	var resolved []models.EstimatedCostAlert
	for _, id := range ids {
		a, err := m.Resolve(ctx, id, by, source)
		if errors.Is(err, ErrInvalidTransition) {
			// resolved concurrently
			continue
		}
		if err != nil {
			return resolved, err
		}
		resolved = append(resolved, a)
	}
	return resolved, nil
}

// Get returns the alert with id.
func (m *Manager) Get(id string) (models.EstimatedCostAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.byID[id]
	if !ok {
		return models.EstimatedCostAlert{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return a.Clone(), nil
}

// Open returns the open alert for a model, if any.
func (m *Manager) Open(modelID string) (models.EstimatedCostAlert, bool) {
	return m.openFor(modelID)
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	ModelID string
	Status  models.AlertStatus
}

// List returns alerts matching f, newest first.
func (m *Manager) List(f Filter) []models.EstimatedCostAlert {
	m.mu.RLock()
	out := make([]models.EstimatedCostAlert, 0, len(m.byID))
	for _, a := range m.byID {
		if f.ModelID != "" && a.ModelID != f.ModelID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, a.Clone())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Restore loads persisted alerts without emitting events. When persisted state
// holds several open alerts for one model, the newest stays open and the rest
// are resolved as superseded.
func (m *Manager) Restore(alerts []models.EstimatedCostAlert) {
	sorted := append([]models.EstimatedCostAlert(nil), alerts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CreatedAt.Before(sorted[j].CreatedAt) })

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range sorted {
		stored := a.Clone()
		if stored.Status.Open() {
			if prevID, ok := m.open[stored.ModelID]; ok {
				prev := m.byID[prevID]
				prev.Status = models.AlertResolved
				prev.Resolution = &models.AlertResolution{By: "system", At: m.now(), Source: "superseded"}
			}
			m.open[stored.ModelID] = stored.ID
		}
		m.byID[stored.ID] = &stored
	}
}

func (m *Manager) transition(ctx context.Context, id string, to models.AlertStatus, apply func(*models.EstimatedCostAlert)) (models.EstimatedCostAlert, error) {
	current, err := m.Get(id)
	if err != nil {
		return models.EstimatedCostAlert{}, err
	}

	unlock := m.models.Lock(current.ModelID)
	defer unlock()

	// re-read under the model lock
	current, err = m.Get(id)
	if err != nil {
		return models.EstimatedCostAlert{}, err
	}
	from := current.Status
	if !CanTransition(from, to) {
		return models.EstimatedCostAlert{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	next := current.Clone()
	apply(&next)
	next.Status = to
	next.UpdatedAt = m.now()

	m.mu.Lock()
	m.byID[id] = &next
	if !to.Open() && m.open[next.ModelID] == id {
		delete(m.open, next.ModelID)
	}
	m.mu.Unlock()

	m.logger.Info("alert transitioned", "alert", id, "model", next.ModelID, "from", from, "to", to)
	m.emit(ctx, Event{Type: EventTransitioned, From: from, Alert: next.Clone()})
	return next.Clone(), nil
}

func (m *Manager) openFor(modelID string) (models.EstimatedCostAlert, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.open[modelID]
	if !ok {
		return models.EstimatedCostAlert{}, false
	}
	return m.byID[id].Clone(), true
}

func (m *Manager) emit(ctx context.Context, ev Event) {
	for _, n := range m.notifiers {
		n.Notify(ctx, ev)
	}
}

func validCost(c models.BaseCosts) error {
	for _, v := range []float64{c.InputPer1K, c.OutputPer1K} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %+v", ErrInvalidAdjustment, c)
		}
	}
	return nil
}
