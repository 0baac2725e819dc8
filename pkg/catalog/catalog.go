// Package catalog holds per-model upstream cost records.
//
// Writes are serialized per model ID; reads never block on writers and always
// observe a fully formed record because stored records are replaced, never
// mutated in place.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pario-ai/pricer/pkg/keylock"
	"github.com/pario-ai/pricer/pkg/models"
)

// DefaultRejectionLogSize bounds the in-memory rejected-update log.
const DefaultRejectionLogSize = 1000

// Outcome describes what an accepted upsert did.
type Outcome string

const (
	Accepted  Outcome = "accepted"
	Unchanged Outcome = "unchanged"
)

// Observer is notified of catalog changes. Calls for one model ID are made
// while that model's writer lock is held, so they arrive in write order.
// Observers must not write back to the same model synchronously.
type Observer interface {
	RecordChanged(ctx context.Context, prev *models.ModelCostRecord, cur models.ModelCostRecord)
	UpdateRejected(ctx context.Context, rej models.RejectedUpdate)
}

// Catalog stores cost records keyed by model ID.
type Catalog struct {
	mu      sync.RWMutex
	records map[string]*models.ModelCostRecord
	writers keylock.Locker

	rejMu      sync.Mutex
	rejections []models.RejectedUpdate
	rejLimit   int

	observers []Observer
	logger    *slog.Logger
	now       func() time.Time
}

// New creates an empty Catalog.
func New(logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		records:  make(map[string]*models.ModelCostRecord),
		rejLimit: DefaultRejectionLogSize,
		logger:   logger.With("component", "catalog"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// AddObserver registers o. It must be called before the catalog is shared.
func (c *Catalog) AddObserver(o Observer) {
	c.observers = append(c.observers, o)
}

// Get returns a copy of the record for modelID.
func (c *Catalog) Get(modelID string) (models.ModelCostRecord, error) {
	c.mu.RLock()
	rec, ok := c.records[modelID]
	c.mu.RUnlock()
	if !ok {
		return models.ModelCostRecord{}, fmt.Errorf("%w: %s", ErrNotFound, modelID)
	}
	return rec.Clone(), nil
}

// List returns copies of every record ordered by model ID.
func (c *Catalog) List() []models.ModelCostRecord {
	c.mu.RLock()
	out := make([]models.ModelCostRecord, 0, len(c.records))
	for _, rec := range c.records {
		out = append(out, rec.Clone())
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ModelID < out[j].ModelID })
	return out
}

// Upsert validates rec and stores it. A malformed record is rejected with a
// DataIntegrityError, logged for admin review, and the previous record is
// kept. Reapplying an identical record returns Unchanged without notifying
// observers.
func (c *Catalog) Upsert(ctx context.Context, rec models.ModelCostRecord) (Outcome, error) {
	unlock := c.writers.Lock(rec.ModelID)
	defer unlock()
	return c.upsertLocked(ctx, rec)
}

func (c *Catalog) upsertLocked(ctx context.Context, rec models.ModelCostRecord) (Outcome, error) {
	if err := Validate(rec); err != nil {
		c.reject(ctx, rec, err)
		return "", err
	}

	next := rec.Clone()
	c.mu.RLock()
	prev := c.records[rec.ModelID]
	c.mu.RUnlock()

	if prev != nil {
		if next.Provenance.LastUpdatedAt.IsZero() {
			next.Provenance.LastUpdatedAt = prev.Provenance.LastUpdatedAt
		}
		if next.Provenance.LastVerifiedAt.IsZero() && !next.IsEstimated() {
			next.Provenance.LastVerifiedAt = prev.Provenance.LastVerifiedAt
		}
		if sameRecord(*prev, next) {
			return Unchanged, nil
		}
	}

	prov := &next.Provenance
	if prov.LastUpdatedAt.IsZero() || prev != nil && prov.LastUpdatedAt.Equal(prev.Provenance.LastUpdatedAt) {
		prov.LastUpdatedAt = c.now()
	}
	if !next.IsEstimated() {
		verifiedNow := prev != nil && prev.IsEstimated() && prov.LastVerifiedAt.Equal(prev.Provenance.LastVerifiedAt)
		if prov.LastVerifiedAt.IsZero() || verifiedNow {
			prov.LastVerifiedAt = prov.LastUpdatedAt
		}
	}

	stored := next
	c.mu.Lock()
	c.records[rec.ModelID] = &stored
	c.mu.Unlock()

	c.logger.Debug("cost record stored",
		"model", rec.ModelID,
		"provider", rec.ProviderID,
		"estimated", next.IsEstimated(),
	)

	var prevCopy *models.ModelCostRecord
	if prev != nil {
		p := prev.Clone()
		prevCopy = &p
	}
	for _, o := range c.observers {
		o.RecordChanged(ctx, prevCopy, next.Clone())
	}
	return Accepted, nil
}

// Restore loads persisted records without notifying observers. Invalid
// records are skipped and counted.
func (c *Catalog) Restore(recs []models.ModelCostRecord) (skipped int) {
	for _, rec := range recs {
		if err := Validate(rec); err != nil {
			c.logger.Warn("skipping invalid persisted record", "model", rec.ModelID, "error", err)
			skipped++
			continue
		}
		stored := rec.Clone()
		c.mu.Lock()
		c.records[rec.ModelID] = &stored
		c.mu.Unlock()
	}
	return skipped
}

// EstimateFromSimilar estimates target's costs from verified catalog records
// of similar models and upserts the result. Similar models that are missing
// or themselves estimated are skipped.
func (c *Catalog) EstimateFromSimilar(ctx context.Context, target models.ModelCostRecord, reason models.EstimationReason, similar []SimilarModel) (models.ModelCostRecord, Outcome, error) {
	candidates := make([]Candidate, 0, len(similar))
	for _, s := range similar {
		if s.ModelID == target.ModelID {
			continue
		}
		rec, err := c.Get(s.ModelID)
		if err != nil {
			c.logger.Debug("similar model not in catalog", "model", target.ModelID, "similar", s.ModelID)
			continue
		}
		candidates = append(candidates, Candidate{Record: rec, Similarity: s.Similarity})
	}

	unlock := c.writers.Lock(target.ModelID)
	defer unlock()

	base := target
	c.mu.RLock()
	if prev, ok := c.records[target.ModelID]; ok && target.BaseCosts == (models.BaseCosts{}) {
		// keep the last known costs if nothing can be estimated
		base.BaseCosts = prev.BaseCosts
		base.Special = prev.Special
	}
	c.mu.RUnlock()

	est := Estimate(base, reason, candidates)
	if est.Estimation.CannotEstimate() {
		c.logger.Warn("no similar models available to estimate cost", "model", target.ModelID, "reason", reason)
	}
	outcome, err := c.upsertLocked(ctx, est)
	return est, outcome, err
}

// MarkResyncDue sets a record's next sync deadline to now so the sync job
// picks it up on its next sweep.
func (c *Catalog) MarkResyncDue(ctx context.Context, modelID string) error {
	unlock := c.writers.Lock(modelID)
	defer unlock()

	c.mu.RLock()
	prev, ok := c.records[modelID]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, modelID)
	}
	next := prev.Clone()
	next.Provenance.NextSyncDueAt = c.now()
	_, err := c.upsertLocked(ctx, next)
	return err
}

// DueForSync returns records whose next sync deadline has passed at now.
func (c *Catalog) DueForSync(now time.Time) []models.ModelCostRecord {
	var due []models.ModelCostRecord
	for _, rec := range c.List() {
		if at := rec.Provenance.NextSyncDueAt; !at.IsZero() && !at.After(now) {
			due = append(due, rec)
		}
	}
	return due
}

// Rejections returns the most recent rejected updates, oldest first.
func (c *Catalog) Rejections() []models.RejectedUpdate {
	c.rejMu.Lock()
	defer c.rejMu.Unlock()
	return append([]models.RejectedUpdate(nil), c.rejections...)
}

func (c *Catalog) reject(ctx context.Context, rec models.ModelCostRecord, err error) {
	rej := models.RejectedUpdate{
		ModelID:    rec.ModelID,
		ProviderID: rec.ProviderID,
		Reason:     err.Error(),
		Payload:    fmt.Sprintf("base=%+v special=%+v", rec.BaseCosts, rec.Special),
		RejectedAt: c.now(),
	}
	var die *DataIntegrityError
	if errors.As(err, &die) {
		rej.Field = die.Field
	}

	c.rejMu.Lock()
	c.rejections = append(c.rejections, rej)
	if over := len(c.rejections) - c.rejLimit; over > 0 {
		c.rejections = append([]models.RejectedUpdate(nil), c.rejections[over:]...)
	}
	c.rejMu.Unlock()

	c.logger.Warn("cost update rejected",
		"model", rec.ModelID,
		"provider", rec.ProviderID,
		"field", rej.Field,
		"error", err,
	)
	for _, o := range c.observers {
		o.UpdateRejected(ctx, rej)
	}
}

// sameRecord compares records by their serialized form so time values that
// round-tripped through storage compare equal.
func sameRecord(a, b models.ModelCostRecord) bool {
	ab, err1 := json.Marshal(a)
	bb, err2 := json.Marshal(b)
	return err1 == nil && err2 == nil && bytes.Equal(ab, bb)
}
