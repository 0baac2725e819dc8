package markup

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pario-ai/pricer/pkg/models"
)

// Store holds the live markup configuration. Readers get an immutable snapshot
// without locking; writers copy, modify and swap.
type Store struct {
	current atomic.Pointer[models.MarkupConfig]
	mu      sync.Mutex
	now     func() time.Time
}

// NewStore validates cfg and returns a Store serving it.
func NewStore(cfg models.MarkupConfig) (*Store, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	s := &Store{now: func() time.Time { return time.Now().UTC() }}
	snap := cfg.Clone()
	s.current.Store(&snap)
	return s, nil
}

// Snapshot returns the current configuration. Callers must not mutate its maps.
func (s *Store) Snapshot() models.MarkupConfig {
	return *s.current.Load()
}

// Resolve resolves markup against the current snapshot.
func (s *Store) Resolve(modelID, providerID string, isExternal bool) models.ResolvedMarkup {
	return Resolve(modelID, providerID, isExternal, s.Snapshot(), s.now())
}

// Replace swaps in a whole new configuration, e.g. after a config reload.
func (s *Store) Replace(cfg models.MarkupConfig) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := cfg.Clone()
	s.current.Store(&snap)
	return nil
}

// SetDefaults updates the default markups.
func (s *Store) SetDefaults(d models.MarkupDefaults) error {
	if err := ValidatePercent("default", "external", d.ExternalPercent); err != nil {
		return err
	}
	if err := ValidatePercent("default", "self_hosted", d.SelfHostedPercent); err != nil {
		return err
	}
	s.update(func(c *models.MarkupConfig) { c.Defaults = d })
	return nil
}

// SetModelOverride installs a model-level override. A nil expiresAt never expires.
func (s *Store) SetModelOverride(modelID string, percent float64, setBy, reason string, expiresAt *time.Time) (models.ModelMarkupOverride, error) {
	if err := ValidatePercent("model", modelID, percent); err != nil {
		return models.ModelMarkupOverride{}, err
	}
	o := models.ModelMarkupOverride{
		Percent:   percent,
		SetBy:     setBy,
		SetAt:     s.now(),
		Reason:    reason,
		ExpiresAt: expiresAt,
	}
	s.update(func(c *models.MarkupConfig) { c.ModelOverrides[modelID] = o })
	return o, nil
}

// ClearModelOverride removes a model-level override. It reports whether one existed.
func (s *Store) ClearModelOverride(modelID string) bool {
	var existed bool
	s.update(func(c *models.MarkupConfig) {
		_, existed = c.ModelOverrides[modelID]
		delete(c.ModelOverrides, modelID)
	})
	return existed
}

// SetProviderOverride installs a provider-level override.
func (s *Store) SetProviderOverride(providerID string, percent float64, setBy, reason string) (models.ProviderMarkupOverride, error) {
	if err := ValidatePercent("provider", providerID, percent); err != nil {
		return models.ProviderMarkupOverride{}, err
	}
	o := models.ProviderMarkupOverride{
		Percent: percent,
		SetBy:   setBy,
		SetAt:   s.now(),
		Reason:  reason,
	}
	s.update(func(c *models.MarkupConfig) { c.ProviderOverrides[providerID] = o })
	return o, nil
}

// ClearProviderOverride removes a provider-level override. It reports whether one existed.
func (s *Store) ClearProviderOverride(providerID string) bool {
	var existed bool
	s.update(func(c *models.MarkupConfig) {
		_, existed = c.ProviderOverrides[providerID]
		delete(c.ProviderOverrides, providerID)
	})
	return existed
}

func (s *Store) update(fn func(*models.MarkupConfig)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.current.Load().Clone()
	fn(&next)
	s.current.Store(&next)
}
