package markup

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/pario-ai/pricer/pkg/models"
)

// ErrConfiguration is matched by every ConfigurationError.
var ErrConfiguration = errors.New("invalid markup configuration")

// ConfigurationError reports a markup rule that cannot be applied.
type ConfigurationError struct {
	Scope   string // "default", "provider" or "model"
	Key     string
	Percent float64
}

func (e *ConfigurationError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("invalid %s markup %v%%: must be a finite value >= 0", e.Scope, e.Percent)
	}
	return fmt.Sprintf("invalid %s markup for %q %v%%: must be a finite value >= 0", e.Scope, e.Key, e.Percent)
}

// Is implements error matching for errors.Is().
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// Resolve returns the markup for a model. A model override that has not
// expired wins, then a provider override, then the default for the hosting
// kind. Exactly one rule applies.
func Resolve(modelID, providerID string, isExternal bool, cfg models.MarkupConfig, now time.Time) models.ResolvedMarkup {
	if o, ok := cfg.ModelOverrides[modelID]; ok && o.Active(now) {
		return models.ResolvedMarkup{Percent: o.Percent, Source: models.MarkupFromModel}
	}
	if o, ok := cfg.ProviderOverrides[providerID]; ok {
		return models.ResolvedMarkup{Percent: o.Percent, Source: models.MarkupFromProvider}
	}
	if isExternal {
		return models.ResolvedMarkup{Percent: cfg.Defaults.ExternalPercent, Source: models.MarkupFromDefault}
	}
	return models.ResolvedMarkup{Percent: cfg.Defaults.SelfHostedPercent, Source: models.MarkupFromDefault}
}

// ValidatePercent returns a ConfigurationError for negative or non-finite markups.
func ValidatePercent(scope, key string, percent float64) error {
	if percent < 0 || math.IsNaN(percent) || math.IsInf(percent, 0) {
		return &ConfigurationError{Scope: scope, Key: key, Percent: percent}
	}
	return nil
}

// Validate checks every rule in cfg.
func Validate(cfg models.MarkupConfig) error {
	if err := ValidatePercent("default", "external", cfg.Defaults.ExternalPercent); err != nil {
		return err
	}
	if err := ValidatePercent("default", "self_hosted", cfg.Defaults.SelfHostedPercent); err != nil {
		return err
	}
	for id, o := range cfg.ProviderOverrides {
		if err := ValidatePercent("provider", id, o.Percent); err != nil {
			return err
		}
	}
	for id, o := range cfg.ModelOverrides {
		if err := ValidatePercent("model", id, o.Percent); err != nil {
			return err
		}
	}
	return nil
}
