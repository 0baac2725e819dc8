package models

import "time"

// MarkupDefaults are the fallback markups when no override applies.
type MarkupDefaults struct {
	ExternalPercent   float64 `json:"external_percent" yaml:"external_percent"`
	SelfHostedPercent float64 `json:"self_hosted_percent" yaml:"self_hosted_percent"`
}

// ProviderMarkupOverride replaces the default markup for every model of a provider.
type ProviderMarkupOverride struct {
	Percent float64   `json:"percent" yaml:"percent"`
	SetBy   string    `json:"set_by" yaml:"set_by"`
	SetAt   time.Time `json:"set_at" yaml:"set_at"`
	Reason  string    `json:"reason" yaml:"reason"`
}

// ModelMarkupOverride replaces every other markup rule for one model until it expires.
type ModelMarkupOverride struct {
	Percent   float64    `json:"percent" yaml:"percent"`
	SetBy     string     `json:"set_by" yaml:"set_by"`
	SetAt     time.Time  `json:"set_at" yaml:"set_at"`
	Reason    string     `json:"reason" yaml:"reason"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

// Active reports whether the override still applies at now.
func (o ModelMarkupOverride) Active(now time.Time) bool {
	return o.ExpiresAt == nil || o.ExpiresAt.After(now)
}

// MarkupConfig is an immutable snapshot of markup rules.
type MarkupConfig struct {
	Defaults          MarkupDefaults                    `json:"defaults" yaml:"defaults"`
	ProviderOverrides map[string]ProviderMarkupOverride `json:"provider_overrides,omitempty" yaml:"provider_overrides,omitempty"`
	ModelOverrides    map[string]ModelMarkupOverride    `json:"model_overrides,omitempty" yaml:"model_overrides,omitempty"`
}

// Clone returns a copy whose maps can be mutated independently.
func (c MarkupConfig) Clone() MarkupConfig {
	out := MarkupConfig{
		Defaults:          c.Defaults,
		ProviderOverrides: make(map[string]ProviderMarkupOverride, len(c.ProviderOverrides)),
		ModelOverrides:    make(map[string]ModelMarkupOverride, len(c.ModelOverrides)),
	}
	for k, v := range c.ProviderOverrides {
		out.ProviderOverrides[k] = v
	}
	for k, v := range c.ModelOverrides {
		if v.ExpiresAt != nil {
			exp := *v.ExpiresAt
			v.ExpiresAt = &exp
		}
		out.ModelOverrides[k] = v
	}
	return out
}

// MarkupSource names which rule produced a resolved markup.
type MarkupSource string

const (
	MarkupFromModel    MarkupSource = "model"
	MarkupFromProvider MarkupSource = "provider"
	MarkupFromDefault  MarkupSource = "default"
)

// ResolvedMarkup is the outcome of markup resolution.
type ResolvedMarkup struct {
	Percent float64      `json:"percent"`
	Source  MarkupSource `json:"source"`
}
