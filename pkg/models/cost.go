package models

import "time"

// CostType describes the unit a model is billed in upstream.
type CostType string

const (
	CostPerToken   CostType = "per_token"
	CostPerRequest CostType = "per_request"
	CostPerSecond  CostType = "per_second"
	CostPerImage   CostType = "per_image"
	CostPerMinute  CostType = "per_minute"
)

// BaseCosts holds upstream rates per 1K input/output units.
type BaseCosts struct {
	InputPer1K  float64 `json:"input_per_1k" yaml:"input_per_1k"`
	OutputPer1K float64 `json:"output_per_1k" yaml:"output_per_1k"`
}

// CachingCost describes prompt-cache pricing. A zero CachedInputPer1K with a
// non-zero DiscountPercent means the cached rate is derived from the input rate.
type CachingCost struct {
	Supported        bool          `json:"supported" yaml:"supported"`
	CachedInputPer1K float64       `json:"cached_input_per_1k" yaml:"cached_input_per_1k"`
	DiscountPercent  float64       `json:"discount_percent" yaml:"discount_percent"`
	MinTokens        int64         `json:"min_tokens" yaml:"min_tokens"`
	TTL              time.Duration `json:"ttl" yaml:"ttl"`
}

// BatchCost describes asynchronous batch pricing.
type BatchCost struct {
	Supported       bool      `json:"supported" yaml:"supported"`
	BatchRates      BaseCosts `json:"batch_rates" yaml:"batch_rates"`
	DiscountPercent float64   `json:"discount_percent" yaml:"discount_percent"`
	MaxLatencyHours int       `json:"max_latency_hours" yaml:"max_latency_hours"`
}

// LongContextCost replaces the base rates once input exceeds ThresholdTokens.
type LongContextCost struct {
	ThresholdTokens int64   `json:"threshold_tokens" yaml:"threshold_tokens"`
	InputPer1K      float64 `json:"input_per_1k" yaml:"input_per_1k"`
	OutputPer1K     float64 `json:"output_per_1k" yaml:"output_per_1k"`
}

// SpecialCosts are flat per-unit charges outside token pricing.
type SpecialCosts struct {
	PerRequest  float64 `json:"per_request" yaml:"per_request"`
	PerSecond   float64 `json:"per_second" yaml:"per_second"`
	PerImage    float64 `json:"per_image" yaml:"per_image"`
	PerMinute   float64 `json:"per_minute" yaml:"per_minute"`
	PerSearch   float64 `json:"per_search" yaml:"per_search"`
	PerToolCall float64 `json:"per_tool_call" yaml:"per_tool_call"`
}

// Provenance records where a cost came from and when it must be re-synced.
type Provenance struct {
	Source         string    `json:"source" yaml:"source"`
	LastVerifiedAt time.Time `json:"last_verified_at" yaml:"last_verified_at"`
	LastUpdatedAt  time.Time `json:"last_updated_at" yaml:"last_updated_at"`
	NextSyncDueAt  time.Time `json:"next_sync_due_at" yaml:"next_sync_due_at"`
}

// EstimationReason explains why a cost had to be estimated. These codes are
// internal and never leave admin-facing structures.
type EstimationReason string

const (
	ReasonNewModel          EstimationReason = "new_model"
	ReasonProviderNoPricing EstimationReason = "provider_no_pricing"
	ReasonPricingChanged    EstimationReason = "pricing_changed"
	ReasonSyncFailed        EstimationReason = "sync_failed"
	ReasonCannotEstimate    EstimationReason = "cannot_estimate"
)

// EstimationMethod names the algorithm that produced an estimate.
type EstimationMethod string

const (
	MethodWeightedSimilarity EstimationMethod = "weighted_similarity"
	MethodNone               EstimationMethod = "none"
)

// SourceModel is one verified model that contributed to an estimate.
type SourceModel struct {
	ModelID         string    `json:"model_id" yaml:"model_id"`
	Cost            BaseCosts `json:"cost" yaml:"cost"`
	SimilarityScore float64   `json:"similarity_score" yaml:"similarity_score"`
	Weight          float64   `json:"weight" yaml:"weight"`
}

// Estimation is present only on estimated records. Its absence means the cost
// is verified.
type Estimation struct {
	Reason           EstimationReason `json:"reason" yaml:"reason"`
	Confidence       float64          `json:"confidence" yaml:"confidence"`
	SourceModels     []SourceModel    `json:"source_models,omitempty" yaml:"source_models,omitempty"`
	Method           EstimationMethod `json:"method" yaml:"method"`
	AwaitingRealCost bool             `json:"awaiting_real_cost" yaml:"awaiting_real_cost"`
}

// CannotEstimate reports whether the estimate carries no usable cost.
func (e *Estimation) CannotEstimate() bool {
	return e != nil && len(e.SourceModels) == 0 && e.Confidence == 0
}

// ModelCostRecord is the catalog entry for one model's upstream costs.
type ModelCostRecord struct {
	ModelID     string           `json:"model_id" yaml:"model_id"`
	ProviderID  string           `json:"provider_id" yaml:"provider_id"`
	SelfHosted  bool             `json:"self_hosted" yaml:"self_hosted"`
	CostType    CostType         `json:"cost_type" yaml:"cost_type"`
	BaseCosts   BaseCosts        `json:"base_costs" yaml:"base_costs"`
	CachingCost CachingCost      `json:"caching_cost" yaml:"caching_cost"`
	BatchCost   BatchCost        `json:"batch_cost" yaml:"batch_cost"`
	LongContext *LongContextCost `json:"long_context_cost,omitempty" yaml:"long_context_cost,omitempty"`
	Special     SpecialCosts     `json:"special_costs" yaml:"special_costs"`
	Provenance  Provenance       `json:"provenance" yaml:"provenance"`
	Estimation  *Estimation      `json:"estimation,omitempty" yaml:"estimation,omitempty"`
}

// IsEstimated reports whether the record's cost was inferred rather than verified.
func (r *ModelCostRecord) IsEstimated() bool {
	return r.Estimation != nil
}

// IsExternal reports whether the model is served by a third-party provider.
func (r *ModelCostRecord) IsExternal() bool {
	return !r.SelfHosted
}

// IsStale reports whether the record is past its next sync deadline.
func (r *ModelCostRecord) IsStale(now time.Time) bool {
	due := r.Provenance.NextSyncDueAt
	return !due.IsZero() && now.After(due)
}

// Clone returns a deep copy so callers never share mutable slices or pointers
// with the catalog.
func (r ModelCostRecord) Clone() ModelCostRecord {
	if r.LongContext != nil {
		lc := *r.LongContext
		r.LongContext = &lc
	}
	if r.Estimation != nil {
		est := *r.Estimation
		if est.SourceModels != nil {
			est.SourceModels = append([]SourceModel(nil), est.SourceModels...)
		}
		r.Estimation = &est
	}
	return r
}
