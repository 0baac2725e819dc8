package optimizer

import "github.com/pario-ai/pricer/pkg/models"

// Strategy controls how eligible candidates are ranked.
type Strategy string

const (
	// StrategyMinimize ranks by ascending total price.
	StrategyMinimize Strategy = "minimize"

	// StrategyBalance ranks by descending quality per unit of price.
	StrategyBalance Strategy = "balance"

	// StrategyIgnore keeps the caller's order.
	StrategyIgnore Strategy = "ignore"
)

// Candidate is a priced model offered to the optimizer.
type Candidate struct {
	ModelID      string                `json:"model_id" yaml:"model_id"`
	ProviderID   string                `json:"provider_id" yaml:"provider_id"`
	Capabilities []string              `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	Available    bool                  `json:"available" yaml:"available"`
	QualityScore float64               `json:"quality_score" yaml:"quality_score"`
	Estimated    bool                  `json:"estimated" yaml:"estimated"`
	Price        models.PriceBreakdown `json:"price" yaml:"price"`

	// WarmupSeconds is the expected cold-start delay, zero when warm.
	WarmupSeconds float64 `json:"warmup_seconds,omitempty" yaml:"warmup_seconds,omitempty"`
}

// Request describes the caller's constraints.
type Request struct {
	RequiredCapabilities []string `json:"required_capabilities,omitempty" yaml:"required_capabilities,omitempty"`
	AllowEstimated       bool     `json:"allow_estimated" yaml:"allow_estimated"`
	MinQualityScore      float64  `json:"min_quality_score" yaml:"min_quality_score"`

	// MaxPricePerRequest of zero means no budget.
	MaxPricePerRequest    float64  `json:"max_price_per_request,omitempty" yaml:"max_price_per_request,omitempty"`
	Strategy              Strategy `json:"strategy" yaml:"strategy"`
	ExpectedMonthlyVolume int64    `json:"expected_monthly_volume,omitempty" yaml:"expected_monthly_volume,omitempty"`
}

// Options holds the warning thresholds.
type Options struct {
	NearBudgetPercent       float64 `json:"near_budget_percent" yaml:"near_budget_percent"`
	LowMarginPercent        float64 `json:"low_margin_percent" yaml:"low_margin_percent"`
	VolumeDiscountThreshold int64   `json:"volume_discount_threshold" yaml:"volume_discount_threshold"`
}

// DefaultOptions returns the standard thresholds.
func DefaultOptions() Options {
	return Options{
		NearBudgetPercent:       80,
		LowMarginPercent:        20,
		VolumeDiscountThreshold: 100000,
	}
}

// Stage names a filter in the eligibility pipeline.
type Stage string

const (
	StageCapability   Stage = "capability"
	StageAvailability Stage = "availability"
	StageEstimated    Stage = "estimated_price"
	StageQuality      Stage = "quality"
	StageBudget       Stage = "budget"
)

// StageResult records how many candidates entered and left a stage.
type StageResult struct {
	Stage  Stage `json:"stage"`
	Before int   `json:"before"`
	After  int   `json:"after"`
}

// ClientWarning is safe to show to the customer.
type ClientWarning struct {
	Code    string `json:"code"`
	ModelID string `json:"model_id"`
	Message string `json:"message"`
}

// AdminWarning is for operators only and may reference cost and margin.
type AdminWarning struct {
	Code    string `json:"code"`
	ModelID string `json:"model_id"`
	Message string `json:"message"`
}

// Client warning codes.
const (
	WarnEstimatedPrice = "estimated_price"
	WarnWarmupDelay    = "warmup_delay"
	WarnNearBudget     = "near_budget"
)

// Admin warning codes.
const (
	WarnLowMargin      = "low_margin"
	WarnEstimatedCost  = "estimated_cost"
	WarnVolumeDiscount = "volume_discount"
)

// Decision is the optimizer's result. It carries admin data and must be
// projected before being shown to a customer.
type Decision struct {
	Selected       Candidate       `json:"selected"`
	Rationale      string          `json:"rationale"`
	Strategy       Strategy        `json:"strategy"`
	Ranked         []Candidate     `json:"ranked"`
	Stages         []StageResult   `json:"stages"`
	ClientWarnings []ClientWarning `json:"client_warnings,omitempty"`
	AdminWarnings  []AdminWarning  `json:"admin_warnings,omitempty"`
}
