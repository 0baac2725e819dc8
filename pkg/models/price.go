package models

// PriceRequest describes the shape of one request to be priced.
type PriceRequest struct {
	InputTokens      int64   `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens     int64   `json:"output_tokens" yaml:"output_tokens"`
	CanUseCaching    bool    `json:"can_use_caching" yaml:"can_use_caching"`
	CachedTokenCount int64   `json:"cached_token_count" yaml:"cached_token_count"`
	CanUseBatch      bool    `json:"can_use_batch" yaml:"can_use_batch"`
	RequiresTools    bool    `json:"requires_tool_calls" yaml:"requires_tool_calls"`
	ToolCalls        int64   `json:"tool_calls" yaml:"tool_calls"`
	Images           int64   `json:"images,omitempty" yaml:"images,omitempty"`
	DurationSeconds  float64 `json:"duration_seconds,omitempty" yaml:"duration_seconds,omitempty"`
	Searches         int64   `json:"searches,omitempty" yaml:"searches,omitempty"`
}

// AdminCostInfo is the cost side of a breakdown. It is admin-only.
type AdminCostInfo struct {
	TotalCost     float64 `json:"total_cost"`
	MarkupPercent float64 `json:"markup_percent"`
	MarginAmount  float64 `json:"margin_amount"`
}

// ComponentCosts are the raw per-step costs before markup. Admin-only.
type ComponentCosts struct {
	Standard        float64 `json:"standard"`
	CachingDiscount float64 `json:"caching_discount"`
	BatchDiscount   float64 `json:"batch_discount"`
	ThermalOverhead float64 `json:"thermal_overhead"`
	ToolCalls       float64 `json:"tool_calls"`
}

// PriceBreakdown is the derived price of a request. Discounts are positive
// amounts subtracted from the standard price, so
// Standard - Caching - Batch + Thermal + ToolCalls == Total.
type PriceBreakdown struct {
	StandardPrice   float64        `json:"standard_price"`
	CachingDiscount float64        `json:"caching_discount"`
	BatchDiscount   float64        `json:"batch_discount"`
	ThermalOverhead float64        `json:"thermal_overhead"`
	ToolCallsPrice  float64        `json:"tool_calls_price"`
	TotalPrice      float64        `json:"total_price"`
	CachingApplied  bool           `json:"caching_applied"`
	BatchApplied    bool           `json:"batch_applied"`
	WarmupApplied   bool           `json:"warmup_applied"`
	Costs           ComponentCosts `json:"costs"`
	AdminCostInfo   AdminCostInfo  `json:"admin_cost_info"`
}

// ComponentSum returns the total implied by the individual components.
func (b PriceBreakdown) ComponentSum() float64 {
	return b.StandardPrice - b.CachingDiscount - b.BatchDiscount + b.ThermalOverhead + b.ToolCallsPrice
}
