// Package pricing turns an upstream cost record into a customer price.
//
// ComputePrice is a pure function. It applies discounts and overheads to
// cost in a fixed order and multiplies by the markup exactly once per
// component, so the total price always equals total cost times the markup
// factor.
package pricing

import (
	"errors"
	"fmt"
	"math"

	"github.com/pario-ai/pricer/pkg/markup"
	"github.com/pario-ai/pricer/pkg/models"
)

// ErrInvalidRequest is matched by every InvalidRequestError.
var ErrInvalidRequest = errors.New("invalid price request")

// ErrInvalidThermal is returned for negative or non-finite thermal costs.
var ErrInvalidThermal = errors.New("invalid thermal cost factors")

// InvalidRequestError reports a malformed request shape.
type InvalidRequestError struct {
	Field  string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid price request: %s %s", e.Field, e.Reason)
}

// Is implements error matching for errors.Is().
func (e *InvalidRequestError) Is(target error) bool {
	return target == ErrInvalidRequest
}

// ValidateRequest rejects negative counts and cached tokens exceeding input.
// Nothing is clamped.
func ValidateRequest(req models.PriceRequest) error {
	switch {
	case req.InputTokens < 0:
		return &InvalidRequestError{Field: "input_tokens", Reason: "must be >= 0"}
	case req.OutputTokens < 0:
		return &InvalidRequestError{Field: "output_tokens", Reason: "must be >= 0"}
	case req.CachedTokenCount < 0:
		return &InvalidRequestError{Field: "cached_token_count", Reason: "must be >= 0"}
	case req.CachedTokenCount > req.InputTokens:
		return &InvalidRequestError{Field: "cached_token_count", Reason: "must not exceed input_tokens"}
	case req.ToolCalls < 0:
		return &InvalidRequestError{Field: "tool_calls", Reason: "must be >= 0"}
	case req.Images < 0:
		return &InvalidRequestError{Field: "images", Reason: "must be >= 0"}
	case req.DurationSeconds < 0:
		return &InvalidRequestError{Field: "duration_seconds", Reason: "must be >= 0"}
	case req.Searches < 0:
		return &InvalidRequestError{Field: "searches", Reason: "must be >= 0"}
	}
	return nil
}

// ComputePrice prices req against rec at markupPercent. thermal is only
// consulted for self-hosted records and may be nil.
func ComputePrice(rec models.ModelCostRecord, markupPercent float64, req models.PriceRequest, thermal *models.ThermalCostFactors) (models.PriceBreakdown, error) {
	if err := ValidateRequest(req); err != nil {
		return models.PriceBreakdown{}, err
	}
	if err := markup.ValidatePercent("effective", rec.ModelID, markupPercent); err != nil {
		return models.PriceBreakdown{}, err
	}
	if err := ValidateThermal(thermal); err != nil {
		return models.PriceBreakdown{}, err
	}

	var out models.PriceBreakdown
	inputRate, outputRate := effectiveRates(rec, req.InputTokens)

	// 1. standard token cost plus flat unit charges
	inputCost := perThousand(inputRate, req.InputTokens)
	outputCost := perThousand(outputRate, req.OutputTokens)
	unitCost := rec.Special.PerRequest +
		rec.Special.PerImage*float64(req.Images) +
		rec.Special.PerSecond*req.DurationSeconds +
		rec.Special.PerMinute*req.DurationSeconds/60 +
		rec.Special.PerSearch*float64(req.Searches)
	out.Costs.Standard = inputCost + outputCost + unitCost

	// 2. caching reduces input cost, never below zero
	if cachingApplies(rec, req) {
		saving := perThousand(inputRate-cachedRate(rec, inputRate), req.CachedTokenCount)
		if saving < 0 {
			saving = 0
		}
		if saving > inputCost {
			saving = inputCost
		}
		inputCost -= saving
		out.Costs.CachingDiscount = saving
		out.CachingApplied = saving > 0
	}

	// 3. batch discount on post-caching token cost
	if rec.BatchCost.Supported && req.CanUseBatch && rec.BatchCost.DiscountPercent > 0 {
		out.Costs.BatchDiscount = (inputCost + outputCost) * rec.BatchCost.DiscountPercent / 100
		out.BatchApplied = true
	}

	// 4. warm-up for cold self-hosted models
	if rec.SelfHosted && thermal != nil && thermal.State == models.ThermalCold {
		out.Costs.ThermalOverhead = thermal.Warmup.EstimatedCost
		out.WarmupApplied = true
	}

	// 5. tool calls
	if req.RequiresTools && req.ToolCalls > 0 {
		out.Costs.ToolCalls = float64(req.ToolCalls) * rec.Special.PerToolCall
	}

	// 6. totals, markup applied once per component
	totalCost := out.Costs.Standard - out.Costs.CachingDiscount - out.Costs.BatchDiscount +
		out.Costs.ThermalOverhead + out.Costs.ToolCalls
	factor := 1 + markupPercent/100

	out.StandardPrice = out.Costs.Standard * factor
	out.CachingDiscount = out.Costs.CachingDiscount * factor
	out.BatchDiscount = out.Costs.BatchDiscount * factor
	out.ThermalOverhead = out.Costs.ThermalOverhead * factor
	out.ToolCallsPrice = out.Costs.ToolCalls * factor
	out.TotalPrice = totalCost * factor
	out.AdminCostInfo = models.AdminCostInfo{
		TotalCost:     totalCost,
		MarkupPercent: markupPercent,
		MarginAmount:  out.TotalPrice - totalCost,
	}
	return out, nil
}

// ValidateThermal rejects thermal factors whose costs are negative or not
// finite. A nil t is valid.
func ValidateThermal(t *models.ThermalCostFactors) error {
	if t == nil {
		return nil
	}
	check := func(field string, v float64) error {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is %v", ErrInvalidThermal, field, v)
		}
		return nil
	}
	if err := check("warmup.estimated_cost", t.Warmup.EstimatedCost); err != nil {
		return err
	}
	if t.Warmup.EstimatedDurationSeconds < 0 {
		return fmt.Errorf("%w: warmup.estimated_duration_seconds is %d", ErrInvalidThermal, t.Warmup.EstimatedDurationSeconds)
	}
	if err := check("amortized_per_request", t.AmortizedPerRequest); err != nil {
		return err
	}
	for state, v := range t.HourlyCostByState {
		if err := check("hourly_cost_by_state."+string(state), v); err != nil {
			return err
		}
	}
	return nil
}

func effectiveRates(rec models.ModelCostRecord, inputTokens int64) (float64, float64) {
	if lc := rec.LongContext; lc != nil && lc.ThresholdTokens > 0 && inputTokens > lc.ThresholdTokens {
		return lc.InputPer1K, lc.OutputPer1K
	}
	return rec.BaseCosts.InputPer1K, rec.BaseCosts.OutputPer1K
}

func cachingApplies(rec models.ModelCostRecord, req models.PriceRequest) bool {
	c := rec.CachingCost
	return c.Supported && req.CanUseCaching && req.CachedTokenCount > 0 && req.CachedTokenCount >= c.MinTokens
}

func cachedRate(rec models.ModelCostRecord, inputRate float64) float64 {
	c := rec.CachingCost
	if c.CachedInputPer1K > 0 {
		return c.CachedInputPer1K
	}
	return inputRate * (1 - c.DiscountPercent/100)
}

func perThousand(rate float64, units int64) float64 {
	return rate * float64(units) / 1000
}
