package catalog

import (
	"errors"
	"fmt"
	"math"

	"github.com/pario-ai/pricer/pkg/models"
)

var (
	// ErrNotFound is returned when no record exists for a model.
	ErrNotFound = errors.New("cost record not found")

	// ErrDataIntegrity is matched by every DataIntegrityError.
	ErrDataIntegrity = errors.New("cost data integrity violation")
)

// weightTolerance bounds how far estimation weights may drift from summing to 1.
const weightTolerance = 1e-6

// DataIntegrityError reports a malformed incoming cost record.
type DataIntegrityError struct {
	ModelID string
	Field   string
	Reason  string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("cost record %q: %s %s", e.ModelID, e.Field, e.Reason)
}

// Is implements error matching for errors.Is().
func (e *DataIntegrityError) Is(target error) bool {
	return target == ErrDataIntegrity
}

// Validate checks a record before it may enter the catalog.
func Validate(rec models.ModelCostRecord) error {
	bad := func(field, reason string) error {
		return &DataIntegrityError{ModelID: rec.ModelID, Field: field, Reason: reason}
	}
	if rec.ModelID == "" {
		return bad("model_id", "is required")
	}
	if rec.ProviderID == "" {
		return bad("provider_id", "is required")
	}

	costs := []amount{
		{"base_costs.input_per_1k", rec.BaseCosts.InputPer1K},
		{"base_costs.output_per_1k", rec.BaseCosts.OutputPer1K},
		{"caching_cost.cached_input_per_1k", rec.CachingCost.CachedInputPer1K},
		{"batch_cost.batch_rates.input_per_1k", rec.BatchCost.BatchRates.InputPer1K},
		{"batch_cost.batch_rates.output_per_1k", rec.BatchCost.BatchRates.OutputPer1K},
		{"special_costs.per_request", rec.Special.PerRequest},
		{"special_costs.per_second", rec.Special.PerSecond},
		{"special_costs.per_image", rec.Special.PerImage},
		{"special_costs.per_minute", rec.Special.PerMinute},
		{"special_costs.per_search", rec.Special.PerSearch},
		{"special_costs.per_tool_call", rec.Special.PerToolCall},
	}
	if lc := rec.LongContext; lc != nil {
		costs = append(costs,
			amount{"long_context_cost.input_per_1k", lc.InputPer1K},
			amount{"long_context_cost.output_per_1k", lc.OutputPer1K},
		)
		if lc.ThresholdTokens < 0 {
			return bad("long_context_cost.threshold_tokens", "must be >= 0")
		}
	}
	for _, c := range costs {
		if reason := checkAmount(c.v); reason != "" {
			return bad(c.field, reason)
		}
	}

	for _, p := range []amount{
		{"caching_cost.discount_percent", rec.CachingCost.DiscountPercent},
		{"batch_cost.discount_percent", rec.BatchCost.DiscountPercent},
	} {
		if reason := checkAmount(p.v); reason != "" {
			return bad(p.field, reason)
		}
		if p.v > 100 {
			return bad(p.field, "must be <= 100")
		}
	}
	if rec.CachingCost.MinTokens < 0 {
		return bad("caching_cost.min_tokens", "must be >= 0")
	}

	if est := rec.Estimation; est != nil {
		if fe := validateEstimation(est); fe != nil {
			return bad(fe.field, fe.reason)
		}
	}
	return nil
}

type amount struct {
	field string
	v     float64
}

type fieldErr struct{ field, reason string }

func validateEstimation(est *models.Estimation) *fieldErr {
	if math.IsNaN(est.Confidence) || est.Confidence < 0 || est.Confidence > 1 {
		return &fieldErr{"estimation.confidence", "must be within [0,1]"}
	}
	if est.Reason == "" {
		return &fieldErr{"estimation.reason", "is required"}
	}
	if len(est.SourceModels) == 0 {
		if est.Confidence != 0 {
			return &fieldErr{"estimation.confidence", "must be 0 without source models"}
		}
		return nil
	}
	var sum float64
	for _, s := range est.SourceModels {
		if reason := checkAmount(s.Weight); reason != "" {
			return &fieldErr{"estimation.source_models.weight", reason}
		}
		if reason := checkAmount(s.SimilarityScore); reason != "" || s.SimilarityScore > 1 {
			return &fieldErr{"estimation.source_models.similarity_score", "must be within [0,1]"}
		}
		sum += s.Weight
	}
	if math.Abs(sum-1) > weightTolerance {
		return &fieldErr{"estimation.source_models.weight", fmt.Sprintf("must sum to 1, got %v", sum)}
	}
	return nil
}

func checkAmount(v float64) string {
	switch {
	case math.IsNaN(v):
		return "is NaN"
	case math.IsInf(v, 0):
		return "is not finite"
	case v < 0:
		return "is negative"
	}
	return ""
}
