package catalog

import (
	"math"

	"github.com/pario-ai/pricer/pkg/models"
)

// Candidate is a verified model considered similar to the one being estimated.
type Candidate struct {
	Record     models.ModelCostRecord
	Similarity float64
}

// SimilarModel names a catalog model and how similar it is to the target.
type SimilarModel struct {
	ModelID    string  `json:"model_id" yaml:"model_id"`
	Similarity float64 `json:"similarity" yaml:"similarity"`
}

// Estimate infers costs for target from candidates. Similarities are
// normalized into weights summing to 1 and every cost field is the weighted
// average of the candidates' fields. Estimated candidates and candidates with a
// similarity outside (0,1] are ignored. With no usable candidate the result is
// flagged as unestimable with confidence 0; costs are never defaulted.
func Estimate(target models.ModelCostRecord, reason models.EstimationReason, candidates []Candidate) models.ModelCostRecord {
	out := target.Clone()

	usable := make([]Candidate, 0, len(candidates))
	var simSum float64
	for _, c := range candidates {
		if c.Record.IsEstimated() || !(c.Similarity > 0 && c.Similarity <= 1) {
			continue
		}
		usable = append(usable, c)
		simSum += c.Similarity
	}

	if len(usable) == 0 {
		out.Estimation = &models.Estimation{
			Reason:           models.ReasonCannotEstimate,
			Confidence:       0,
			Method:           models.MethodNone,
			AwaitingRealCost: true,
		}
		return out
	}

	sources := make([]models.SourceModel, len(usable))
	var base models.BaseCosts
	var special models.SpecialCosts
	maxSim := 0.0
	for i, c := range usable {
		w := c.Similarity / simSum
		sources[i] = models.SourceModel{
			ModelID:         c.Record.ModelID,
			Cost:            c.Record.BaseCosts,
			SimilarityScore: c.Similarity,
			Weight:          w,
		}
		base.InputPer1K += w * c.Record.BaseCosts.InputPer1K
		base.OutputPer1K += w * c.Record.BaseCosts.OutputPer1K

		s := c.Record.Special
		special.PerRequest += w * s.PerRequest
		special.PerSecond += w * s.PerSecond
		special.PerImage += w * s.PerImage
		special.PerMinute += w * s.PerMinute
		special.PerSearch += w * s.PerSearch
		special.PerToolCall += w * s.PerToolCall

		maxSim = math.Max(maxSim, c.Similarity)
	}

	out.BaseCosts = base
	out.Special = special
	out.Estimation = &models.Estimation{
		Reason:           reason,
		Confidence:       Confidence(maxSim, totals(usable)),
		SourceModels:     sources,
		Method:           models.MethodWeightedSimilarity,
		AwaitingRealCost: true,
	}
	return out
}

// Confidence scores an estimate from the best similarity and the candidates'
// per-1K cost totals:
//
//	maxSim * (1 - 0.5^n) * 1/(1+cv)
//
// where n is the candidate count and cv the population coefficient of
// variation of the totals. The result is rounded to 6 decimals.
func Confidence(maxSim float64, costTotals []float64) float64 {
	n := len(costTotals)
	if n == 0 || maxSim <= 0 {
		return 0
	}
	countFactor := 1 - math.Pow(0.5, float64(n))

	var mean float64
	for _, v := range costTotals {
		mean += v
	}
	mean /= float64(n)

	cv := 0.0
	if mean > 0 {
		var variance float64
		for _, v := range costTotals {
			variance += (v - mean) * (v - mean)
		}
		variance /= float64(n)
		cv = math.Sqrt(variance) / mean
	}

	c := math.Min(maxSim, 1) * countFactor / (1 + cv)
	return math.Round(c*1e6) / 1e6
}

func totals(cs []Candidate) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Record.BaseCosts.InputPer1K + c.Record.BaseCosts.OutputPer1K
	}
	return out
}
