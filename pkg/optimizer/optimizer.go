// Package optimizer filters priced candidate models against a request's
// constraints and ranks the survivors.
//
// The pipeline runs five stages in a fixed order: capability, availability,
// estimated price, quality and budget. Each stage only removes candidates. If
// any stage leaves nothing, Optimize returns a NoEligibleCandidateError rather
// than relaxing a constraint.
//
// Optimize is pure: it does not log, mutate its inputs, or depend on time.
package optimizer

import (
	"fmt"
	"math"
	"sort"
)

type filter struct {
	stage Stage
	keep  func(Candidate) bool
}

// Optimize selects the best candidate for req.
func Optimize(candidates []Candidate, req Request, opts Options) (Decision, error) {
	strategy := req.Strategy
	if strategy == "" {
		strategy = StrategyMinimize
	}
	switch strategy {
	case StrategyMinimize, StrategyBalance, StrategyIgnore:
	default:
		return Decision{}, fmt.Errorf("%w: %q", ErrUnknownStrategy, req.Strategy)
	}
	if req.MinQualityScore < 0 || req.MaxPricePerRequest < 0 || req.ExpectedMonthlyVolume < 0 {
		return Decision{}, fmt.Errorf("%w: negative constraint", ErrInvalidRequest)
	}

	filters := []filter{
		{StageCapability, func(c Candidate) bool { return hasAll(c.Capabilities, req.RequiredCapabilities) }},
		{StageAvailability, func(c Candidate) bool { return c.Available }},
		{StageEstimated, func(c Candidate) bool { return req.AllowEstimated || !c.Estimated }},
		{StageQuality, func(c Candidate) bool { return c.QualityScore >= req.MinQualityScore }},
		{StageBudget, func(c Candidate) bool {
			return req.MaxPricePerRequest == 0 || c.Price.TotalPrice <= req.MaxPricePerRequest
		}},
	}

	set := append([]Candidate(nil), candidates...)
	stages := make([]StageResult, 0, len(filters))
	for _, f := range filters {
		before := len(set)
		kept := make([]Candidate, 0, len(set))
		for _, c := range set {
			if f.keep(c) {
				kept = append(kept, c)
			}
		}
		stages = append(stages, StageResult{Stage: f.stage, Before: before, After: len(kept)})
		if len(kept) == 0 {
			return Decision{Strategy: strategy, Stages: stages}, &NoEligibleCandidateError{Stage: f.stage, Considered: before}
		}
		set = kept
	}

	rank(set, strategy)

	selected := set[0]
	d := Decision{
		Selected:  selected,
		Rationale: rationale(selected, strategy, len(set)),
		Strategy:  strategy,
		Ranked:    set,
		Stages:    stages,
	}
	d.ClientWarnings = clientWarnings(selected, req, opts)
	d.AdminWarnings = adminWarnings(selected, req, opts)
	return d, nil
}

func rank(set []Candidate, strategy Strategy) {
	switch strategy {
	case StrategyMinimize:
		sort.SliceStable(set, func(i, j int) bool {
			a, b := set[i], set[j]
			if a.Price.TotalPrice != b.Price.TotalPrice {
				return a.Price.TotalPrice < b.Price.TotalPrice
			}
			return tieBreak(a, b)
		})
	case StrategyBalance:
		sort.SliceStable(set, func(i, j int) bool {
			a, b := set[i], set[j]
			va, vb := value(a), value(b)
			if va != vb {
				return va > vb
			}
			if a.Price.TotalPrice != b.Price.TotalPrice {
				return a.Price.TotalPrice < b.Price.TotalPrice
			}
			return tieBreak(a, b)
		})
	}
}

func tieBreak(a, b Candidate) bool {
	if a.QualityScore != b.QualityScore {
		return a.QualityScore > b.QualityScore
	}
	return a.ModelID < b.ModelID
}

// value is quality per unit of price. A free candidate is worth +Inf unless
// its quality is zero.
func value(c Candidate) float64 {
	if c.Price.TotalPrice <= 0 {
		if c.QualityScore <= 0 {
			return 0
		}
		return math.Inf(1)
	}
	return c.QualityScore / c.Price.TotalPrice
}

func hasAll(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(have))
	for _, h := range have {
		set[h] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}

func rationale(c Candidate, strategy Strategy, eligible int) string {
	switch strategy {
	case StrategyBalance:
		return fmt.Sprintf("%s offers the best quality for its price among %d eligible models", c.ModelID, eligible)
	case StrategyIgnore:
		return fmt.Sprintf("%s is the first eligible model in preference order (%d eligible)", c.ModelID, eligible)
	default:
		return fmt.Sprintf("%s has the lowest price among %d eligible models", c.ModelID, eligible)
	}
}

func clientWarnings(c Candidate, req Request, opts Options) []ClientWarning {
	var out []ClientWarning
	if c.Estimated {
		out = append(out, ClientWarning{
			Code:    WarnEstimatedPrice,
			ModelID: c.ModelID,
			Message: "This price is an estimate and may change once final pricing is confirmed.",
		})
	}
	if c.Price.WarmupApplied || c.WarmupSeconds > 0 {
		msg := "This model is starting up; the first response may be delayed."
		if c.WarmupSeconds > 0 {
			msg = fmt.Sprintf("This model is starting up; expect about %.0f seconds of extra latency.", c.WarmupSeconds)
		}
		out = append(out, ClientWarning{Code: WarnWarmupDelay, ModelID: c.ModelID, Message: msg})
	}
	if req.MaxPricePerRequest > 0 && c.Price.TotalPrice >= req.MaxPricePerRequest*opts.NearBudgetPercent/100 {
		out = append(out, ClientWarning{
			Code:    WarnNearBudget,
			ModelID: c.ModelID,
			Message: fmt.Sprintf("This request uses at least %.0f%% of your per-request budget.", opts.NearBudgetPercent),
		})
	}
	return out
}

func adminWarnings(c Candidate, req Request, opts Options) []AdminWarning {
	var out []AdminWarning
	info := c.Price.AdminCostInfo
	if c.Price.TotalPrice > 0 {
		marginPct := info.MarginAmount / c.Price.TotalPrice * 100
		if marginPct < opts.LowMarginPercent {
			out = append(out, AdminWarning{
				Code:    WarnLowMargin,
				ModelID: c.ModelID,
				Message: fmt.Sprintf("margin %.1f%% is below %.0f%% (cost %.6f, margin %.6f)", marginPct, opts.LowMarginPercent, info.TotalCost, info.MarginAmount),
			})
		}
	}
	if c.Estimated {
		out = append(out, AdminWarning{
			Code:    WarnEstimatedCost,
			ModelID: c.ModelID,
			Message: fmt.Sprintf("cost %.6f is estimated; verify before committing volume", info.TotalCost),
		})
	}
	if opts.VolumeDiscountThreshold > 0 && req.ExpectedMonthlyVolume >= opts.VolumeDiscountThreshold {
		out = append(out, AdminWarning{
			Code:    WarnVolumeDiscount,
			ModelID: c.ModelID,
			Message: fmt.Sprintf("expected volume %d requests/month qualifies for a provider volume discount review", req.ExpectedMonthlyVolume),
		})
	}
	return out
}
