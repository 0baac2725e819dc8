package views

import (
	"github.com/pario-ai/pricer/pkg/models"
	"github.com/pario-ai/pricer/pkg/optimizer"
)

// Savings option kinds.
const (
	SavingsCaching = "caching"
	SavingsBatch   = "batch"
)

// ClientPrice is the customer-facing price of one request.
type ClientPrice struct {
	Total     float64 `json:"total"`
	Standard  float64 `json:"standard"`
	WarmupFee float64 `json:"warmup_fee,omitempty"`
	ToolCalls float64 `json:"tool_calls,omitempty"`
	Currency  string  `json:"currency"`
	Display   string  `json:"display"`
}

// SavingsOption describes a discount in price terms. Applied options carry
// the realised price delta; available ones only a percentage.
type SavingsOption struct {
	Kind        string  `json:"kind"`
	Applied     bool    `json:"applied"`
	PriceDelta  float64 `json:"price_delta,omitempty"`
	Percent     float64 `json:"percent"`
	Description string  `json:"description"`
}

// EstimatedBadge marks a price derived from an estimated cost.
type EstimatedBadge struct {
	Label   string `json:"label"`
	Tooltip string `json:"tooltip"`
}

// ClientView is the customer projection.
type ClientView struct {
	ModelID   string          `json:"model_id"`
	Price     ClientPrice     `json:"price"`
	Savings   []SavingsOption `json:"savings,omitempty"`
	Estimated *EstimatedBadge `json:"estimated,omitempty"`

	// Stale is set when the price rests on a cost past its sync deadline.
	Stale bool `json:"stale,omitempty"`
}

const estimatedLabel = "Estimated price"

var tooltips = map[models.EstimationReason]string{
	models.ReasonNewModel:          "This model was released recently. Pricing is estimated and will be confirmed soon.",
	models.ReasonProviderNoPricing: "The provider has not published pricing for this model yet. This price is an estimate.",
	models.ReasonPricingChanged:    "Provider pricing changed recently. This price is an estimate until the new rates are confirmed.",
	models.ReasonSyncFailed:        "Latest pricing could not be confirmed. This price is an estimate.",
	models.ReasonCannotEstimate:    "Pricing for this model is not yet available.",
}

const defaultTooltip = "This price is an estimate and may change."

// Tooltip returns the fixed customer text for an estimation reason.
func Tooltip(reason models.EstimationReason) string {
	if t, ok := tooltips[reason]; ok {
		return t
	}
	return defaultTooltip
}

// ToClientView projects in for customers.
func ToClientView(in Input) ClientView {
	p := in.Price
	v := ClientView{
		ModelID: in.Record.ModelID,
		Price: ClientPrice{
			Total:     roundPrice(p.TotalPrice),
			Standard:  roundPrice(p.StandardPrice),
			WarmupFee: roundPrice(p.ThermalOverhead),
			ToolCalls: roundPrice(p.ToolCallsPrice),
			Currency:  "USD",
			Display:   FormatUSD(p.TotalPrice),
		},
		Savings: savings(in),
		Stale:   in.Record.IsStale(in.Now),
	}
	if est := in.Record.Estimation; est != nil {
		v.Estimated = &EstimatedBadge{Label: estimatedLabel, Tooltip: Tooltip(est.Reason)}
	}
	return v
}

func savings(in Input) []SavingsOption {
	p := in.Price
	rec := in.Record
	var out []SavingsOption

	switch {
	case p.CachingApplied:
		out = append(out, SavingsOption{
			Kind:        SavingsCaching,
			Applied:     true,
			PriceDelta:  -roundPrice(p.CachingDiscount),
			Percent:     percentOf(p.CachingDiscount, p.StandardPrice),
			Description: "Prompt caching applied: saved " + FormatUSD(p.CachingDiscount) + ".",
		})
	case rec.CachingCost.Supported:
		pct := cachingPercent(rec)
		if pct > 0 {
			out = append(out, SavingsOption{
				Kind:        SavingsCaching,
				Percent:     pct,
				Description: "Reuse a cached prompt to save up to " + FormatPercent(pct) + " on cached input.",
			})
		}
	}

	switch {
	case p.BatchApplied:
		out = append(out, SavingsOption{
			Kind:        SavingsBatch,
			Applied:     true,
			PriceDelta:  -roundPrice(p.BatchDiscount),
			Percent:     percentOf(p.BatchDiscount, p.StandardPrice),
			Description: "Batch processing applied: saved " + FormatUSD(p.BatchDiscount) + ".",
		})
	case rec.BatchCost.Supported && rec.BatchCost.DiscountPercent > 0:
		pct := rec.BatchCost.DiscountPercent
		out = append(out, SavingsOption{
			Kind:        SavingsBatch,
			Percent:     pct,
			Description: "Submit as a batch job to save " + FormatPercent(pct) + " on token charges.",
		})
	}
	return out
}

// cachingPercent is the cached-input discount as a share of the standard
// input rate. Markup scales both rates equally, so the ratio is a price ratio.
func cachingPercent(rec models.ModelCostRecord) float64 {
	c := rec.CachingCost
	if c.CachedInputPer1K > 0 && rec.BaseCosts.InputPer1K > 0 {
		return percentOf(rec.BaseCosts.InputPer1K-c.CachedInputPer1K, rec.BaseCosts.InputPer1K)
	}
	return c.DiscountPercent
}

// ClientCandidate is a ranked option as the customer sees it.
type ClientCandidate struct {
	ModelID      string  `json:"model_id"`
	ProviderID   string  `json:"provider_id"`
	QualityScore float64 `json:"quality_score"`
	Price        float64 `json:"price"`
	Display      string  `json:"display"`
	Estimated    bool    `json:"estimated"`
}

// ClientWarning is a customer-safe notice.
type ClientWarning struct {
	Code    string `json:"code"`
	ModelID string `json:"model_id"`
	Message string `json:"message"`
}

// ClientSelection is the customer projection of an optimizer decision.
type ClientSelection struct {
	Selected  ClientCandidate   `json:"selected"`
	Rationale string            `json:"rationale"`
	Ranked    []ClientCandidate `json:"ranked"`
	Warnings  []ClientWarning   `json:"warnings,omitempty"`
}

// ToClientSelection projects a decision for customers. Admin warnings and
// cost data are dropped.
func ToClientSelection(d optimizer.Decision) ClientSelection {
	s := ClientSelection{
		Selected:  clientCandidate(d.Selected),
		Rationale: d.Rationale,
		Ranked:    make([]ClientCandidate, 0, len(d.Ranked)),
	}
	for _, c := range d.Ranked {
		s.Ranked = append(s.Ranked, clientCandidate(c))
	}
	for _, w := range d.ClientWarnings {
		s.Warnings = append(s.Warnings, ClientWarning{Code: w.Code, ModelID: w.ModelID, Message: w.Message})
	}
	return s
}

func clientCandidate(c optimizer.Candidate) ClientCandidate {
	return ClientCandidate{
		ModelID:      c.ModelID,
		ProviderID:   c.ProviderID,
		QualityScore: c.QualityScore,
		Price:        roundPrice(c.Price.TotalPrice),
		Display:      FormatUSD(c.Price.TotalPrice),
		Estimated:    c.Estimated,
	}
}
