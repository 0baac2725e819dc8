// Package views builds the two read projections of a priced model.
//
// AdminView carries cost, markup, margin and estimation provenance.
// ClientView carries prices only and is assembled field by field from a
// whitelist; it never embeds a cost record or breakdown, so fields added to
// the models package stay admin-only until copied here on purpose.
package views

import (
	"time"

	"github.com/pario-ai/pricer/pkg/models"
)

// Input is the shared source of both projections.
type Input struct {
	Record models.ModelCostRecord
	Markup models.ResolvedMarkup
	Price  models.PriceBreakdown
	Now    time.Time
}

// Admin action names.
const (
	ActionOverrideMarkup = "override_markup"
	ActionAdjustEstimate = "adjust_estimate"
	ActionForceResync    = "force_resync"
)

// AdminAction is an operation an operator may take on the model.
type AdminAction struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// AdminCost is the provider-side cost of the priced request.
type AdminCost struct {
	InputPer1K  float64               `json:"input_per_1k"`
	OutputPer1K float64               `json:"output_per_1k"`
	Total       float64               `json:"total"`
	Components  models.ComponentCosts `json:"components"`
}

// Margin is price minus cost.
type Margin struct {
	Amount  float64 `json:"amount"`
	Percent float64 `json:"percent"`
}

// AdminView is the operator projection.
type AdminView struct {
	ModelID    string                `json:"model_id"`
	ProviderID string                `json:"provider_id"`
	SelfHosted bool                  `json:"self_hosted"`
	Cost       AdminCost             `json:"cost"`
	Markup     models.ResolvedMarkup `json:"markup"`
	Price      models.PriceBreakdown `json:"price"`
	Margin     Margin                `json:"margin"`
	Provenance models.Provenance     `json:"provenance"`
	Estimation *models.Estimation    `json:"estimation,omitempty"`
	Stale      bool                  `json:"stale"`
	Actions    []AdminAction         `json:"actions"`
}

// ToAdminView projects in for operators.
func ToAdminView(in Input) AdminView {
	rec := in.Record.Clone()
	v := AdminView{
		ModelID:    rec.ModelID,
		ProviderID: rec.ProviderID,
		SelfHosted: rec.SelfHosted,
		Cost: AdminCost{
			InputPer1K:  rec.BaseCosts.InputPer1K,
			OutputPer1K: rec.BaseCosts.OutputPer1K,
			Total:       in.Price.AdminCostInfo.TotalCost,
			Components:  in.Price.Costs,
		},
		Markup: in.Markup,
		Price:  in.Price,
		Margin: Margin{
			Amount:  in.Price.AdminCostInfo.MarginAmount,
			Percent: percentOf(in.Price.AdminCostInfo.MarginAmount, in.Price.TotalPrice),
		},
		Provenance: rec.Provenance,
		Estimation: rec.Estimation,
		Stale:      rec.IsStale(in.Now),
	}

	v.Actions = append(v.Actions, AdminAction{
		Name:        ActionOverrideMarkup,
		Description: "Set a model-level markup override, optionally with an expiry.",
	})
	if rec.IsEstimated() {
		v.Actions = append(v.Actions, AdminAction{
			Name:        ActionAdjustEstimate,
			Description: "Replace the estimated cost with an operator-supplied cost.",
		})
	}
	v.Actions = append(v.Actions, AdminAction{
		Name:        ActionForceResync,
		Description: "Mark the cost record due for immediate resync.",
	})
	return v
}
