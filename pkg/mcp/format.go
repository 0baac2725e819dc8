package mcp

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pario-ai/pricer/pkg/models"
	"github.com/pario-ai/pricer/pkg/optimizer"
	"github.com/pario-ai/pricer/pkg/views"
)

// formatAdminView formats a priced quote as text.
func formatAdminView(v views.AdminView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Model:  %s (%s)\n", v.ModelID, v.ProviderID)
	fmt.Fprintf(&b, "Markup: %s from %s\n", views.FormatPercent(v.Markup.Percent), v.Markup.Source)
	fmt.Fprintf(&b, "%-18s %12s %12s\n", "Component", "Cost", "Price")
	b.WriteString(strings.Repeat("-", 44) + "\n")
	rows := []struct {
		name        string
		cost, price float64
	}{
		{"standard", v.Cost.Components.Standard, v.Price.StandardPrice},
		{"caching discount", -v.Cost.Components.CachingDiscount, -v.Price.CachingDiscount},
		{"batch discount", -v.Cost.Components.BatchDiscount, -v.Price.BatchDiscount},
		{"thermal overhead", v.Cost.Components.ThermalOverhead, v.Price.ThermalOverhead},
		{"tool calls", v.Cost.Components.ToolCalls, v.Price.ToolCallsPrice},
		{"total", v.Cost.Total, v.Price.TotalPrice},
	}
	for _, r := range rows {
		fmt.Fprintf(&b, "%-18s %12s %12s\n", r.name, views.FormatUSD(r.cost), views.FormatUSD(r.price))
	}
	fmt.Fprintf(&b, "Margin: %s (%s)\n", views.FormatUSD(v.Margin.Amount), views.FormatPercent(v.Margin.Percent))
	if est := v.Estimation; est != nil {
		fmt.Fprintf(&b, "Estimated: %s, confidence %.2f from %d source(s)\n", est.Reason, est.Confidence, len(est.SourceModels))
	}
	if v.Stale {
		fmt.Fprintf(&b, "Stale: sync was due %s\n", v.Provenance.NextSyncDueAt.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

// formatStages formats the optimizer funnel as text.
func formatStages(stages []optimizer.StageResult) string {
	if len(stages) == 0 {
		return ""
	}
	var b strings.Builder
	for _, s := range stages {
		fmt.Fprintf(&b, "%-16s %3d -> %d\n", s.Stage, s.Before, s.After)
	}
	return b.String()
}

// formatDecision formats an optimizer decision as text.
func formatDecision(d optimizer.Decision) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Selected: %s (%s)\n%s\n\n", d.Selected.ModelID, d.Strategy, d.Rationale)
	fmt.Fprintf(&b, "%3s  %-25s %-12s %7s %12s %12s %9s\n", "#", "Model", "Provider", "Quality", "Price", "Margin", "Estimated")
	b.WriteString(strings.Repeat("-", 88) + "\n")
	for i, c := range d.Ranked {
		fmt.Fprintf(&b, "%3d  %-25s %-12s %7.2f %12s %12s %9v\n",
			i+1, c.ModelID, c.ProviderID, c.QualityScore,
			views.FormatUSD(c.Price.TotalPrice), views.FormatUSD(c.Price.AdminCostInfo.MarginAmount), c.Estimated)
	}
	for _, w := range d.ClientWarnings {
		fmt.Fprintf(&b, "client warning [%s] %s: %s\n", w.Code, w.ModelID, w.Message)
	}
	for _, w := range d.AdminWarnings {
		fmt.Fprintf(&b, "admin warning [%s] %s: %s\n", w.Code, w.ModelID, w.Message)
	}
	return b.String()
}

// formatRecords formats cost records as a text table.
func formatRecords(recs []models.ModelCostRecord, now time.Time) string {
	if len(recs) == 0 {
		return "No cost records found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-25s %-12s %12s %12s %-14s %-22s %5s\n",
		"Model", "Provider", "In/1K", "Out/1K", "Source", "Estimated", "Stale")
	b.WriteString(strings.Repeat("-", 108) + "\n")
	for _, r := range recs {
		est := "-"
		if r.Estimation != nil {
			est = fmt.Sprintf("%s (%.2f)", r.Estimation.Reason, r.Estimation.Confidence)
		}
		fmt.Fprintf(&b, "%-25s %-12s %12s %12s %-14s %-22s %5v\n",
			r.ModelID, r.ProviderID,
			views.FormatUSD(r.BaseCosts.InputPer1K), views.FormatUSD(r.BaseCosts.OutputPer1K),
			r.Provenance.Source, est, r.IsStale(now))
	}
	return b.String()
}

// formatAlerts formats alerts as a text table.
func formatAlerts(list []models.EstimatedCostAlert) string {
	if len(list) == 0 {
		return "No alerts found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-36s %-20s %-25s %-9s %-13s %10s\n",
		"ID", "Created", "Model", "Severity", "Status", "Confidence")
	b.WriteString(strings.Repeat("-", 118) + "\n")
	for _, a := range list {
		fmt.Fprintf(&b, "%-36s %-20s %-25s %-9s %-13s %10.4f\n",
			a.ID, a.CreatedAt.Format("2006-01-02 15:04:05"), a.ModelID, a.Severity, a.Status, a.Confidence)
	}
	return b.String()
}

// formatMarkup formats the markup configuration as text.
func formatMarkup(cfg models.MarkupConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Defaults: external %s, self-hosted %s\n",
		views.FormatPercent(cfg.Defaults.ExternalPercent), views.FormatPercent(cfg.Defaults.SelfHostedPercent))

	ids := make([]string, 0, len(cfg.ProviderOverrides))
	for id := range cfg.ProviderOverrides {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		o := cfg.ProviderOverrides[id]
		fmt.Fprintf(&b, "provider %-20s %8s  set by %s\n", id, views.FormatPercent(o.Percent), o.SetBy)
	}

	ids = ids[:0]
	for id := range cfg.ModelOverrides {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		o := cfg.ModelOverrides[id]
		exp := "never expires"
		if o.ExpiresAt != nil {
			exp = "expires " + o.ExpiresAt.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(&b, "model    %-20s %8s  set by %s, %s\n", id, views.FormatPercent(o.Percent), o.SetBy, exp)
	}
	return b.String()
}
