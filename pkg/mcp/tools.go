package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pario-ai/pricer/pkg/alerts"
	"github.com/pario-ai/pricer/pkg/models"
	"github.com/pario-ai/pricer/pkg/optimizer"
	"github.com/pario-ai/pricer/pkg/views"
)

// Tool argument structs.

type requestArgs struct {
	InputTokens      int64               `json:"input_tokens"`
	OutputTokens     int64               `json:"output_tokens"`
	CanUseCaching    bool                `json:"can_use_caching"`
	CachedTokenCount int64               `json:"cached_token_count"`
	CanUseBatch      bool                `json:"can_use_batch"`
	ToolCalls        int64               `json:"tool_calls"`
	ThermalState     models.ThermalState `json:"thermal_state"`
}

func (a requestArgs) request() models.PriceRequest {
	return models.PriceRequest{
		InputTokens:      a.InputTokens,
		OutputTokens:     a.OutputTokens,
		CanUseCaching:    a.CanUseCaching,
		CachedTokenCount: a.CachedTokenCount,
		CanUseBatch:      a.CanUseBatch,
		RequiresTools:    a.ToolCalls > 0,
		ToolCalls:        a.ToolCalls,
	}
}

type quoteArgs struct {
	requestArgs
	ModelID string `json:"model_id"`
}

type optimizeArgs struct {
	requestArgs
	Capabilities   []string `json:"capabilities"`
	Strategy       string   `json:"strategy"`
	MaxPrice       float64  `json:"max_price"`
	MinQuality     float64  `json:"min_quality"`
	AllowEstimated bool     `json:"allow_estimated"`
}

type catalogArgs struct {
	ModelID   string `json:"model_id"`
	StaleOnly bool   `json:"stale_only"`
}

type alertsArgs struct {
	ModelID string `json:"model_id"`
	Status  string `json:"status"`
}

// toolHandler is a function that handles a tool call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) toolResult

// toolHandlers maps tool names to their handlers.
var toolHandlers = map[string]toolHandler{
	"pricer_quote":    handleQuote,
	"pricer_optimize": handleOptimize,
	"pricer_catalog":  handleCatalog,
	"pricer_alerts":   handleAlerts,
	"pricer_markup":   handleMarkup,
}

var requestProperties = map[string]any{
	"input_tokens":       map[string]any{"type": "integer", "description": "Input tokens"},
	"output_tokens":      map[string]any{"type": "integer", "description": "Output tokens"},
	"can_use_caching":    map[string]any{"type": "boolean", "description": "Request may use prompt caching"},
	"cached_token_count": map[string]any{"type": "integer", "description": "Cached input tokens"},
	"can_use_batch":      map[string]any{"type": "boolean", "description": "Request may run as a batch"},
	"tool_calls":         map[string]any{"type": "integer", "description": "Number of tool calls"},
	"thermal_state":      map[string]any{"type": "string", "description": "Override thermal state of self-hosted models (OFF, COLD, WARM, HOT)"},
}

func withProps(extra map[string]any) map[string]any {
	out := make(map[string]any, len(requestProperties)+len(extra))
	for k, v := range requestProperties {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// allTools is the list of tool definitions exposed via tools/list.
var allTools = []toolDef{
	{
		Name:        "pricer_quote",
		Description: "Price a request against one model, showing cost, markup, margin and estimation status.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"model_id"},
			"properties": withProps(map[string]any{
				"model_id": map[string]any{"type": "string", "description": "Model to price"},
			}),
		},
	},
	{
		Name:        "pricer_optimize",
		Description: "Rank the configured models for a request and show the selection with warnings.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": withProps(map[string]any{
				"capabilities":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Required capabilities"},
				"strategy":        map[string]any{"type": "string", "description": "minimize, balance or ignore (default minimize)"},
				"max_price":       map[string]any{"type": "number", "description": "Maximum price per request in USD (optional)"},
				"min_quality":     map[string]any{"type": "number", "description": "Minimum quality score (optional)"},
				"allow_estimated": map[string]any{"type": "boolean", "description": "Consider models with estimated costs"},
			}),
		},
	},
	{
		Name:        "pricer_catalog",
		Description: "List cost records with provenance and estimation status.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"model_id":   map[string]any{"type": "string", "description": "Filter by model (optional)"},
				"stale_only": map[string]any{"type": "boolean", "description": "Only records past their sync deadline"},
			},
		},
	},
	{
		Name:        "pricer_alerts",
		Description: "List estimated-cost alerts, newest first.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"model_id": map[string]any{"type": "string", "description": "Filter by model (optional)"},
				"status":   map[string]any{"type": "string", "description": "pending, acknowledged, adjusted or resolved (optional)"},
			},
		},
	},
	{
		Name:        "pricer_markup",
		Description: "Show markup defaults and overrides.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
}

func textResult(text string) toolResult {
	return toolResult{
		Content: []textBlock{{Type: "text", Text: text}},
	}
}

func errorResult(text string) toolResult {
	return toolResult{
		Content: []textBlock{{Type: "text", Text: text}},
		IsError: true,
	}
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func handleQuote(ctx context.Context, s *Server, raw json.RawMessage) toolResult {
	var args quoteArgs
	if err := decodeArgs(raw, &args); err != nil {
		return errorResult("Invalid arguments: " + err.Error())
	}
	if args.ModelID == "" {
		return errorResult("model_id is required")
	}
	var thermal *models.ThermalCostFactors
	for _, m := range s.deps.Models {
		if m.ModelID == args.ModelID {
			thermal = withState(m.Thermal, args.ThermalState)
		}
	}
	q, err := s.deps.Pricer.Quote(ctx, args.ModelID, args.request(), thermal)
	if err != nil {
		return errorResult("Error pricing request: " + err.Error())
	}
	return textResult(formatAdminView(views.ToAdminView(q.ViewInput())))
}

func handleOptimize(ctx context.Context, s *Server, raw json.RawMessage) toolResult {
	var args optimizeArgs
	if err := decodeArgs(raw, &args); err != nil {
		return errorResult("Invalid arguments: " + err.Error())
	}
	if len(s.deps.Models) == 0 {
		return textResult("No models are configured.")
	}
	infos := make([]models.ModelInfo, len(s.deps.Models))
	for i, m := range s.deps.Models {
		m.Thermal = withState(m.Thermal, args.ThermalState)
		infos[i] = m
	}
	oreq := optimizer.Request{
		RequiredCapabilities: args.Capabilities,
		AllowEstimated:       args.AllowEstimated,
		MinQualityScore:      args.MinQuality,
		MaxPricePerRequest:   args.MaxPrice,
		Strategy:             optimizer.Strategy(args.Strategy),
	}
	d, err := s.deps.Pricer.Optimize(ctx, infos, args.request(), oreq)
	if err != nil {
		return errorResult(formatStages(d.Stages) + "Error: " + err.Error())
	}
	return textResult(formatDecision(d))
}

func handleCatalog(_ context.Context, s *Server, raw json.RawMessage) toolResult {
	var args catalogArgs
	if err := decodeArgs(raw, &args); err != nil {
		return errorResult("Invalid arguments: " + err.Error())
	}
	now := time.Now().UTC()
	var recs []models.ModelCostRecord
	for _, r := range s.deps.Catalog.List() {
		if args.ModelID != "" && r.ModelID != args.ModelID {
			continue
		}
		if args.StaleOnly && !r.IsStale(now) {
			continue
		}
		recs = append(recs, r)
	}
	return textResult(formatRecords(recs, now))
}

func handleAlerts(_ context.Context, s *Server, raw json.RawMessage) toolResult {
	var args alertsArgs
	if err := decodeArgs(raw, &args); err != nil {
		return errorResult("Invalid arguments: " + err.Error())
	}
	list := s.deps.Alerts.List(alerts.Filter{ModelID: args.ModelID, Status: models.AlertStatus(args.Status)})
	return textResult(formatAlerts(list))
}

func handleMarkup(_ context.Context, s *Server, _ json.RawMessage) toolResult {
	return textResult(formatMarkup(s.deps.Markup.Snapshot()))
}

func withState(t *models.ThermalCostFactors, state models.ThermalState) *models.ThermalCostFactors {
	if t == nil || state == "" {
		return t
	}
	cp := *t
	cp.State = state
	return &cp
}
