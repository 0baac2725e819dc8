package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/pario-ai/pricer/pkg/alerts"
	"github.com/pario-ai/pricer/pkg/catalog"
	"github.com/pario-ai/pricer/pkg/markup"
	"github.com/pario-ai/pricer/pkg/models"
	"github.com/pario-ai/pricer/pkg/optimizer"
	"github.com/pario-ai/pricer/pkg/quote"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()

	mk, err := markup.NewStore(models.MarkupConfig{
		Defaults: models.MarkupDefaults{ExternalPercent: 40, SelfHostedPercent: 75},
	})
	if err != nil {
		t.Fatal(err)
	}
	cat := catalog.New(nil)
	am := alerts.NewManager(nil)
	svc := quote.New(quote.Deps{
		Catalog: cat,
		Markup:  mk,
		Alerts:  am,
		Options: optimizer.DefaultOptions(),
	})

	for _, r := range []models.ModelCostRecord{
		{
			ModelID: "model-a", ProviderID: "acme", CostType: models.CostPerToken,
			BaseCosts:  models.BaseCosts{InputPer1K: 0.003, OutputPer1K: 0.015},
			Provenance: models.Provenance{Source: "provider_api"},
		},
		{
			ModelID: "model-b", ProviderID: "acme", CostType: models.CostPerToken,
			BaseCosts:  models.BaseCosts{InputPer1K: 0.001, OutputPer1K: 0.002},
			Provenance: models.Provenance{Source: "provider_api"},
		},
	} {
		if _, err := cat.Upsert(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	return New(Deps{
		Pricer:  svc,
		Catalog: cat,
		Alerts:  am,
		Markup:  mk,
		Models: []models.ModelInfo{
			{ModelID: "model-a", ProviderID: "acme", Available: true, QualityScore: 0.9},
			{ModelID: "model-b", ProviderID: "acme", Available: true, QualityScore: 0.6},
		},
	}, "test")
}

func sendAndReceive(t *testing.T, srv *Server, req Request) Response {
	t.Helper()
	line, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	line = append(line, '\n')

	var out bytes.Buffer
	if err := srv.Run(context.Background(), bytes.NewReader(line), &out); err != nil {
		t.Fatal(err)
	}

	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, out.String())
	}
	return resp
}

func callTool(t *testing.T, srv *Server, name string, args any) toolResult {
	t.Helper()
	raw, err := json.Marshal(args)
	if err != nil {
		t.Fatal(err)
	}
	params, _ := json.Marshal(toolCall{Name: name, Arguments: raw})
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`7`),
		Method:  "tools/call",
		Params:  params,
	})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	data, _ := json.Marshal(resp.Result)
	var result toolResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Content) != 1 {
		t.Fatalf("got %d content blocks, want 1", len(result.Content))
	}
	return result
}

func TestInitialize(t *testing.T) {
	srv := newTestServer(t)
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "initialize",
	})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result initializeResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatal(err)
	}

	if result.ProtocolVersion != "2024-11-05" {
		t.Errorf("protocol version = %s, want 2024-11-05", result.ProtocolVersion)
	}
	if result.ServerInfo.Name != "pricer" {
		t.Errorf("server name = %s, want pricer", result.ServerInfo.Name)
	}
}

func TestToolsList(t *testing.T) {
	srv := newTestServer(t)
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`2`),
		Method:  "tools/list",
	})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result toolsList
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatal(err)
	}

	if len(result.Tools) != len(toolHandlers) {
		t.Errorf("got %d tools, want %d", len(result.Tools), len(toolHandlers))
	}
	for _, tool := range result.Tools {
		if _, ok := toolHandlers[tool.Name]; !ok {
			t.Errorf("tool %s has no handler", tool.Name)
		}
	}
}

func TestQuoteTool(t *testing.T) {
	srv := newTestServer(t)
	result := callTool(t, srv, "pricer_quote", map[string]any{
		"model_id":      "model-a",
		"input_tokens":  1000000,
		"output_tokens": 500000,
	})
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", result.Content[0].Text)
	}
	text := result.Content[0].Text
	for _, want := range []string{"model-a", "$14.70", "$10.50", "default"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestQuoteToolErrors(t *testing.T) {
	srv := newTestServer(t)

	result := callTool(t, srv, "pricer_quote", map[string]any{})
	if !result.IsError || !strings.Contains(result.Content[0].Text, "model_id") {
		t.Errorf("expected model_id error, got %+v", result)
	}

	result = callTool(t, srv, "pricer_quote", map[string]any{"model_id": "missing", "input_tokens": 10})
	if !result.IsError {
		t.Errorf("expected error for unknown model, got %s", result.Content[0].Text)
	}
}

func TestOptimizeTool(t *testing.T) {
	srv := newTestServer(t)
	result := callTool(t, srv, "pricer_optimize", map[string]any{
		"input_tokens":  1000,
		"output_tokens": 500,
	})
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", result.Content[0].Text)
	}
	if !strings.Contains(result.Content[0].Text, "Selected: model-b") {
		t.Errorf("expected model-b selected:\n%s", result.Content[0].Text)
	}

	result = callTool(t, srv, "pricer_optimize", map[string]any{
		"input_tokens": 1000,
		"min_quality":  0.95,
	})
	if !result.IsError || !strings.Contains(result.Content[0].Text, "quality") {
		t.Errorf("expected quality stage failure, got %s", result.Content[0].Text)
	}
}

func TestCatalogTool(t *testing.T) {
	srv := newTestServer(t)

	result := callTool(t, srv, "pricer_catalog", map[string]any{})
	text := result.Content[0].Text
	if !strings.Contains(text, "model-a") || !strings.Contains(text, "model-b") {
		t.Errorf("expected both models:\n%s", text)
	}

	result = callTool(t, srv, "pricer_catalog", map[string]any{"model_id": "model-b"})
	if strings.Contains(result.Content[0].Text, "model-a") {
		t.Errorf("filter ignored:\n%s", result.Content[0].Text)
	}
}

func TestAlertsAndMarkupTools(t *testing.T) {
	srv := newTestServer(t)

	result := callTool(t, srv, "pricer_alerts", map[string]any{})
	if result.Content[0].Text != "No alerts found." {
		t.Errorf("expected no alerts, got %s", result.Content[0].Text)
	}

	result = callTool(t, srv, "pricer_markup", map[string]any{})
	if !strings.Contains(result.Content[0].Text, "external 40.0%") {
		t.Errorf("unexpected markup output:\n%s", result.Content[0].Text)
	}
}

func TestUnknownTool(t *testing.T) {
	srv := newTestServer(t)
	result := callTool(t, srv, "nonexistent", map[string]any{})
	if !result.IsError {
		t.Error("expected isError=true for unknown tool")
	}
}

func TestUnknownMethod(t *testing.T) {
	srv := newTestServer(t)
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`4`),
		Method:  "unknown/method",
	})

	if resp.Error == nil {
		t.Fatal("expected error for unknown method")
	}
	if resp.Error.Code != CodeMethodNotFound {
		t.Errorf("error code = %d, want %d", resp.Error.Code, CodeMethodNotFound)
	}
}

func TestNotificationNoResponse(t *testing.T) {
	srv := newTestServer(t)
	line := []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n")

	var out bytes.Buffer
	if err := srv.Run(context.Background(), bytes.NewReader(line), &out); err != nil {
		t.Fatal(err)
	}
	if out.Len() != 0 {
		t.Errorf("expected no output for notification, got %s", out.String())
	}
}

func TestParseError(t *testing.T) {
	srv := newTestServer(t)
	var out bytes.Buffer
	if err := srv.Run(context.Background(), strings.NewReader("not json\n"), &out); err != nil {
		t.Fatal(err)
	}

	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != CodeParseError {
		t.Errorf("expected parse error, got %+v", resp.Error)
	}
}
