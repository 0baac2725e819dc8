package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pario-ai/pricer/pkg/markup"
	"github.com/pario-ai/pricer/pkg/models"
	"github.com/pario-ai/pricer/pkg/pricing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Markup.Defaults.ExternalPercent != 40 || cfg.Markup.Defaults.SelfHostedPercent != 75 {
		t.Errorf("unexpected markup defaults %+v", cfg.Markup.Defaults)
	}
	if cfg.Optimizer.NearBudgetPercent != 80 || cfg.Optimizer.LowMarginPercent != 20 {
		t.Errorf("unexpected optimizer defaults %+v", cfg.Optimizer)
	}
	if cfg.Sweeper.Schedule != "@every 1h" {
		t.Errorf("expected hourly sweep, got %s", cfg.Sweeper.Schedule)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_DB_DIR", "/var/lib/pricer")
	t.Setenv("TEST_ADMIN_TOKEN", "s3cret")

	content := `
db_path: "${TEST_DB_DIR}/pricer.db"
server:
  admin_token: "${TEST_ADMIN_TOKEN}"
log:
  level: debug
  format: json
markup:
  defaults:
    external_percent: 35
    self_hosted_percent: 60
  provider_overrides:
    acme:
      percent: 25
      set_by: ops
      reason: partner deal
  model_overrides:
    acme-large:
      percent: 10
      set_by: ops
      expires_at: 2030-01-01T00:00:00Z
optimizer:
  low_margin_percent: 15
models:
  - model_id: acme-large
    provider_id: acme
    capabilities: [chat, tools]
    available: true
    quality_score: 0.9
`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.DBPath != "/var/lib/pricer/pricer.db" {
		t.Errorf("env var not expanded: got %s", cfg.DBPath)
	}
	if cfg.Server.AdminToken != "s3cret" || cfg.Server.Listen != ":8080" {
		t.Errorf("server section not merged over defaults: %+v", cfg.Server)
	}
	if cfg.Markup.Defaults.ExternalPercent != 35 {
		t.Errorf("expected 35, got %v", cfg.Markup.Defaults.ExternalPercent)
	}
	if cfg.Markup.ProviderOverrides["acme"].Percent != 25 {
		t.Errorf("provider override not parsed: %+v", cfg.Markup.ProviderOverrides)
	}
	o := cfg.Markup.ModelOverrides["acme-large"]
	if o.ExpiresAt == nil || o.ExpiresAt.Year() != 2030 {
		t.Errorf("model override expiry not parsed: %+v", o)
	}
	if cfg.Optimizer.LowMarginPercent != 15 || cfg.Optimizer.NearBudgetPercent != 80 {
		t.Errorf("optimizer section not merged over defaults: %+v", cfg.Optimizer)
	}
	if len(cfg.Models) != 1 || len(cfg.Models[0].Capabilities) != 2 {
		t.Errorf("models not parsed: %+v", cfg.Models)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidateRejectsNegativeMarkup(t *testing.T) {
	cfg := Default()
	cfg.Markup.Defaults.ExternalPercent = -5
	err := cfg.Validate()
	if !errors.Is(err, markup.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestValidateRejectsDuplicateModels(t *testing.T) {
	cfg := Default()
	cfg.Models = []models.ModelInfo{{ModelID: "a"}, {ModelID: "b"}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("distinct models should validate: %v", err)
	}
	cfg.Models = append(cfg.Models, models.ModelInfo{ModelID: "a"})
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for duplicate model")
	}
}

func TestValidateRejectsNegativeThermalCost(t *testing.T) {
	cfg := Default()
	cfg.Models = []models.ModelInfo{{
		ModelID: "local-llama",
		Thermal: &models.ThermalCostFactors{
			State:  models.ThermalCold,
			Warmup: models.WarmupCost{EstimatedCost: -2},
		},
	}}
	if err := cfg.Validate(); !errors.Is(err, pricing.ErrInvalidThermal) {
		t.Errorf("expected ErrInvalidThermal, got %v", err)
	}
	cfg.Models[0].Thermal.Warmup.EstimatedCost = 2
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid thermal factors rejected: %v", err)
	}
}

func TestValidateRejectsUnknownLogFormat(t *testing.T) {
	cfg := Default()
	cfg.Log.Format = "xml"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown log format")
	}
}

func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("markup:\n  defaults:\n    external_percent: 40\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reloaded := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, nil, func(c *Config) { reloaded <- c })
	}()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("markup:\n  defaults:\n    external_percent: -1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(ReloadDebounce * 2)
	select {
	case c := <-reloaded:
		t.Fatalf("invalid config should not be delivered: %+v", c.Markup.Defaults)
	default:
	}

	if err := os.WriteFile(path, []byte("markup:\n  defaults:\n    external_percent: 55\n"), 0644); err != nil {
		t.Fatal(err)
	}
	select {
	case c := <-reloaded:
		if c.Markup.Defaults.ExternalPercent != 55 {
			t.Errorf("expected 55, got %v", c.Markup.Defaults.ExternalPercent)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("watch returned %v", err)
	}
}

func TestValidateRejectsBadSchedule(t *testing.T) {
	cfg := Default()
	cfg.Sweeper.Schedule = "every hour"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unparseable schedule")
	}
	cfg.Sweeper.Schedule = "0 3 * * *"
	if err := cfg.Validate(); err != nil {
		t.Errorf("standard cron expression should validate: %v", err)
	}
}
