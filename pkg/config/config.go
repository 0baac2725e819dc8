package config

import (
	"fmt"
	"os"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/pario-ai/pricer/pkg/markup"
	"github.com/pario-ai/pricer/pkg/models"
	"github.com/pario-ai/pricer/pkg/optimizer"
	"github.com/pario-ai/pricer/pkg/pricing"
)

// Config holds all pricer configuration.
type Config struct {
	DBPath    string              `yaml:"db_path"`
	Log       LogConfig           `yaml:"log"`
	Markup    models.MarkupConfig `yaml:"markup"`
	Optimizer optimizer.Options   `yaml:"optimizer"`
	Sweeper   SweeperConfig       `yaml:"sweeper"`
	Server    ServerConfig        `yaml:"server"`
	Metrics   MetricsConfig       `yaml:"metrics"`
	Models    []models.ModelInfo  `yaml:"models"`
}

// LogConfig controls structured logging.
// Level is debug, info, warn or error; Format is text or json.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SweeperConfig controls the periodic maintenance job.
type SweeperConfig struct {
	Schedule               string `yaml:"schedule"`
	RejectionRetentionDays int    `yaml:"rejection_retention_days"`
}

// ServerConfig controls the HTTP API started by serve. Admin routes are
// disabled when AdminToken is empty.
type ServerConfig struct {
	Listen     string `yaml:"listen"`
	AdminToken string `yaml:"admin_token"`
}

// MetricsConfig controls Prometheus metric naming.
type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		DBPath: "pricer.db",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Markup: models.MarkupConfig{
			Defaults: models.MarkupDefaults{
				ExternalPercent:   40,
				SelfHostedPercent: 75,
			},
		},
		Optimizer: optimizer.DefaultOptions(),
		Sweeper: SweeperConfig{
			Schedule:               "@every 1h",
			RejectionRetentionDays: 30,
		},
		Server: ServerConfig{
			Listen: ":8080",
		},
		Metrics: MetricsConfig{
			Namespace: "pricer",
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// Validate checks values that cannot be defaulted. Markup problems are
// returned as markup.ConfigurationError.
func (c *Config) Validate() error {
	if err := markup.Validate(c.Markup); err != nil {
		return err
	}
	o := c.Optimizer
	if o.NearBudgetPercent < 0 || o.NearBudgetPercent > 100 {
		return fmt.Errorf("optimizer.near_budget_percent must be within 0-100, got %v", o.NearBudgetPercent)
	}
	if o.LowMarginPercent < 0 || o.LowMarginPercent > 100 {
		return fmt.Errorf("optimizer.low_margin_percent must be within 0-100, got %v", o.LowMarginPercent)
	}
	if o.VolumeDiscountThreshold < 0 {
		return fmt.Errorf("optimizer.volume_discount_threshold must not be negative")
	}
	if c.Sweeper.Schedule != "" {
		if _, err := cron.ParseStandard(c.Sweeper.Schedule); err != nil {
			return fmt.Errorf("sweeper.schedule %q: %w", c.Sweeper.Schedule, err)
		}
	}
	if c.Sweeper.RejectionRetentionDays < 0 {
		return fmt.Errorf("sweeper.rejection_retention_days must not be negative")
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	seen := make(map[string]bool, len(c.Models))
	for _, m := range c.Models {
		if m.ModelID == "" {
			return fmt.Errorf("models: entry without model_id")
		}
		if seen[m.ModelID] {
			return fmt.Errorf("models: duplicate model_id %q", m.ModelID)
		}
		seen[m.ModelID] = true
		if err := pricing.ValidateThermal(m.Thermal); err != nil {
			return fmt.Errorf("models[%s].thermal: %w", m.ModelID, err)
		}
	}
	return nil
}
