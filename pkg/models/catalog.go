package models

import "time"

// ModelInfo is the read-only provider catalog view of a model.
type ModelInfo struct {
	ModelID      string              `json:"model_id" yaml:"model_id"`
	ProviderID   string              `json:"provider_id" yaml:"provider_id"`
	Capabilities []string            `json:"capabilities" yaml:"capabilities"`
	Available    bool                `json:"available" yaml:"available"`
	QualityScore float64             `json:"quality_score" yaml:"quality_score"`
	Thermal      *ThermalCostFactors `json:"thermal,omitempty" yaml:"thermal,omitempty"`
}

// RejectedUpdate is an upsert the catalog refused.
type RejectedUpdate struct {
	ModelID    string    `json:"model_id"`
	ProviderID string    `json:"provider_id"`
	Field      string    `json:"field"`
	Reason     string    `json:"reason"`
	Payload    string    `json:"payload,omitempty"`
	RejectedAt time.Time `json:"rejected_at"`
}
