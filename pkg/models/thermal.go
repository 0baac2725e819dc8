package models

// ThermalState is the readiness tier of a self-hosted model.
type ThermalState string

const (
	ThermalOff       ThermalState = "OFF"
	ThermalCold      ThermalState = "COLD"
	ThermalWarm      ThermalState = "WARM"
	ThermalHot       ThermalState = "HOT"
	ThermalAutomatic ThermalState = "AUTOMATIC"
)

// WarmupCost is the one-time cost of bringing a cold model up.
type WarmupCost struct {
	EstimatedCost            float64 `json:"estimated_cost" yaml:"estimated_cost"`
	EstimatedDurationSeconds int     `json:"estimated_duration_seconds" yaml:"estimated_duration_seconds"`
}

// ThermalCostFactors are supplied by the infra monitor for self-hosted models.
type ThermalCostFactors struct {
	State               ThermalState             `json:"state" yaml:"state"`
	Warmup              WarmupCost               `json:"warmup" yaml:"warmup"`
	HourlyCostByState   map[ThermalState]float64 `json:"hourly_cost_by_state,omitempty" yaml:"hourly_cost_by_state,omitempty"`
	AmortizedPerRequest float64                  `json:"amortized_per_request" yaml:"amortized_per_request"`
}
