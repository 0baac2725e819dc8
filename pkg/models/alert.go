package models

import "time"

// AlertSeverity is derived from estimation confidence at creation time.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// AlertStatus is the lifecycle position of an alert.
type AlertStatus string

const (
	AlertPending      AlertStatus = "pending"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertAdjusted     AlertStatus = "adjusted"
	AlertResolved     AlertStatus = "resolved"
)

// Open reports whether the status still needs admin attention.
func (s AlertStatus) Open() bool {
	return s == AlertPending || s == AlertAcknowledged
}

// AlertResolution records who closed an alert and how.
type AlertResolution struct {
	By     string    `json:"by"`
	At     time.Time `json:"at"`
	Source string    `json:"source"`
}

// EstimatedCostAlert is raised when a model's cost is estimated.
type EstimatedCostAlert struct {
	ID             string           `json:"id"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	Severity       AlertSeverity    `json:"severity"`
	ModelID        string           `json:"model_id"`
	ProviderID     string           `json:"provider_id"`
	Reason         EstimationReason `json:"reason"`
	EstimatedCost  BaseCosts        `json:"estimated_cost"`
	Confidence     float64          `json:"confidence"`
	SourceModels   []SourceModel    `json:"source_models,omitempty"`
	AffectedPrice  float64          `json:"affected_price"`
	Status         AlertStatus      `json:"status"`
	AcknowledgedBy string           `json:"acknowledged_by,omitempty"`
	AdjustedCost   *BaseCosts       `json:"adjusted_cost,omitempty"`
	Resolution     *AlertResolution `json:"resolution,omitempty"`
}

// Clone returns a deep copy of the alert.
func (a EstimatedCostAlert) Clone() EstimatedCostAlert {
	if a.SourceModels != nil {
		a.SourceModels = append([]SourceModel(nil), a.SourceModels...)
	}
	if a.AdjustedCost != nil {
		c := *a.AdjustedCost
		a.AdjustedCost = &c
	}
	if a.Resolution != nil {
		r := *a.Resolution
		a.Resolution = &r
	}
	return a
}
