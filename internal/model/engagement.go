package model

import (
	"encoding/json"
	"time"
)

// EngagementStatus enumerates engagement lifecycle states.
type EngagementStatus string

const (
	EngagementDraft     EngagementStatus = "draft"
	EngagementActive    EngagementStatus = "active"
	EngagementCompleted EngagementStatus = "completed"
	EngagementArchived  EngagementStatus = "archived"
)

// EngagementSummary is the backend's engagement overview. Fields the gateway
// does not interpret are kept in Extra.
type EngagementSummary struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	Status           EngagementStatus `json:"status"`
	ClientName       string           `json:"client_name,omitempty"`
	DiagnosticStatus DiagnosticStatus `json:"diagnostic_status,omitempty"`
	UpdatedAt        time.Time        `json:"updated_at"`
	Extra            json.RawMessage  `json:"extra,omitempty"`
}

// UpdateEngagementStatusRequest promotes an engagement.
type UpdateEngagementStatusRequest struct {
	Status EngagementStatus `json:"status"`
}
