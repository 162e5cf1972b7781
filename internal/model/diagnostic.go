package model

import (
	"encoding/json"
	"time"
)

// DiagnosticStatus enumerates the lifecycle of a diagnostic.
type DiagnosticStatus string

const (
	DiagnosticDraft      DiagnosticStatus = "draft"
	DiagnosticInProgress DiagnosticStatus = "in_progress"
	DiagnosticProcessing DiagnosticStatus = "processing"
	DiagnosticCompleted  DiagnosticStatus = "completed"
	DiagnosticArchived   DiagnosticStatus = "archived"
	DiagnosticFailed     DiagnosticStatus = "failed"
)

var diagnosticRank = map[DiagnosticStatus]int{
	DiagnosticDraft:      0,
	DiagnosticInProgress: 1,
	DiagnosticProcessing: 2,
	DiagnosticCompleted:  3,
	DiagnosticFailed:     3,
	DiagnosticArchived:   4,
}

// Terminal reports whether the backend finished processing.
func (s DiagnosticStatus) Terminal() bool {
	return s == DiagnosticCompleted || s == DiagnosticFailed
}

// Editable reports whether answers may still be saved.
func (s DiagnosticStatus) Editable() bool {
	return s == "" || s == DiagnosticDraft || s == DiagnosticInProgress
}

// CanAdvanceTo reports whether moving from s to next keeps the status
// monotonic. failed is only reachable from processing.
func (s DiagnosticStatus) CanAdvanceTo(next DiagnosticStatus) bool {
	if next == DiagnosticFailed {
		return s == DiagnosticProcessing || s == DiagnosticFailed
	}
	cur, ok := diagnosticRank[s]
	if !ok {
		cur = -1
	}
	nr, ok := diagnosticRank[next]
	if !ok {
		return false
	}
	return nr >= cur
}

// Diagnostic mirrors the backend's diagnostic record. Server-computed fields
// are carried verbatim and never modified by the gateway.
type Diagnostic struct {
	ID           string           `json:"id"`
	EngagementID string           `json:"engagement_id"`
	Status       DiagnosticStatus `json:"status"`
	Responses    map[string]any   `json:"responses"`
	AIAnalysis   json.RawMessage  `json:"ai_analysis,omitempty"`
	Scores       json.RawMessage  `json:"scores,omitempty"`
	CompletedBy  string           `json:"completed_by,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// DiagnosticStatusInfo is the lightweight status payload used while polling.
type DiagnosticStatusInfo struct {
	Status      DiagnosticStatus `json:"status"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// PatchDiagnosticRequest is sent to the backend to persist answers.
type PatchDiagnosticRequest struct {
	Responses map[string]any   `json:"responses"`
	Status    DiagnosticStatus `json:"status"`
}

// SubmitDiagnosticRequest hands a diagnostic off for processing.
type SubmitDiagnosticRequest struct {
	CompletedBy string `json:"completed_by"`
}

// Report is a downloaded diagnostic report.
type Report struct {
	Filename    string
	ContentType string
	Body        []byte
}
