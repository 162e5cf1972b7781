package model

// SessionState enumerates the survey session state machine.
type SessionState string

const (
	SessionUninitialized SessionState = "uninitialized"
	SessionLoading       SessionState = "loading"
	SessionReady         SessionState = "ready"
	SessionSaving        SessionState = "saving"
	SessionSubmitting    SessionState = "submitting"
	SessionSubmitted     SessionState = "submitted"
	SessionFailed        SessionState = "failed"
	SessionNotFound      SessionState = "not_found"
)

// SessionView is the snapshot returned to the UI after every operation.
type SessionView struct {
	EngagementID     string           `json:"engagement_id"`
	DiagnosticID     string           `json:"diagnostic_id,omitempty"`
	DiagnosticStatus DiagnosticStatus `json:"diagnostic_status,omitempty"`
	State            SessionState     `json:"state"`
	PageIndex        int              `json:"page_index"`
	TotalPages       int              `json:"total_pages"`
	PageTitle        string           `json:"page_title"`
	Progress         float64          `json:"progress"`
	IsFirstPage      bool             `json:"is_first_page"`
	IsLastPage       bool             `json:"is_last_page"`
	Elements         []VisibleElement `json:"elements"`
	UnsavedFields    []string         `json:"unsaved_fields"`
	LastError        string           `json:"last_error,omitempty"`
}

// RecordAnswerRequest writes one answer into the local edits.
type RecordAnswerRequest struct {
	Name  string `json:"name" binding:"required,max=200,fieldname"`
	Value any    `json:"value"`
}
