package model

import "time"

// DiagnosticJob is a submitted diagnostic awaiting backend completion.
type DiagnosticJob struct {
	ID           string    `json:"id"`
	EngagementID string    `json:"engagement_id"`
	UserID       string    `json:"user_id"`
	Timestamp    time.Time `json:"timestamp"`
}

// Expired reports whether the job is older than ttl at now.
func (j DiagnosticJob) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(j.Timestamp) > ttl
}

// NotificationType distinguishes completion outcomes.
type NotificationType string

const (
	NotificationDiagnosticCompleted NotificationType = "diagnostic_completed"
	NotificationDiagnosticFailed    NotificationType = "diagnostic_failed"
)

// Notification is delivered to the user who submitted a diagnostic.
type Notification struct {
	Type         NotificationType `json:"type"`
	DiagnosticID string           `json:"diagnostic_id"`
	EngagementID string           `json:"engagement_id"`
	UserID       string           `json:"user_id"`
	Message      string           `json:"message"`
	Link         string           `json:"link,omitempty"`
	At           time.Time        `json:"at"`
}
