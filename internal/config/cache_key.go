package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SurveyEditsKey returns the hash holding a user's unsaved answers for an engagement.
func (r *CacheKeyStruct) SurveyEditsKey(userID, engagementID string) string {
	return fmt.Sprintf("user:%s:engagement:%s:survey_edits", userID, engagementID)
}

// SurveyMetaKey returns the hash holding a user's page index and promotion flag.
func (r *CacheKeyStruct) SurveyMetaKey(userID, engagementID string) string {
	return fmt.Sprintf("user:%s:engagement:%s:survey_meta", userID, engagementID)
}

// DiagnosticJobsKey returns the hash of diagnostics awaiting backend completion.
func (r *CacheKeyStruct) DiagnosticJobsKey() string {
	return "diagnostic:jobs"
}

// EngagementSummariesKey returns the hash of cached summaries for an
// engagement, one field per user.
func (r *CacheKeyStruct) EngagementSummariesKey(engagementID string) string {
	return fmt.Sprintf("engagement:%s:summaries", engagementID)
}

// RecentNotificationsKey returns the capped list of a user's latest notifications.
func (r *CacheKeyStruct) RecentNotificationsKey(userID string) string {
	return fmt.Sprintf("user:%s:notifications", userID)
}

// UserNotificationChannel returns the Redis PubSub channel for a user's notifications.
func (r *CacheKeyStruct) UserNotificationChannel(userID string) string {
	return fmt.Sprintf("notifications:user:%s", userID)
}

var CacheKey = NewCacheKeyStruct()
