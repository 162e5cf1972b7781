package middleware

import (
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/diagnostic-gateway/internal/repository"
	"github.com/stemsi/diagnostic-gateway/internal/response"
)

// ContextKeySessionKey is the Gin context key for the survey session key.
const ContextKeySessionKey = "session_key"

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]{1,64}$`)

// ValidID reports whether s looks like a backend resource id.
func ValidID(s string) bool {
	return idPattern.MatchString(s)
}

// SurveySession resolves the survey session for the caller and the
// :engagement_id route param. Must run after RequireJWT.
func SurveySession() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		engagementID := c.Param("engagement_id")
		if !ValidID(engagementID) {
			response.AbortFail(c, http.StatusBadRequest, response.ErrInvalidID)
			return
		}

		c.Set(ContextKeySessionKey, repository.SessionKey{
			UserID:       claims.UserID,
			EngagementID: engagementID,
		})
		c.Next()
	}
}

// GetSessionKey retrieves the survey session key from the Gin context.
func GetSessionKey(c *gin.Context) (repository.SessionKey, bool) {
	val, exists := c.Get(ContextKeySessionKey)
	if !exists {
		return repository.SessionKey{}, false
	}
	key, ok := val.(repository.SessionKey)
	return key, ok
}
