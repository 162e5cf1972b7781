package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/diagnostic-gateway/internal/model"
	"github.com/stemsi/diagnostic-gateway/internal/response"
)

// RequireRole checks that the JWT carries one of the given roles.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		for _, r := range roles {
			if claims.Role == r {
				c.Next()
				return
			}
		}

		response.AbortFail(c, http.StatusForbidden, response.ErrForbidden)
	}
}

// RequireSurveyAccess allows roles that may answer and submit diagnostics.
func RequireSurveyAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}
		if !claims.Role.CanTakeSurvey() {
			response.AbortFail(c, http.StatusForbidden, response.ErrSurveyNotAllow)
			return
		}
		c.Next()
	}
}

// RequireReportAccess allows roles that may download AI reports.
func RequireReportAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}
		if !claims.Role.CanDownloadReports() {
			response.AbortFail(c, http.StatusForbidden, response.ErrAdvisorOnly)
			return
		}
		c.Next()
	}
}
