package response

import (
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/diagnostic-gateway/internal/backend"
)

// ContextKeyRequestID is the Gin context key for the request ID.
const ContextKeyRequestID = "request_id"

// HeaderRequestID carries the request ID in both directions and on calls to
// the backend.
const HeaderRequestID = "X-Request-ID"

// Client-supplied IDs end up in logs, so only short opaque tokens are kept.
var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// RequestIDMiddleware tags every request with an ID, reusing the caller's
// X-Request-ID when it looks sane. The ID is echoed in the response and
// attached to the request context for backend calls.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(HeaderRequestID)
		if !requestIDPattern.MatchString(reqID) {
			reqID = uuid.NewString()
		}
		c.Set(ContextKeyRequestID, reqID)
		c.Header(HeaderRequestID, reqID)
		c.Request = c.Request.WithContext(backend.WithRequestID(c.Request.Context(), reqID))
		c.Next()
	}
}
