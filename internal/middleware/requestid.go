package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/otapush/acquisition/internal/observability"
)

// RequestIDHeader is the header carrying the request correlation id.
const RequestIDHeader = "X-Request-ID"

// RequestIDKey is the Gin context key under which the request id is stored.
const RequestIDKey = "request_id"

// RequestID returns a Gin middleware that assigns each request a correlation
// id. An inbound X-Request-ID is kept so ids survive load balancer hops;
// otherwise a new UUID is generated. The id is stored on the Gin context and
// in the request context for log correlation, and echoed in the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		c.Set(RequestIDKey, requestID)
		c.Request = c.Request.WithContext(
			observability.ContextWithRequestID(c.Request.Context(), requestID),
		)
		c.Header(RequestIDHeader, requestID)

		c.Next()
	}
}
