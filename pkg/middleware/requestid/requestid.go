// Package requestid assigns every request an identifier.
package requestid

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nimburion/docstore/pkg/middleware"
	"github.com/nimburion/docstore/pkg/observability/logger"
)

// RequestIDHeader is the HTTP header name for request ID.
const RequestIDHeader = "X-Request-ID"

// maxLength bounds client supplied IDs; longer ones are replaced.
const maxLength = 128

// RequestID generates a UUID for requests without an X-Request-ID header and
// keeps the client's one otherwise. The ID is echoed in the response headers
// and stored in the request context, where logger.WithContext picks it up.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" || len(requestID) > maxLength {
			requestID = uuid.New().String()
		}

		c.Set(string(middleware.RequestIDKey), requestID)
		c.Header(RequestIDHeader, requestID)
		c.Request = c.Request.WithContext(logger.ContextWithRequestID(c.Request.Context(), requestID))

		c.Next()
	}
}

// GetRequestID extracts the request ID from a context.
// Returns empty string if no request ID is found.
func GetRequestID(ctx context.Context) string {
	return logger.RequestIDFromContext(ctx)
}
