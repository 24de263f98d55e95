// Package timeout bounds request handling with a context deadline.
package timeout

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nimburion/docstore/pkg/controller"
	"github.com/nimburion/docstore/pkg/observability/logger"
)

// DefaultTimeout is used when Middleware gets a non-positive duration.
const DefaultTimeout = 15 * time.Second

// Middleware attaches a deadline to the request context. Store calls made
// by the handler inherit it. When the deadline passes before anything was
// written the client gets 504.
func Middleware(d time.Duration) gin.HandlerFunc {
	if d <= 0 {
		d = DefaultTimeout
	}
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if ctx.Err() == context.DeadlineExceeded && !c.Writer.Written() {
			c.AbortWithStatusJSON(http.StatusGatewayTimeout, controller.ErrorResponse{
				Error:     controller.CategoryTimeout,
				Message:   "request timeout",
				RequestID: logger.RequestIDFromContext(ctx),
			})
		}
	}
}
