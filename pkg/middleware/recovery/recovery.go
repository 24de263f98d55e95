// Package recovery turns handler panics into 500 responses.
package recovery

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/nimburion/docstore/pkg/controller"
	"github.com/nimburion/docstore/pkg/observability/logger"
)

// Recovery catches panics in later handlers, logs them with the stack trace
// and answers HTTP 500 unless a response was already written.
func Recovery(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if r == http.ErrAbortHandler {
				panic(r)
			}

			requestID := logger.RequestIDFromContext(c.Request.Context())
			log.Error("panic recovered",
				"request_id", requestID,
				"panic", r,
				"stack", string(debug.Stack()),
			)

			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, controller.ErrorResponse{
				Error:     controller.CategoryInternal,
				Message:   "an unexpected error occurred",
				RequestID: requestID,
			})
		}()

		c.Next()
	}
}
