// Package requestsize bounds request bodies.
package requestsize

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nimburion/docstore/pkg/controller"
)

// Middleware enforces a maximum request body size in bytes.
// A non-positive maxBytes disables the middleware. Bodies without a declared
// length are capped while read; handlers see the read error and should
// answer through TooLarge.
func Middleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes <= 0 || c.Request.Body == nil {
			c.Next()
			return
		}

		// Fail fast when Content-Length is declared and exceeds the limit.
		if c.Request.ContentLength > maxBytes {
			TooLarge(c, maxBytes)
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// TooLarge aborts with HTTP 413.
func TooLarge(c *gin.Context, maxBytes int64) {
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, controller.ErrorResponse{
		Error:   controller.CategoryValidation,
		Message: fmt.Sprintf("request body exceeds maximum allowed size of %d bytes", maxBytes),
		Details: map[string]any{"max_size": maxBytes},
	})
}
