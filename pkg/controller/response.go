package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nimburion/docstore/pkg/observability/logger"
)

// SuccessResponse represents a successful response with data
type SuccessResponse struct {
	Data      any    `json:"data"`
	RequestID string `json:"request_id,omitempty"`
}

// Success sends data wrapped in a SuccessResponse with HTTP 200 OK.
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, SuccessResponse{
		Data:      data,
		RequestID: logger.RequestIDFromContext(c.Request.Context()),
	})
}

// NoContent sends HTTP 204 without a body.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error aborts the request with the response MapError derives from err.
func Error(c *gin.Context, err error) {
	status, body := MapError(c.Request.Context(), err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}
