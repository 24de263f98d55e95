package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nimburion/docstore/pkg/health"
)

// liveness reports the last readiness the store client emitted without
// contacting the backend.
func liveness(checker health.Checker) gin.HandlerFunc {
	return func(c *gin.Context) {
		result := checker.Check(c.Request.Context())
		status := http.StatusOK
		if result.Status != health.StatusHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, result)
	}
}

// readiness runs every registered check.
func readiness(registry *health.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		result := registry.Check(c.Request.Context())
		if !result.IsHealthy() {
			c.JSON(http.StatusServiceUnavailable, result)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
