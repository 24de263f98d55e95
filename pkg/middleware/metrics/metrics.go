// Package metrics records Prometheus metrics for HTTP requests.
package metrics

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nimburion/docstore/pkg/observability/metrics"
)

// unmatchedRoute labels requests that hit no route.
const unmatchedRoute = "unmatched"

// Metrics records request duration, request count and in-flight requests.
// Requests are labelled by route template so path parameters do not
// multiply series.
func Metrics(m *metrics.HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		m.IncrementInFlight()
		defer m.DecrementInFlight()

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		m.Record(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
