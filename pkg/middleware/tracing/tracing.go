// Package tracing starts an OpenTelemetry server span per HTTP request.
package tracing

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/nimburion/docstore/pkg/observability/logger"
)

// DefaultTracerName is the tracer scope used when Config.TracerName is empty.
const DefaultTracerName = "github.com/nimburion/docstore/http"

// Config holds configuration for the tracing middleware.
type Config struct {
	// TracerName identifies the tracer
	TracerName string

	// ExcludedPathPrefixes disables tracing for matching path prefixes.
	ExcludedPathPrefixes []string
}

// Tracing extracts the incoming trace context, starts a server span named
// after the route template and stores the span in the request context, so
// store spans started by handlers become its children.
func Tracing(cfg Config) gin.HandlerFunc {
	if cfg.TracerName == "" {
		cfg.TracerName = DefaultTracerName
	}

	return func(c *gin.Context) {
		req := c.Request
		for _, prefix := range cfg.ExcludedPathPrefixes {
			if strings.HasPrefix(req.URL.Path, prefix) {
				c.Next()
				return
			}
		}

		route := c.FullPath()
		if route == "" {
			route = req.URL.Path
		}

		// globals are read per request so providers installed after the
		// router was built still apply
		ctx := otel.GetTextMapPropagator().Extract(req.Context(), propagation.HeaderCarrier(req.Header))
		ctx, span := otel.Tracer(cfg.TracerName).Start(ctx, fmt.Sprintf("HTTP %s %s", req.Method, route),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", req.Method),
				attribute.String("http.route", route),
				attribute.String("http.target", req.URL.Path),
			),
		)
		defer span.End()

		if requestID := logger.RequestIDFromContext(ctx); requestID != "" {
			span.SetAttributes(attribute.String("request.id", requestID))
		}
		c.Request = req.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if errs := c.Errors.ByType(gin.ErrorTypeAny); len(errs) > 0 {
			span.RecordError(errs.Last().Err)
		}
		if status >= 500 {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
}
