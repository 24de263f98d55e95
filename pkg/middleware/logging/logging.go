// Package logging logs one entry per HTTP request.
package logging

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nimburion/docstore/pkg/observability/logger"
)

// Mode defines logging verbosity for matching request paths.
type Mode string

// Logging mode constants
const (
	// ModeOff disables request logging
	ModeOff Mode = "off"
	// ModeMinimal logs method, path, status and duration only
	ModeMinimal Mode = "minimal"
	// ModeFull adds client details and logs request start
	ModeFull Mode = "full"
)

// Config configures request logging middleware behavior.
type Config struct {
	LogStart             bool
	ExcludedPathPrefixes []string
	PathPolicies         []PathPolicy
}

// PathPolicy configures a logging mode for a path prefix.
type PathPolicy struct {
	Prefix string
	Mode   Mode
}

// DefaultConfig logs every request except health probes and metrics scrapes,
// which are logged at minimal verbosity.
func DefaultConfig() Config {
	return Config{
		PathPolicies: []PathPolicy{
			{Prefix: "/health", Mode: ModeMinimal},
			{Prefix: "/metrics", Mode: ModeMinimal},
		},
	}
}

// Logging creates middleware with default configuration.
func Logging(log logger.Logger) gin.HandlerFunc {
	return WithConfig(log, DefaultConfig())
}

// WithConfig creates request logging middleware. Responses with status 500
// and above are logged at error level, as are requests whose handlers
// attached errors with c.Error.
func WithConfig(log logger.Logger, cfg Config) gin.HandlerFunc {
	for i := range cfg.PathPolicies {
		cfg.PathPolicies[i].Mode = parseMode(cfg.PathPolicies[i].Mode)
	}

	return func(c *gin.Context) {
		req := c.Request
		mode := cfg.modeForPath(req.URL.Path)
		if mode == ModeOff {
			c.Next()
			return
		}

		start := time.Now()
		reqLog := log.WithContext(req.Context())
		if cfg.LogStart && mode == ModeFull {
			reqLog.Info("request started", "method", req.Method, "path", req.URL.Path)
		}

		c.Next()

		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if mode == ModeFull {
			fields = append(fields,
				"remote_addr", c.ClientIP(),
				"user_agent", req.UserAgent(),
				"bytes_out", c.Writer.Size(),
			)
		}

		if errs := c.Errors.ByType(gin.ErrorTypeAny); len(errs) > 0 || c.Writer.Status() >= 500 {
			if len(errs) > 0 {
				fields = append(fields, "error", errs.String())
			}
			reqLog.Error("request failed", fields...)
			return
		}
		reqLog.Info("request completed", fields...)
	}
}

func (c Config) modeForPath(path string) Mode {
	for _, prefix := range c.ExcludedPathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return ModeOff
		}
	}

	bestLen := -1
	bestMode := ModeFull
	for _, policy := range c.PathPolicies {
		if strings.TrimSpace(policy.Prefix) == "" {
			continue
		}
		if strings.HasPrefix(path, policy.Prefix) && len(policy.Prefix) > bestLen {
			bestLen = len(policy.Prefix)
			bestMode = policy.Mode
		}
	}
	return bestMode
}

func parseMode(mode Mode) Mode {
	switch strings.ToLower(strings.TrimSpace(string(mode))) {
	case string(ModeOff):
		return ModeOff
	case string(ModeMinimal):
		return ModeMinimal
	default:
		return ModeFull
	}
}
