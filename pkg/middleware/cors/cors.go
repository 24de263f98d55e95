// Package cors implements CORS for browser clients of the document API.
package cors

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Config configures CORS middleware behavior.
type Config struct {
	// AllowOrigins lists exact origins, "*" for any origin, or patterns with
	// a single "*" such as "https://*.example.com".
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// DefaultConfig returns CORS defaults for the document routes. No origin is
// allowed until AllowOrigins is set.
func DefaultConfig() Config {
	return Config{
		AllowOrigins:  []string{},
		AllowMethods:  []string{http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Content-Type", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
}

// Middleware answers preflight requests and sets CORS headers for allowed
// origins. It must run on the engine so preflights for unrouted OPTIONS
// requests reach it.
func Middleware(cfg Config) gin.HandlerFunc {
	cfg = normalize(cfg)

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}

		preflight := isPreflight(c.Request)
		if !cfg.isOriginAllowed(origin) {
			if preflight {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.Next()
			return
		}

		h := c.Writer.Header()
		appendVary(h, "Origin")
		cfg.setOriginHeaders(h, origin)
		if len(cfg.ExposeHeaders) > 0 {
			h.Set("Access-Control-Expose-Headers", strings.Join(cfg.ExposeHeaders, ", "))
		}

		if preflight {
			appendVary(h, "Access-Control-Request-Method")
			appendVary(h, "Access-Control-Request-Headers")
			h.Set("Access-Control-Allow-Methods", strings.Join(cfg.AllowMethods, ", "))
			if len(cfg.AllowHeaders) > 0 {
				h.Set("Access-Control-Allow-Headers", strings.Join(cfg.AllowHeaders, ", "))
			}
			if cfg.MaxAge > 0 {
				h.Set("Access-Control-Max-Age", strconv.Itoa(int(cfg.MaxAge/time.Second)))
			}
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func normalize(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.AllowMethods == nil {
		cfg.AllowMethods = defaults.AllowMethods
	}
	if cfg.AllowHeaders == nil {
		cfg.AllowHeaders = defaults.AllowHeaders
	}
	if cfg.ExposeHeaders == nil {
		cfg.ExposeHeaders = defaults.ExposeHeaders
	}
	origins := make([]string, 0, len(cfg.AllowOrigins))
	for _, origin := range cfg.AllowOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	cfg.AllowOrigins = origins
	methods := make([]string, len(cfg.AllowMethods))
	for i, method := range cfg.AllowMethods {
		methods[i] = strings.ToUpper(strings.TrimSpace(method))
	}
	cfg.AllowMethods = methods
	return cfg
}

func isPreflight(req *http.Request) bool {
	return req.Method == http.MethodOptions && req.Header.Get("Access-Control-Request-Method") != ""
}

func (cfg Config) isOriginAllowed(origin string) bool {
	for _, allowed := range cfg.AllowOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) || wildcardMatch(allowed, origin) {
			return true
		}
	}
	return false
}

func wildcardMatch(pattern, value string) bool {
	if strings.Count(pattern, "*") != 1 {
		return false
	}
	prefix, suffix, _ := strings.Cut(pattern, "*")
	return len(value) > len(prefix)+len(suffix) && strings.HasPrefix(value, prefix) && strings.HasSuffix(value, suffix)
}

// setOriginHeaders echoes the origin when credentials are allowed, since
// browsers reject a wildcard together with credentials.
func (cfg Config) setOriginHeaders(h http.Header, origin string) {
	if cfg.AllowCredentials {
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		return
	}
	for _, allowed := range cfg.AllowOrigins {
		if allowed == "*" {
			h.Set("Access-Control-Allow-Origin", "*")
			return
		}
	}
	h.Set("Access-Control-Allow-Origin", origin)
}

func appendVary(h http.Header, value string) {
	current := h.Get("Vary")
	if current == "" {
		h.Set("Vary", value)
		return
	}
	for _, part := range strings.Split(current, ",") {
		if strings.EqualFold(strings.TrimSpace(part), value) {
			return
		}
	}
	h.Set("Vary", current+", "+value)
}
