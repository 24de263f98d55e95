// Package securityheaders sets hardening headers on every response.
package securityheaders

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Config defines the headers applied to responses.
type Config struct {
	// AllowedHosts rejects requests for other Host values with 403. Empty
	// allows every host.
	AllowedHosts []string

	// SSLProxyHeaders mark a request as secure when a proxy terminated TLS.
	SSLProxyHeaders map[string]string

	STSSeconds            int64
	STSIncludeSubdomains  bool
	FrameOptions          string
	ContentSecurityPolicy string
	ReferrerPolicy        string
	// NoStore sends Cache-Control: no-store so intermediaries never cache
	// documents.
	NoStore bool
}

// DefaultConfig returns strict defaults for a JSON API.
func DefaultConfig() Config {
	return Config{
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		STSSeconds:            31536000,
		STSIncludeSubdomains:  true,
		FrameOptions:          "DENY",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
		NoStore:               true,
	}
}

// Middleware applies the configured headers before the handler runs.
func Middleware(cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !allowedHost(c.Request, cfg.AllowedHosts) {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		applyHeaders(c.Writer.Header(), cfg, isSecureRequest(c.Request, cfg))
		c.Next()
	}
}

func applyHeaders(h http.Header, cfg Config, secureReq bool) {
	h.Set("X-Content-Type-Options", "nosniff")
	if cfg.FrameOptions != "" {
		h.Set("X-Frame-Options", cfg.FrameOptions)
	}
	if cfg.ContentSecurityPolicy != "" {
		h.Set("Content-Security-Policy", cfg.ContentSecurityPolicy)
	}
	if cfg.ReferrerPolicy != "" {
		h.Set("Referrer-Policy", cfg.ReferrerPolicy)
	}
	if cfg.NoStore {
		h.Set("Cache-Control", "no-store")
	}

	// HSTS is only meaningful on secure requests.
	if secureReq && cfg.STSSeconds > 0 {
		value := fmt.Sprintf("max-age=%d", cfg.STSSeconds)
		if cfg.STSIncludeSubdomains {
			value += "; includeSubDomains"
		}
		h.Set("Strict-Transport-Security", value)
	}
}

func allowedHost(req *http.Request, allowedHosts []string) bool {
	if len(allowedHosts) == 0 {
		return true
	}
	host := req.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	for _, allowed := range allowedHosts {
		if strings.EqualFold(strings.TrimSpace(allowed), host) {
			return true
		}
	}
	return false
}

func isSecureRequest(req *http.Request, cfg Config) bool {
	if req.TLS != nil {
		return true
	}
	for headerName, expected := range cfg.SSLProxyHeaders {
		if strings.EqualFold(strings.TrimSpace(req.Header.Get(headerName)), expected) {
			return true
		}
	}
	return false
}
