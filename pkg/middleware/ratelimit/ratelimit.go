// Package ratelimit throttles requests per client with token buckets.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/nimburion/docstore/pkg/controller"
)

// RateLimiter defines the interface for rate limiting implementations.
// Implementations must be safe for concurrent use.
type RateLimiter interface {
	// Allow reports whether a request for key is within limits.
	Allow(key string) bool
}

// TokenBucketLimiter keeps one token bucket per key.
//
// Each key may burst up to burst requests and then sustains
// requestsPerSecond on average. Buckets are never evicted, so keys should
// come from a bounded population such as client IPs.
type TokenBucketLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewTokenBucketLimiter creates a new token bucket rate limiter.
//
// Example:
//
//	limiter := NewTokenBucketLimiter(100, 200) // 100 req/s, burst of 200
func NewTokenBucketLimiter(requestsPerSecond int, burst int) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		rate:  rate.Limit(requestsPerSecond),
		burst: burst,
	}
}

// Allow takes a token from key's bucket.
func (l *TokenBucketLimiter) Allow(key string) bool {
	return l.getLimiter(key).Allow()
}

func (l *TokenBucketLimiter) getLimiter(key string) *rate.Limiter {
	if limiter, ok := l.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}
	limiter, _ := l.limiters.LoadOrStore(key, rate.NewLimiter(l.rate, l.burst))
	return limiter.(*rate.Limiter)
}

// KeyFunc extracts the rate limiting key from a request.
type KeyFunc func(c *gin.Context) string

// RateLimit rejects requests over the limit with HTTP 429 and a Retry-After
// header. A nil keyFunc limits per client IP.
func RateLimit(limiter RateLimiter, keyFunc KeyFunc) gin.HandlerFunc {
	if keyFunc == nil {
		keyFunc = func(c *gin.Context) string {
			return ExtractIPFromRequest(c.Request)
		}
	}

	return func(c *gin.Context) {
		if !limiter.Allow(keyFunc(c)) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, controller.ErrorResponse{
				Error:   "rate_limited",
				Message: "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// ExtractIPFromRequest returns the client IP, preferring X-Forwarded-For and
// X-Real-IP over RemoteAddr.
func ExtractIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
