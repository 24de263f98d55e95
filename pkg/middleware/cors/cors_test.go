package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(cfg Config) *gin.Engine {
	engine := gin.New()
	engine.Use(Middleware(cfg))
	engine.GET("/v1/documents", func(c *gin.Context) { c.Status(http.StatusOK) })
	return engine
}

func request(engine *gin.Engine, method, origin string, preflight bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/v1/documents", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if preflight {
		req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_AllowedOrigin(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowOrigins = []string{"https://app.example.com"}
	rec := request(newEngine(cfg), http.MethodGet, "https://app.example.com", false)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("unexpected allow origin %q", got)
	}
	if got := rec.Header().Get("Access-Control-Expose-Headers"); got != "X-Request-ID" {
		t.Fatalf("unexpected expose headers %q", got)
	}
}

func TestMiddleware_Preflight(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowOrigins = []string{"https://*.example.com"}
	rec := request(newEngine(cfg), http.MethodOptions, "https://admin.example.com", true)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, PUT, DELETE, OPTIONS" {
		t.Fatalf("unexpected allow methods %q", got)
	}
	if got := rec.Header().Get("Access-Control-Max-Age"); got != "43200" {
		t.Fatalf("unexpected max age %q", got)
	}
}

func TestMiddleware_RejectedOrigin(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowOrigins = []string{"https://app.example.com"}
	engine := newEngine(cfg)

	if rec := request(engine, http.MethodOptions, "https://evil.example.org", true); rec.Code != http.StatusForbidden {
		t.Fatalf("expected preflight 403, got %d", rec.Code)
	}
	rec := request(engine, http.MethodGet, "https://evil.example.org", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected simple request to pass through, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no allow origin, got %q", got)
	}
}

func TestMiddleware_WildcardAndCredentials(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowOrigins = []string{"*"}
	rec := request(newEngine(cfg), http.MethodGet, "https://any.example.net", false)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected *, got %q", got)
	}

	cfg.AllowCredentials = true
	rec = request(newEngine(cfg), http.MethodGet, "https://any.example.net", false)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://any.example.net" {
		t.Fatalf("expected echoed origin, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("expected credentials header, got %q", got)
	}
}

func TestMiddleware_NoOrigin(t *testing.T) {
	rec := request(newEngine(DefaultConfig()), http.MethodGet, "", false)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no CORS headers, got %q", got)
	}
}

func TestWildcardMatch(t *testing.T) {
	tests := []struct {
		pattern string
		value   string
		want    bool
	}{
		{"https://*.example.com", "https://a.example.com", true},
		{"https://*.example.com", "https://.example.com", false},
		{"https://*.example.com", "https://example.com", false},
		{"https://*.*.com", "https://a.b.com", false},
		{"https://app.example.com", "https://app.example.com", false},
	}
	for _, tt := range tests {
		if got := wildcardMatch(tt.pattern, tt.value); got != tt.want {
			t.Errorf("wildcardMatch(%q, %q) = %v, want %v", tt.pattern, tt.value, got, tt.want)
		}
	}
}
