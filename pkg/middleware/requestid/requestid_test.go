package requestid

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/nimburion/docstore/pkg/middleware"
)

var uuidPattern = regexp.MustCompile(`^[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}$`)

func newEngine(captured *string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/test", func(c *gin.Context) {
		*captured = GetRequestID(c.Request.Context())
		if c.GetString(string(middleware.RequestIDKey)) != *captured {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, "ok")
	})
	return r
}

func TestRequestID_GeneratesUUID(t *testing.T) {
	var captured string
	r := newEngine(&captured)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !uuidPattern.MatchString(captured) {
		t.Errorf("expected a UUID, got %q", captured)
	}
	if got := rec.Header().Get(RequestIDHeader); got != captured {
		t.Errorf("expected response header %s, got %s", captured, got)
	}
}

func TestRequestID_PreservesExistingHeader(t *testing.T) {
	var captured string
	r := newEngine(&captured)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(RequestIDHeader, "existing-request-id-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if captured != "existing-request-id-123" {
		t.Errorf("expected request ID to be preserved, got %s", captured)
	}
	if got := rec.Header().Get(RequestIDHeader); got != "existing-request-id-123" {
		t.Errorf("expected response header to echo the request ID, got %s", got)
	}
}

func TestRequestID_ReplacesOversizedHeader(t *testing.T) {
	var captured string
	r := newEngine(&captured)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", maxLength+1))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if !uuidPattern.MatchString(captured) {
		t.Errorf("expected a generated UUID, got %q", captured)
	}
}

func TestRequestID_UniquePerRequest(t *testing.T) {
	var captured string
	r := newEngine(&captured)

	seen := make(map[string]struct{})
	for range 50 {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))
		if _, dup := seen[captured]; dup {
			t.Fatalf("duplicate request ID %s", captured)
		}
		seen[captured] = struct{}{}
	}
}

func TestProperty_RequestIDPropagation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	genRequestID := gen.AlphaString().SuchThat(func(s string) bool {
		return len(s) > 0 && len(s) <= maxLength
	})

	properties.Property("preserves existing X-Request-ID header in response and context", prop.ForAll(
		func(existingID string) bool {
			var captured string
			r := newEngine(&captured)

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.Header.Set(RequestIDHeader, existingID)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			return captured == existingID && rec.Header().Get(RequestIDHeader) == existingID
		},
		genRequestID,
	))

	properties.TestingRun(t)
}
