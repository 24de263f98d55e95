package controller

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/nimburion/docstore/pkg/store"
)

func serve(handler gin.HandlerFunc) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/test", handler)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))
	return rec
}

func TestSuccess(t *testing.T) {
	rec := serve(func(c *gin.Context) {
		Success(c, store.Documents{"a": {"n": 1}, "b": nil})
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body struct {
		Data map[string]map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Data["a"]["n"] != float64(1) {
		t.Errorf("unexpected document a: %v", body.Data["a"])
	}
	if doc, ok := body.Data["b"]; !ok || doc != nil {
		t.Errorf("expected b to be present and null, got %v (present %v)", doc, ok)
	}
}

func TestNoContent(t *testing.T) {
	rec := serve(func(c *gin.Context) {
		NoContent(c)
	})

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("expected an empty body, got %q", rec.Body.String())
	}
}

func TestError(t *testing.T) {
	rec := serve(func(c *gin.Context) {
		Error(c, &store.Error{Kind: store.KindNotInitialized, Op: "get"})
	})

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}

	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Code != "NOT_INITIALIZED" {
		t.Errorf("expected code NOT_INITIALIZED, got %s", body.Code)
	}
}
