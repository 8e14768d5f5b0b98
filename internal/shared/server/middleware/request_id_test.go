package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func TestRequestIDKeepsOrReplacesHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, RequestIDFromContext(c)) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Body.String() != "abc-123" || resp.Header().Get("X-Request-Id") != "abc-123" {
		t.Fatalf("expected caller id kept, got %q", resp.Body.String())
	}

	for _, bad := range []string{"", "has space", strings.Repeat("a", 200)} {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		if bad != "" {
			req.Header.Set("X-Request-Id", bad)
		}
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		if _, err := uuid.Parse(resp.Body.String()); err != nil {
			t.Fatalf("expected generated uuid for %q, got %q", bad, resp.Body.String())
		}
	}
}
