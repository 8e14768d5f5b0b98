package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func limitedRouter(limiter *RateLimiter, rules map[string]RateLimitRule) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("tenantId", "tenant-test")
		c.Next()
	})
	r.Use(RateLimit(RateLimitConfig{
		GroupFor: func(c *gin.Context) string {
			if c.Request.Method == http.MethodPost && c.FullPath() == "/api/v1/ingest/webhook" {
				return GroupIngest
			}
			return GroupRead
		},
		Limiter: limiter,
		Rules:   rules,
	}))
	ok := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) }
	r.POST("/api/v1/ingest/webhook", ok)
	r.GET("/api/v1/documents", ok)
	return r
}

func TestRateLimitIngestHigherThanRead(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	r := limitedRouter(NewRateLimiter(func() time.Time { return now }), map[string]RateLimitRule{
		GroupRead:   {Rate: 1, Burst: 2},
		GroupIngest: {Rate: 5, Burst: 10},
	})

	for i := 0; i < 3; i++ {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/ingest/webhook", nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("ingest request %d expected 200, got %d", i+1, resp.Code)
		}
	}
	for i := 0; i < 2; i++ {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("read request %d expected 200, got %d", i+1, resp.Code)
		}
	}

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil))
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("read request 3 expected 429, got %d", resp.Code)
	}
	if resp.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected Retry-After 1, got %q", resp.Header().Get("Retry-After"))
	}

	var payload struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Error.Code != "rate_limited" || payload.Error.Details["group"] != GroupRead {
		t.Fatalf("unexpected error body: %+v", payload.Error)
	}
	if _, ok := payload.Error.Details["retryAfterMs"]; !ok {
		t.Fatal("expected retryAfterMs in details")
	}
}

func TestRateLimiterRefillsAndEvictsIdleBuckets(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(func() time.Time { return now })
	rule := RateLimitRule{Rate: 2, Burst: 1}

	if ok, _ := limiter.Allow("a", rule); !ok {
		t.Fatal("expected first call allowed")
	}
	ok, wait := limiter.Allow("a", rule)
	if ok || wait != 500*time.Millisecond {
		t.Fatalf("expected 500ms wait, got ok=%v wait=%s", ok, wait)
	}
	now = now.Add(500 * time.Millisecond)
	if ok, _ := limiter.Allow("a", rule); !ok {
		t.Fatal("expected refill after 500ms")
	}

	now = now.Add(idleBucketTTL + time.Second)
	limiter.Allow("b", rule)
	if got := limiter.Len(); got != 1 {
		t.Fatalf("expected idle bucket evicted, got %d buckets", got)
	}
}

func TestParseRateLimitRule(t *testing.T) {
	rule, err := ParseRateLimitRule(" 2.5:10 ")
	if err != nil || rule.Rate != 2.5 || rule.Burst != 10 {
		t.Fatalf("unexpected rule %+v err=%v", rule, err)
	}
	for _, raw := range []string{"", "10", "x:1", "1:0", "-1:5"} {
		if _, err := ParseRateLimitRule(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}
