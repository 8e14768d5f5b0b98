package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersExposed(t *testing.T) {
	gin.SetMode(gin.TestMode)

	before := testutil.ToFloat64(transitionsTotal.WithLabelValues("PROCESSING"))
	IncTransition("PROCESSING")
	IncDelivery("email", "duplicate")
	if got := testutil.ToFloat64(transitionsTotal.WithLabelValues("PROCESSING")); got != before+1 {
		t.Fatalf("expected transitions counter to advance, got %v", got)
	}

	r := gin.New()
	r.GET("/metrics", Handler())
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	body := resp.Body.String()
	for _, name := range []string{"intake_stage_transitions_total", "intake_deliveries_total"} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected %s in metrics output", name)
		}
	}
}
