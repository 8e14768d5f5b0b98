package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"intake-backend/internal/credentials"
	"intake-backend/internal/shared/config"
	"intake-backend/internal/shared/metrics"
	"intake-backend/internal/shared/server/middleware"
	"intake-backend/internal/shared/server/respond"
	"intake-backend/internal/shared/telemetry"
)

// RouteRegistrar attaches a feature's routes to the authenticated API group.
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// RouterDeps carries everything NewRouter wires.
type RouterDeps struct {
	Config   config.Config
	Verifier credentials.Verifier
	Handlers []RouteRegistrar
	// Health returns the /health payload; "ok": false answers 503. Nil means
	// always ready.
	Health func(c *gin.Context) map[string]any
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	r.GET("/health", func(c *gin.Context) {
		if deps.Health == nil {
			respond.OK(c, gin.H{"ok": true})
			return
		}
		status := deps.Health(c)
		if ok, _ := status["ok"].(bool); !ok {
			respond.Error(c, http.StatusServiceUnavailable, "unhealthy", "dependency check failed", status)
			return
		}
		respond.OK(c, status)
	})
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.Use(
		middleware.APIKeyAuth(deps.Verifier),
		middleware.RateLimit(middleware.RateLimitConfig{
			GroupFor: rateLimitGroup,
			Rules:    rateLimitRules(deps.Config.RateLimits),
		}),
	)
	for _, h := range deps.Handlers {
		if h != nil {
			h.RegisterRoutes(api)
		}
	}
	return r
}

// rateLimitGroup puts every ingestion channel, direct upload included, in the
// ingest bucket.
func rateLimitGroup(c *gin.Context) string {
	if c.Request.Method != http.MethodPost {
		return middleware.GroupRead
	}
	path := c.FullPath()
	if strings.HasPrefix(path, "/api/v1/ingest/") || path == "/api/v1/documents" {
		return middleware.GroupIngest
	}
	return middleware.GroupRead
}

func rateLimitRules(raw map[string]string) map[string]middleware.RateLimitRule {
	rules := make(map[string]middleware.RateLimitRule, len(raw))
	for group, value := range raw {
		rule, err := middleware.ParseRateLimitRule(value)
		if err != nil {
			telemetry.Warn("router.rate_limit.invalid", map[string]any{"group": group, "error": err.Error()})
			continue
		}
		rules[strings.ToLower(strings.TrimSpace(group))] = rule
	}
	return rules
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
