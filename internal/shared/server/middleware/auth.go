package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"intake-backend/internal/credentials"
	"intake-backend/internal/shared/server/respond"
	"intake-backend/internal/shared/telemetry"
)

const tenantIDKey = "tenantId"

// APIKeyAuth resolves the caller's API key to a tenant and stores it in context.
// Keys are read from X-API-Key or an Authorization bearer token.
func APIKeyAuth(verifier credentials.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		key := APIKeyFromRequest(c.Request)
		if key == "" {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing api key", nil)
			return
		}

		res, err := verifier.VerifyAPIKey(c.Request.Context(), key)
		if err != nil {
			telemetry.Error("auth.verify.failed", map[string]any{
				"request_id": RequestIDFromContext(c),
				"error":      err.Error(),
			})
			respond.Error(c, http.StatusBadGateway, "credential_verifier_unavailable", "unable to verify api key", nil)
			return
		}
		if !res.IsValid || strings.TrimSpace(res.TenantID) == "" {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "invalid api key", nil)
			return
		}

		c.Set(tenantIDKey, res.TenantID)
		c.Next()
	}
}

// APIKeyFromRequest extracts the presented API key, if any.
func APIKeyFromRequest(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}

// TenantIDFromContext fetches the tenant ID set by the auth middleware.
func TenantIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(tenantIDKey)
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}
