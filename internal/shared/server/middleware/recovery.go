package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"intake-backend/internal/shared/server/respond"
	"intake-backend/internal/shared/telemetry"
)

// Recovery turns a handler panic into a 500 envelope.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				documentID, _ := c.Get("documentId")
				telemetry.Error("request.panic", map[string]any{
					"request_id":  RequestIDFromContext(c),
					"tenant_id":   TenantIDFromContext(c),
					"document_id": documentID,
					"route":       c.FullPath(),
					"method":      c.Request.Method,
					"error":       fmt.Sprint(rec),
					"stack":       string(debug.Stack()),
				})
				respond.Error(c, http.StatusInternalServerError, "internal", "Unexpected server error", nil)
				c.Abort()
			}
		}()
		c.Next()
	}
}
