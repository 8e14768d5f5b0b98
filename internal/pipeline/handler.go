package pipeline

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"intake-backend/internal/documents"
	"intake-backend/internal/shared/server/middleware"
	"intake-backend/internal/shared/server/respond"
)

// Handler serves manual retries.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches retry routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents/:id/retry", h.retry)
}

type retryRequest struct {
	Actor string `json:"actor"`
}

func (h *Handler) retry(c *gin.Context) {
	tenantID := middleware.TenantIDFromContext(c)
	documentID := c.Param("id")
	c.Set("documentId", documentID)

	var req retryRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
			return
		}
	}
	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		actor = "api"
	}

	res, err := h.Svc.Retry(c.Request.Context(), tenantID, documentID, actor)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotEligible):
		respond.Error(c, http.StatusConflict, "not_eligible", err.Error(), nil)
		return
	case errors.Is(err, ErrEnqueue):
		respond.Error(c, http.StatusBadGateway, "enqueue_failed", "failed to enqueue retry job", gin.H{
			"document": documents.ToResponse(res.Document),
		})
		return
	default:
		documents.WriteError(c, err)
		return
	}

	c.Set("statusTransition", string(res.Document.Status))
	respond.OK(c, gin.H{
		"document": documents.ToResponse(res.Document),
		"stage":    string(res.Stage),
	})
}
