package documents

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"intake-backend/internal/shared/server/middleware"
	"intake-backend/internal/shared/server/respond"
)

// Handler serves document reads and history.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches document routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/documents", h.list)
	rg.GET("/documents/:id", h.get)
	rg.GET("/documents/:id/history", h.history)
}

func (h *Handler) get(c *gin.Context) {
	tenantID := middleware.TenantIDFromContext(c)
	documentID := c.Param("id")
	c.Set("documentId", documentID)

	doc, err := h.Svc.Get(c.Request.Context(), tenantID, documentID)
	if err != nil {
		WriteError(c, err)
		return
	}
	respond.OK(c, ToResponse(doc))
}

func (h *Handler) list(c *gin.Context) {
	tenantID := middleware.TenantIDFromContext(c)

	var filter ListFilter
	if raw := c.Query("status"); raw != "" {
		status, ok := ParseStatus(raw)
		if !ok {
			respond.Error(c, http.StatusBadRequest, "validation_error", "unknown status", nil)
			return
		}
		filter.Status = status
	}
	if raw := c.Query("stage"); raw != "" {
		stage, ok := ParseStage(raw)
		if !ok {
			respond.Error(c, http.StatusBadRequest, "validation_error", "unknown stage", nil)
			return
		}
		filter.Stage = stage
	}
	filter.Limit = parseIntDefault(c.Query("limit"), 20)
	filter.Offset = parseIntDefault(c.Query("offset"), 0)

	docs, err := h.Svc.List(c.Request.Context(), tenantID, filter)
	if err != nil {
		WriteError(c, err)
		return
	}
	items := make([]DocumentResponse, 0, len(docs))
	for _, doc := range docs {
		items = append(items, ToResponse(doc))
	}
	respond.OK(c, gin.H{"items": items})
}

func (h *Handler) history(c *gin.Context) {
	tenantID := middleware.TenantIDFromContext(c)
	documentID := c.Param("id")
	c.Set("documentId", documentID)

	rows, err := h.Svc.Ledger.GetHistory(c.Request.Context(), tenantID, documentID)
	if err != nil {
		WriteError(c, err)
		return
	}
	respond.OK(c, gin.H{"items": ToTransitionResponses(rows)})
}

// WriteError maps document errors onto HTTP responses.
func WriteError(c *gin.Context, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		respond.Error(c, http.StatusBadRequest, "validation_error", verr.Error(), gin.H{"field": verr.Field})
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
	case errors.Is(err, ErrInvalidTransition):
		respond.Error(c, http.StatusConflict, "invalid_transition", err.Error(), nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal", "failed to load document", nil)
	}
}

func parseIntDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
