package ingest

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"intake-backend/internal/documents"
	"intake-backend/internal/pipeline"
	"intake-backend/internal/shared/server/middleware"
	"intake-backend/internal/shared/server/respond"
)

const (
	maxUploadSize   = 20 << 20
	maxDeliverySize = 30 << 20
)

// Handler serves the ingestion channels.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches ingestion routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/ingest/email", h.email)
	rg.POST("/ingest/webhook", h.webhook)
	rg.POST("/documents", h.upload)
	rg.GET("/ingestion-logs/:id", h.getLog)
}

func (h *Handler) email(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}
	res, err := h.Svc.IngestEmail(c.Request.Context(), middleware.TenantIDFromContext(c), body)
	if err != nil {
		writeIngestError(c, err)
		return
	}
	writeResult(c, res)
}

func (h *Handler) webhook(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}
	res, err := h.Svc.IngestWebhook(c.Request.Context(), middleware.TenantIDFromContext(c), WebhookRequest{
		Body:      body,
		Signature: c.GetHeader("X-Webhook-Signature"),
		Timestamp: c.GetHeader("X-Webhook-Timestamp"),
	})
	if err != nil {
		writeIngestError(c, err)
		return
	}
	writeResult(c, res)
}

func (h *Handler) upload(c *gin.Context) {
	tenantID := middleware.TenantIDFromContext(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}

	res, err := h.Svc.Upload(c.Request.Context(), UploadInput{
		TenantID:     tenantID,
		FileName:     fileHeader.Filename,
		ContentType:  fileHeader.Header.Get("Content-Type"),
		DeclaredType: c.PostForm("documentType"),
		UploadSource: c.PostForm("uploadSource"),
		Data:         data,
	})
	if res.Document.ID != "" {
		c.Set("documentId", res.Document.ID)
		c.Set("statusTransition", string(res.Document.Status))
	}
	payload := gin.H{
		"document": documents.ToResponse(res.Document),
		"quality": gin.H{
			"score":         res.Quality.Score,
			"decision":      string(res.Decision),
			"issues":        res.Quality.Issues,
			"checklist":     res.Quality.Checklist,
			"pageCount":     res.Quality.PageCount,
			"suggestedType": string(res.Quality.SuggestedType),
		},
	}
	switch {
	case err == nil:
		respond.Created(c, payload)
	case errors.Is(err, pipeline.ErrEnqueue):
		respond.Error(c, http.StatusBadGateway, "enqueue_failed", "document stored but processing could not be queued", payload)
	default:
		writeIngestError(c, err)
	}
}

func (h *Handler) getLog(c *gin.Context) {
	id := c.Param("id")
	c.Set("ingestionLogId", id)
	log, err := h.Svc.GetLog(c.Request.Context(), middleware.TenantIDFromContext(c), id)
	if err != nil {
		writeIngestError(c, err)
		return
	}
	respond.OK(c, LogResponse{
		ID:                log.ID,
		TenantID:          log.TenantID,
		SourceType:        string(log.SourceType),
		ConnectorProvider: log.ConnectorProvider,
		PayloadHash:       log.PayloadHash,
		Payload:           log.Payload,
		Metadata:          log.Metadata,
		Completed:         log.Completed,
		DocumentIDs:       log.DocumentIDs(),
		CreatedAt:         log.CreatedAt,
	})
}

func readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxDeliverySize))
	if err != nil {
		respond.Error(c, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large", nil)
		return nil, false
	}
	return body, true
}

func writeResult(c *gin.Context, res Result) {
	if res.LogID != "" {
		c.Set("ingestionLogId", res.LogID)
	}
	respond.OK(c, res)
}

func writeIngestError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidPayload):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, ErrUnhandledProvider):
		respond.Error(c, http.StatusBadRequest, "unhandled_provider", err.Error(), nil)
	case errors.Is(err, ErrSignature):
		respond.Error(c, http.StatusUnauthorized, "invalid_signature", err.Error(), nil)
	case errors.Is(err, ErrLogNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "ingestion log not found", nil)
	case errors.Is(err, documents.ErrInvalidInput), errors.Is(err, documents.ErrNotFound):
		documents.WriteError(c, err)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal", "failed to ingest delivery", nil)
	}
}
