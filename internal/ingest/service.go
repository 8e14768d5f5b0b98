package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"intake-backend/internal/documents"
	"intake-backend/internal/extract"
	"intake-backend/internal/pipeline"
	"intake-backend/internal/quality"
	"intake-backend/internal/shared/metrics"
	"intake-backend/internal/shared/storage/object"
	"intake-backend/internal/shared/telemetry"
	"intake-backend/internal/shared/util"
)

const defaultBlobTimeout = 30 * time.Second

// Service runs the email, webhook and upload adapters.
type Service struct {
	Docs        *documents.Service
	Pipeline    *pipeline.Service
	Store       object.ObjectStore
	Logs        LogRepo
	Scorer      *quality.Scorer
	Gate        quality.Gate
	Secrets     map[string]string
	BlobTimeout time.Duration
	Now         func() time.Time
}

// Result is the outcome of one email or webhook delivery.
type Result struct {
	LogID       string              `json:"ingestionLogId,omitempty"`
	Duplicate   bool                `json:"duplicate"`
	Filtered    bool                `json:"filtered"`
	DocumentIDs []string            `json:"documentIds"`
	Failures    []AttachmentFailure `json:"failures,omitempty"`
}

// AttachmentFailure records one attachment that did not make it through.
// DocumentID is set when the document exists but could not be enqueued.
type AttachmentFailure struct {
	Index      int    `json:"index"`
	FileName   string `json:"fileName,omitempty"`
	DocumentID string `json:"documentId,omitempty"`
	Reason     string `json:"reason"`
}

// delivery is the channel-agnostic envelope the adapters reduce to.
type delivery struct {
	tenantID     string
	source       SourceType
	provider     string
	hash         string
	summary      map[string]any
	trigger      string
	uploadSource documents.UploadSource
	attachments  []RawAttachment
}

// deliver claims the dedup key, ingests every attachment and completes the
// log. Attachment failures are collected; claim and completion failures
// abort the delivery and release the claim.
func (s *Service) deliver(ctx context.Context, d delivery) (Result, error) {
	claim := Log{
		ID:                uuid.NewString(),
		TenantID:          d.tenantID,
		SourceType:        d.source,
		ConnectorProvider: d.provider,
		PayloadHash:       d.hash,
		Payload:           d.summary,
		Metadata:          map[string]any{"attachmentCount": len(d.attachments)},
		CreatedAt:         s.now(),
	}
	stored, claimed, err := s.Logs.Claim(ctx, claim)
	if err != nil {
		return Result{}, fmt.Errorf("claim ingestion log: %w", err)
	}
	if !claimed {
		metrics.IncDelivery(string(d.source), "duplicate")
		telemetry.Info("ingest.duplicate", map[string]any{
			"tenant_id":        d.tenantID,
			"source":           string(d.source),
			"ingestion_log_id": stored.ID,
		})
		return Result{LogID: stored.ID, Duplicate: true, DocumentIDs: stored.DocumentIDs()}, nil
	}

	res := Result{LogID: stored.ID, DocumentIDs: []string{}}
	for i, att := range d.attachments {
		doc, err := s.ingestAttachment(ctx, d, i, att)
		if doc.ID != "" {
			res.DocumentIDs = append(res.DocumentIDs, doc.ID)
		}
		if err != nil {
			res.Failures = append(res.Failures, AttachmentFailure{
				Index:      i,
				FileName:   att.FileName(),
				DocumentID: doc.ID,
				Reason:     err.Error(),
			})
			telemetry.Warn("ingest.attachment_failed", map[string]any{
				"tenant_id":        d.tenantID,
				"source":           string(d.source),
				"ingestion_log_id": stored.ID,
				"document_id":      doc.ID,
				"index":            i,
				"error":            err.Error(),
			})
		}
	}

	if err := s.Logs.Complete(ctx, d.tenantID, stored.ID, map[string]any{
		"documentIds": res.DocumentIDs,
		"failedCount": len(res.Failures),
		"completedAt": s.now().Format(time.RFC3339),
	}); err != nil {
		s.release(d.tenantID, stored.ID)
		return Result{}, fmt.Errorf("complete ingestion log: %w", err)
	}

	metrics.IncDelivery(string(d.source), "processed")
	telemetry.Info("ingest.delivery", map[string]any{
		"tenant_id":        d.tenantID,
		"source":           string(d.source),
		"provider":         d.provider,
		"ingestion_log_id": stored.ID,
		"documents":        len(res.DocumentIDs),
		"failed":           len(res.Failures),
	})
	return res, nil
}

// ingestAttachment stores one attachment, creates its document and starts
// processing. The returned document has an ID whenever it was created.
func (s *Service) ingestAttachment(ctx context.Context, d delivery, index int, att RawAttachment) (documents.Document, error) {
	data, err := att.Decode()
	if err != nil {
		return documents.Document{}, err
	}
	mimeType := extract.NormalizeMimeType(firstNonEmpty(att.Type(), att.mediaTypeFromDataURI()), att.FileName(), data)
	name := att.FileName()
	if name == "" {
		name = fallbackName(index, mimeType)
	}
	name, err = util.SanitizeFileName(name)
	if err != nil {
		return documents.Document{}, err
	}

	docID := documents.NewID()
	key := object.DocumentKey(d.tenantID, docID, name)
	size, err := s.putBlob(ctx, key, mimeType, data)
	if err != nil {
		return documents.Document{}, err
	}

	doc, err := s.Docs.Create(ctx, documents.NewDocument{
		ID:           docID,
		TenantID:     d.tenantID,
		FileName:     name,
		MimeType:     mimeType,
		ByteSize:     size,
		StorageKey:   key,
		Checksum:     util.SHA256Hex(data),
		DocumentType: quality.InferType(name),
		UploadSource: d.uploadSource,
	})
	if err != nil {
		return documents.Document{}, fmt.Errorf("create document: %w", err)
	}

	return s.Pipeline.Start(ctx, doc, d.trigger)
}

// putBlob writes data under the blob deadline. Nothing else is written when it fails.
func (s *Service) putBlob(ctx context.Context, key, mimeType string, data []byte) (int64, error) {
	timeout := s.BlobTimeout
	if timeout <= 0 {
		timeout = defaultBlobTimeout
	}
	blobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	size, err := s.Store.Put(blobCtx, key, mimeType, bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, fmt.Errorf("store blob: timed out after %s", timeout)
		}
		return 0, fmt.Errorf("store blob: %w", err)
	}
	return size, nil
}

func (s *Service) release(tenantID, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Logs.Release(ctx, tenantID, id); err != nil {
		telemetry.Error("ingest.release_failed", map[string]any{
			"tenant_id":        tenantID,
			"ingestion_log_id": id,
			"error":            err.Error(),
		})
	}
}

// GetLog returns one ingestion log for the tenant.
func (s *Service) GetLog(ctx context.Context, tenantID, id string) (Log, error) {
	return s.Logs.GetByID(ctx, tenantID, id)
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
