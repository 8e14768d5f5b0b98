package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"intake-backend/internal/documents"
	"intake-backend/internal/queue"
	"intake-backend/internal/shared/metrics"
	"intake-backend/internal/shared/telemetry"
)

// ErrEnqueue wraps job publish failures. The document is left in ERROR.
var ErrEnqueue = errors.New("enqueue failed")

const (
	TriggerOCREnqueued      = "ocr_enqueued"
	TriggerOCREnqueueFailed = "ocr_enqueue_failed"
	sweepActor              = "sweeper"
	defaultSweepLimit       = 100
)

// Service moves documents between the ledger and the job queue.
type Service struct {
	Docs       *documents.Service
	Queue      queue.Publisher
	Now        func() time.Time
	StaleAfter time.Duration
	SweepLimit int
}

// NewService constructs a pipeline Service.
func NewService(docs *documents.Service, publisher queue.Publisher) *Service {
	return &Service{Docs: docs, Queue: publisher, StaleAfter: 30 * time.Minute, SweepLimit: defaultSweepLimit}
}

// Start records the channel milestone for a freshly created document and
// hands it to OCR. A publish failure leaves the document in ERROR and is
// returned wrapped in ErrEnqueue.
func (s *Service) Start(ctx context.Context, doc documents.Document, channelTrigger string) (documents.Document, error) {
	ledger := s.Docs.Ledger
	if _, err := ledger.RecordTransition(ctx, documents.Transition{
		DocumentID: doc.ID,
		TenantID:   doc.TenantID,
		ToStatus:   documents.StatusUploaded,
		Trigger:    channelTrigger,
		StageOnly:  true,
		Metadata:   map[string]any{"uploadSource": string(doc.UploadSource)},
	}); err != nil {
		return doc, err
	}

	err := queue.PublishJSON(ctx, s.Queue, queue.QueueOCR, s.ocrJob(doc, TriggerOCREnqueued))
	if err != nil {
		metrics.IncEnqueueFailure(queue.QueueOCR)
		if _, terr := ledger.RecordTransition(ctx, documents.Transition{
			DocumentID:   doc.ID,
			TenantID:     doc.TenantID,
			ToStatus:     documents.StatusError,
			Trigger:      TriggerOCREnqueueFailed,
			ErrorMessage: "failed to enqueue ocr job: " + err.Error(),
			Metadata:     map[string]any{"queue": queue.QueueOCR},
		}); terr != nil {
			return doc, terr
		}
		return s.reload(ctx, doc), fmt.Errorf("%w: %w", ErrEnqueue, err)
	}

	if _, err := ledger.RecordTransition(ctx, documents.Transition{
		DocumentID: doc.ID,
		TenantID:   doc.TenantID,
		ToStatus:   documents.StatusProcessing,
		Trigger:    TriggerOCREnqueued,
		Metadata:   map[string]any{"queue": queue.QueueOCR},
	}); err != nil {
		return doc, err
	}
	return s.reload(ctx, doc), nil
}

// RetryResult describes a completed retry.
type RetryResult struct {
	Document documents.Document
	Stage    documents.Stage
}

// Retry re-enqueues a document from the stage ResolveRetryStage picks and
// resets its status to that stage's pre-state.
func (s *Service) Retry(ctx context.Context, tenantID, documentID, actor string) (RetryResult, error) {
	doc, err := s.Docs.Get(ctx, tenantID, documentID)
	if err != nil {
		return RetryResult{}, err
	}
	return s.retry(ctx, doc, actor)
}

func (s *Service) retry(ctx context.Context, doc documents.Document, actor string) (RetryResult, error) {
	stage, err := ResolveRetryStage(doc.Status, doc.ExtractedData, doc.StorageKey)
	if err != nil {
		return RetryResult{}, err
	}
	trigger := documents.RetryTriggerPrefix + string(stage)
	metadata := map[string]any{
		"actor":          actor,
		"stage":          string(stage),
		"previousStatus": string(doc.Status),
	}

	if err := s.publishStage(ctx, doc, stage, trigger); err != nil {
		metrics.IncEnqueueFailure(string(stage))
		if _, terr := s.Docs.Ledger.RecordTransition(ctx, documents.Transition{
			DocumentID:   doc.ID,
			TenantID:     doc.TenantID,
			ToStatus:     documents.StatusError,
			Trigger:      trigger + "_enqueue_failed",
			ErrorMessage: fmt.Sprintf("failed to enqueue %s job: %v", stage, err),
			Metadata:     metadata,
		}); terr != nil {
			return RetryResult{}, terr
		}
		return RetryResult{Document: s.reload(ctx, doc), Stage: stage}, fmt.Errorf("%w: %w", ErrEnqueue, err)
	}

	if _, err := s.Docs.Ledger.RecordTransition(ctx, documents.Transition{
		DocumentID: doc.ID,
		TenantID:   doc.TenantID,
		ToStatus:   PreState(stage),
		Trigger:    trigger,
		Metadata:   metadata,
	}); err != nil {
		return RetryResult{}, err
	}
	metrics.IncRetry(string(stage))
	return RetryResult{Document: s.reload(ctx, doc), Stage: stage}, nil
}

func (s *Service) publishStage(ctx context.Context, doc documents.Document, stage documents.Stage, trigger string) error {
	now := s.now().Format(time.RFC3339)
	switch stage {
	case documents.StageClassification:
		return queue.PublishJSON(ctx, s.Queue, queue.QueueClassification, queue.ClassificationJob{
			DocumentID:    doc.ID,
			TenantID:      doc.TenantID,
			ExtractedText: RawText(doc.ExtractedData),
			Trigger:       trigger,
			EnqueuedAt:    now,
			Version:       queue.MessageVersion,
		})
	case documents.StageLedgerPosting:
		return queue.PublishJSON(ctx, s.Queue, queue.QueueLedgerPosting, queue.PostingJob{
			DocumentID:     doc.ID,
			TenantID:       doc.TenantID,
			Classification: Classification(doc.ExtractedData),
			Trigger:        trigger,
			EnqueuedAt:     now,
			Version:        queue.MessageVersion,
		})
	default:
		return queue.PublishJSON(ctx, s.Queue, queue.QueueOCR, s.ocrJob(doc, trigger))
	}
}

func (s *Service) ocrJob(doc documents.Document, trigger string) queue.OCRJob {
	return queue.OCRJob{
		DocumentID: doc.ID,
		TenantID:   doc.TenantID,
		StorageKey: doc.StorageKey,
		MimeType:   doc.MimeType,
		Trigger:    trigger,
		EnqueuedAt: s.now().Format(time.RFC3339),
		Version:    queue.MessageVersion,
	}
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	Scanned int
	Retried int
	Failed  int
}

// SweepStale retries documents stuck in PROCESSING since before now-StaleAfter.
func (s *Service) SweepStale(ctx context.Context, now time.Time) (SweepReport, error) {
	limit := s.SweepLimit
	if limit <= 0 {
		limit = defaultSweepLimit
	}
	cutoff := now.Add(-s.StaleAfter)
	stale, err := s.Docs.Repo.ListStale(ctx, documents.StatusProcessing, cutoff, limit)
	if err != nil {
		return SweepReport{}, fmt.Errorf("list stale documents: %w", err)
	}

	report := SweepReport{Scanned: len(stale)}
	for _, doc := range stale {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if _, err := s.retry(ctx, doc, sweepActor); err != nil {
			report.Failed++
			telemetry.Warn("pipeline.sweep.retry_failed", map[string]any{
				"document_id": doc.ID,
				"tenant_id":   doc.TenantID,
				"error":       err.Error(),
			})
			continue
		}
		report.Retried++
	}
	telemetry.Info("pipeline.sweep", map[string]any{
		"cutoff":  cutoff.Format(time.RFC3339),
		"scanned": report.Scanned,
		"retried": report.Retried,
		"failed":  report.Failed,
	})
	return report, nil
}

// ApplyResult folds a worker result into the document through the ledger;
// extracted data is merged in the same locked unit of work as the status
// change. Malformed or stale results come back wrapped in queue.ErrPermanent.
func (s *Service) ApplyResult(ctx context.Context, msg queue.ResultMessage) error {
	status, ok := documents.ParseStatus(msg.Status)
	if !ok || status == documents.StatusUploaded || status == documents.StatusProcessing {
		metrics.IncWorkerResult("rejected")
		return queue.Permanent(documents.Invalid("status", "unsupported worker status "+msg.Status))
	}
	trigger := strings.TrimSpace(msg.Trigger)
	if trigger == "" {
		trigger = "worker_" + strings.ToLower(string(status))
	}
	t := documents.Transition{
		DocumentID:    msg.DocumentID,
		TenantID:      msg.TenantID,
		ToStatus:      status,
		Trigger:       trigger,
		ErrorMessage:  msg.ErrorMessage,
		ExtractedData: msg.ExtractedData,
		Metadata:      map[string]any{"source": "worker"},
	}
	if _, err := s.Docs.Ledger.RecordTransition(ctx, t); err != nil {
		return s.resultError(err)
	}
	metrics.IncWorkerResult("applied")
	return nil
}

func (s *Service) resultError(err error) error {
	if errors.Is(err, documents.ErrNotFound) || errors.Is(err, documents.ErrInvalidTransition) || errors.Is(err, documents.ErrInvalidInput) {
		metrics.IncWorkerResult("rejected")
		return queue.Permanent(err)
	}
	metrics.IncWorkerResult("failed")
	return err
}

func (s *Service) reload(ctx context.Context, doc documents.Document) documents.Document {
	fresh, err := s.Docs.Get(ctx, doc.TenantID, doc.ID)
	if err != nil {
		return doc
	}
	return fresh
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
