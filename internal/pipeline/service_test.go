package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intake-backend/internal/documents"
	"intake-backend/internal/queue"
)

var testNow = time.Date(2026, time.April, 2, 8, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *Service
	docs  *documents.Service
	queue *queue.MemoryPublisher
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	docs := documents.NewService(documents.NewMemoryRepo())
	clock := func() time.Time { return testNow }
	docs.Now = clock
	docs.Ledger.Now = clock
	pub := queue.NewMemoryPublisher()
	svc := NewService(docs, pub)
	svc.Now = clock
	return fixture{svc: svc, docs: docs, queue: pub}
}

func (f fixture) create(t *testing.T) documents.Document {
	t.Helper()
	doc, err := f.docs.Create(context.Background(), documents.NewDocument{
		TenantID:     "tenant-1",
		FileName:     "invoice.pdf",
		MimeType:     "application/pdf",
		StorageKey:   "tenants/tenant-1/documents/d/invoice.pdf",
		UploadSource: documents.SourceEmail,
	})
	require.NoError(t, err)
	return doc
}

func (f fixture) history(t *testing.T, doc documents.Document) []documents.StageTransition {
	t.Helper()
	rows, err := f.docs.Ledger.GetHistory(context.Background(), doc.TenantID, doc.ID)
	require.NoError(t, err)
	return rows
}

func triggers(rows []documents.StageTransition) []string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Trigger)
	}
	return out
}

func TestStartEnqueuesOCR(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t)

	got, err := f.svc.Start(context.Background(), doc, "email")
	require.NoError(t, err)
	assert.Equal(t, documents.StatusProcessing, got.Status)
	assert.Equal(t, documents.StageOCR, got.ProcessingStage)
	assert.Equal(t, []string{"email", TriggerOCREnqueued}, triggers(f.history(t, doc)))

	jobs := f.queue.ByQueue(queue.QueueOCR)
	require.Len(t, jobs, 1)
	var job queue.OCRJob
	require.NoError(t, json.Unmarshal(jobs[0], &job))
	assert.Equal(t, doc.ID, job.DocumentID)
	assert.Equal(t, doc.StorageKey, job.StorageKey)
	assert.Equal(t, queue.MessageVersion, job.Version)
}

func TestStartPublishFailureLeavesError(t *testing.T) {
	f := newFixture(t)
	f.queue.Fail = func(string, []byte) error { return errors.New("broker down") }
	doc := f.create(t)

	got, err := f.svc.Start(context.Background(), doc, "webhook")
	assert.ErrorIs(t, err, ErrEnqueue)
	assert.Equal(t, documents.StatusError, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, "broker down")
	assert.Equal(t, []string{"webhook", TriggerOCREnqueueFailed}, triggers(f.history(t, doc)))
}

func TestRetryFromErrorWithExtractedText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t)
	_, err := f.svc.Start(ctx, doc, "email")
	require.NoError(t, err)
	require.NoError(t, f.svc.ApplyResult(ctx, queue.ResultMessage{
		DocumentID: doc.ID, TenantID: doc.TenantID, Status: "ERROR",
		ExtractedData: map[string]any{"rawText": "ACME invoice 42"}, ErrorMessage: "classifier timeout",
	}))

	res, err := f.svc.Retry(ctx, doc.TenantID, doc.ID, "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, documents.StageClassification, res.Stage)
	assert.Equal(t, documents.StatusExtracted, res.Document.Status)
	assert.Nil(t, res.Document.ErrorMessage)

	jobs := f.queue.ByQueue(queue.QueueClassification)
	require.Len(t, jobs, 1)
	var job queue.ClassificationJob
	require.NoError(t, json.Unmarshal(jobs[0], &job))
	assert.Equal(t, "ACME invoice 42", job.ExtractedText)

	rows := f.history(t, doc)
	last := rows[len(rows)-1]
	assert.Equal(t, "retry_classification", last.Trigger)
	assert.Equal(t, "ops@example.com", last.Metadata["actor"])
	assert.Equal(t, "ERROR", last.Metadata["previousStatus"])
}

func TestRetryPublishFailureRecordsError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t)
	_, err := f.svc.Start(ctx, doc, "email")
	require.NoError(t, err)

	f.queue.Fail = func(string, []byte) error { return errors.New("broker down") }
	res, err := f.svc.Retry(ctx, doc.TenantID, doc.ID, "ops")
	assert.ErrorIs(t, err, ErrEnqueue)
	assert.Equal(t, documents.StatusError, res.Document.Status)

	rows := f.history(t, doc)
	assert.Equal(t, "retry_ocr_enqueue_failed", rows[len(rows)-1].Trigger)
}

func TestRetryNotEligibleHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t)
	_, err := f.svc.Start(ctx, doc, "email")
	require.NoError(t, err)
	for _, status := range []string{"EXTRACTED", "CLASSIFIED", "POSTED"} {
		require.NoError(t, f.svc.ApplyResult(ctx, queue.ResultMessage{DocumentID: doc.ID, TenantID: doc.TenantID, Status: status}))
	}
	before := len(f.history(t, doc))
	published := len(f.queue.Messages())

	_, err = f.svc.Retry(ctx, doc.TenantID, doc.ID, "ops")
	assert.ErrorIs(t, err, ErrNotEligible)
	assert.Len(t, f.history(t, doc), before)
	assert.Len(t, f.queue.Messages(), published)
}

func TestApplyResultMergesAndRejectsStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t)
	_, err := f.svc.Start(ctx, doc, "email")
	require.NoError(t, err)

	require.NoError(t, f.svc.ApplyResult(ctx, queue.ResultMessage{
		DocumentID: doc.ID, TenantID: doc.TenantID, Status: "extracted",
		ExtractedData: map[string]any{"rawText": "total 12.50"},
	}))
	require.NoError(t, f.svc.ApplyResult(ctx, queue.ResultMessage{
		DocumentID: doc.ID, TenantID: doc.TenantID, Status: "CLASSIFIED",
		ExtractedData: map[string]any{"classification": map[string]any{"type": "receipt"}},
	}))
	current, err := f.docs.Get(ctx, doc.TenantID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, documents.StatusClassified, current.Status)
	assert.Equal(t, "total 12.50", current.ExtractedData["rawText"])
	assert.NotNil(t, current.ExtractedData["classification"])

	err = f.svc.ApplyResult(ctx, queue.ResultMessage{
		DocumentID: doc.ID, TenantID: doc.TenantID, Status: "EXTRACTED",
		ExtractedData: map[string]any{"rawText": "stale"},
	})
	assert.ErrorIs(t, err, queue.ErrPermanent)
	assert.ErrorIs(t, err, documents.ErrInvalidTransition)
	current, err = f.docs.Get(ctx, doc.TenantID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "total 12.50", current.ExtractedData["rawText"])

	err = f.svc.ApplyResult(ctx, queue.ResultMessage{DocumentID: doc.ID, TenantID: doc.TenantID, Status: "PROCESSING"})
	assert.ErrorIs(t, err, queue.ErrPermanent)
	err = f.svc.ApplyResult(ctx, queue.ResultMessage{DocumentID: "missing", TenantID: doc.TenantID, Status: "POSTED"})
	assert.ErrorIs(t, err, documents.ErrNotFound)

	rows := f.history(t, doc)
	assert.Equal(t, "worker_classified", rows[len(rows)-1].Trigger)
}

func TestSweepStaleRetriesStuckDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stuck := f.create(t)
	_, err := f.svc.Start(ctx, stuck, "email")
	require.NoError(t, err)
	done := f.create(t)
	_, err = f.svc.Start(ctx, done, "email")
	require.NoError(t, err)
	require.NoError(t, f.svc.ApplyResult(ctx, queue.ResultMessage{DocumentID: done.ID, TenantID: done.TenantID, Status: "EXTRACTED", ExtractedData: map[string]any{"rawText": "x"}}))

	report, err := f.svc.SweepStale(ctx, testNow.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, SweepReport{}, report)

	report, err = f.svc.SweepStale(ctx, testNow.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Scanned: 1, Retried: 1}, report)

	rows := f.history(t, stuck)
	last := rows[len(rows)-1]
	assert.Equal(t, "retry_ocr", last.Trigger)
	assert.Equal(t, "sweeper", last.Metadata["actor"])
	assert.Len(t, f.queue.ByQueue(queue.QueueOCR), 3)
}

type flakyRepo struct {
	*documents.MemoryRepo
	fail error
}

func (r *flakyRepo) Transition(ctx context.Context, t documents.Transition) (documents.StageTransition, error) {
	if r.fail != nil {
		return documents.StageTransition{}, r.fail
	}
	return r.MemoryRepo.Transition(ctx, t)
}

func TestApplyResultTransientFailureLeavesDataUntouched(t *testing.T) {
	repo := &flakyRepo{MemoryRepo: documents.NewMemoryRepo()}
	docs := documents.NewService(repo)
	svc := NewService(docs, queue.NewMemoryPublisher())
	ctx := context.Background()
	doc, err := docs.Create(ctx, documents.NewDocument{
		TenantID:     "tenant-1",
		FileName:     "invoice.pdf",
		MimeType:     "application/pdf",
		StorageKey:   "tenants/tenant-1/documents/d/invoice.pdf",
		UploadSource: documents.SourceEmail,
	})
	require.NoError(t, err)
	_, err = svc.Start(ctx, doc, "email")
	require.NoError(t, err)

	repo.fail = errors.New("connection reset")
	err = svc.ApplyResult(ctx, queue.ResultMessage{
		DocumentID: doc.ID, TenantID: doc.TenantID, Status: "EXTRACTED",
		ExtractedData: map[string]any{"rawText": "total 99.00"},
	})
	require.Error(t, err)
	assert.False(t, errors.Is(err, queue.ErrPermanent))

	current, err := docs.Get(ctx, doc.TenantID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, documents.StatusProcessing, current.Status)
	assert.NotContains(t, current.ExtractedData, "rawText")
}
