package ingest

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intake-backend/internal/documents"
	"intake-backend/internal/queue"
)

func xeroWebhook() string {
	return fmt.Sprintf(`{
  "provider": "xero",
  "eventType": "invoice.created",
  "webhookId": "wh-100",
  "data": {
    "invoiceNumber": "INV-77",
    "documents": [
      {"name": "INV-77.pdf", "mimeType": "application/pdf", "contentBase64": %q}
    ]
  }
}`, b64("%PDF-1.4 xero"))
}

func TestParseProvider(t *testing.T) {
	for _, raw := range []string{"stripe", "QuickBooks", " xero ", "plaid", "dext", "generic"} {
		_, ok := ParseProvider(raw)
		assert.True(t, ok, raw)
	}
	_, ok := ParseProvider("freshbooks")
	assert.False(t, ok)
}

func TestIngestWebhookNestedDocument(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.IngestWebhook(context.Background(), "tenant-1", WebhookRequest{Body: []byte(xeroWebhook())})
	require.NoError(t, err)
	require.Len(t, res.DocumentIDs, 1)

	doc := f.doc(t, "tenant-1", res.DocumentIDs[0])
	assert.Equal(t, documents.StatusProcessing, doc.Status)
	assert.Equal(t, documents.SourceWebhook, doc.UploadSource)
	assert.Equal(t, "application/pdf", doc.MimeType)

	rows := f.history(t, "tenant-1", doc.ID)
	require.Len(t, rows, 2)
	assert.Equal(t, "xero_webhook", rows[0].Trigger)
	assert.Equal(t, documents.StatusUploaded, rows[0].ToStatus)
	assert.Equal(t, documents.StatusProcessing, rows[1].ToStatus)

	log, err := f.svc.GetLog(context.Background(), "tenant-1", res.LogID)
	require.NoError(t, err)
	assert.Equal(t, "xero", log.ConnectorProvider)
	assert.Equal(t, SourceWebhook, log.SourceType)

	again, err := f.svc.IngestWebhook(context.Background(), "tenant-1", WebhookRequest{Body: []byte(xeroWebhook())})
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, res.LogID, again.LogID)
}

func TestIngestWebhookIsIdempotent(t *testing.T) {
	f := newFixture(t)
	pdf := b64("%PDF-1.4 quickbooks")
	first := fmt.Sprintf(`{"provider":"quickbooks","eventType":"bill.created","webhookId":"qb-9",
"data":{"vendor":"Acme","amount":410.25,"documents":[{"name":"bill.pdf","mimeType":"application/pdf","contentBase64":%q}]}}`, pdf)
	reordered := fmt.Sprintf(`{"webhookId":"qb-9","data":{"documents":[{"contentBase64":%q,"mimeType":"application/pdf","name":"bill.pdf"}],
"amount":410.25,"vendor":"Acme"},"eventType":"bill.created","provider":"quickbooks"}`, pdf)

	res, err := f.svc.IngestWebhook(context.Background(), "tenant-1", WebhookRequest{Body: []byte(first)})
	require.NoError(t, err)
	require.Len(t, res.DocumentIDs, 1)
	transitions := len(f.history(t, "tenant-1", res.DocumentIDs[0]))

	for _, body := range []string{first, reordered} {
		again, err := f.svc.IngestWebhook(context.Background(), "tenant-1", WebhookRequest{Body: []byte(body)})
		require.NoError(t, err)
		assert.True(t, again.Duplicate)
		assert.Equal(t, res.LogID, again.LogID)
		assert.Equal(t, res.DocumentIDs, again.DocumentIDs)
	}

	assert.Equal(t, 1, f.logs.Len())
	assert.Equal(t, 1, f.countDocuments(t, "tenant-1"))
	assert.Len(t, f.history(t, "tenant-1", res.DocumentIDs[0]), transitions)
	assert.Len(t, f.queue.ByQueue(queue.QueueOCR), 1)
}

func TestIngestWebhookKeepsLargeIntegerIDsDistinct(t *testing.T) {
	f := newFixture(t)
	first := `{"provider":"stripe","type":"payout.paid","data":{"payoutId":9007199254740993}}`
	second := `{"provider":"stripe","type":"payout.paid","data":{"payoutId":9007199254740992}}`

	a, err := f.svc.IngestWebhook(context.Background(), "tenant-1", WebhookRequest{Body: []byte(first)})
	require.NoError(t, err)
	b, err := f.svc.IngestWebhook(context.Background(), "tenant-1", WebhookRequest{Body: []byte(second)})
	require.NoError(t, err)

	assert.False(t, b.Duplicate)
	assert.NotEqual(t, a.LogID, b.LogID)
	assert.Equal(t, 2, f.logs.Len())
}

func TestIngestWebhookWithoutAttachmentsStillLogs(t *testing.T) {
	f := newFixture(t)
	body := `{"provider":"stripe","type":"invoice.paid","id":"evt_1","data":{"object":{"amount":1200}}}`

	res, err := f.svc.IngestWebhook(context.Background(), "tenant-1", WebhookRequest{Body: []byte(body)})
	require.NoError(t, err)
	assert.NotEmpty(t, res.LogID)
	assert.Empty(t, res.DocumentIDs)
	assert.Equal(t, 1, f.logs.Len())
}

func TestIngestWebhookUnhandledProvider(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.IngestWebhook(context.Background(), "tenant-1", WebhookRequest{Body: []byte(`{"provider":"freshbooks"}`)})
	assert.ErrorIs(t, err, ErrUnhandledProvider)
	assert.Zero(t, f.logs.Len())
}

func TestIngestWebhookSignature(t *testing.T) {
	f := newFixture(t)
	f.svc.Secrets["xero"] = "s3cret"
	body := []byte(xeroWebhook())
	ts := strconv.FormatInt(fixedNow.Unix(), 10)

	_, err := f.svc.IngestWebhook(context.Background(), "tenant-1", WebhookRequest{Body: body})
	assert.ErrorIs(t, err, ErrSignature)

	_, err = f.svc.IngestWebhook(context.Background(), "tenant-1", WebhookRequest{Body: body, Timestamp: ts, Signature: "deadbeef"})
	assert.ErrorIs(t, err, ErrSignature)

	stale := strconv.FormatInt(fixedNow.Add(-10*time.Minute).Unix(), 10)
	_, err = f.svc.IngestWebhook(context.Background(), "tenant-1", WebhookRequest{Body: body, Timestamp: stale, Signature: Sign("s3cret", stale, body)})
	assert.ErrorIs(t, err, ErrSignature)
	assert.Zero(t, f.logs.Len())

	res, err := f.svc.IngestWebhook(context.Background(), "tenant-1", WebhookRequest{Body: body, Timestamp: ts, Signature: "sha256=" + Sign("s3cret", ts, body)})
	require.NoError(t, err)
	assert.Len(t, res.DocumentIDs, 1)
}

func TestIngestWebhookPayloadSignature(t *testing.T) {
	f := newFixture(t)
	f.svc.Secrets["generic"] = "k"
	ts := fixedNow.Format(time.RFC3339)
	data := `{"reference":"R-1"}`
	sig := Sign("k", ts, []byte(data))
	body := fmt.Sprintf(`{"provider":"generic","eventType":"doc","timestamp":%q,"signature":%q,"data":%s}`, ts, sig, data)

	_, err := f.svc.IngestWebhook(context.Background(), "tenant-1", WebhookRequest{Body: []byte(body)})
	require.NoError(t, err)
}

func TestVerifySignatureAcceptsRFC3339(t *testing.T) {
	body := []byte(`{"a":1}`)
	ts := fixedNow.Add(-4 * time.Minute).Format(time.RFC3339)
	assert.NoError(t, VerifySignature("k", ts, Sign("k", ts, body), body, fixedNow, MaxSignatureSkew))
	assert.ErrorIs(t, VerifySignature("k", "yesterday", "x", body, fixedNow, MaxSignatureSkew), ErrSignature)
}
