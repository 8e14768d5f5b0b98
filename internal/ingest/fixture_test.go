package ingest

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"intake-backend/internal/documents"
	"intake-backend/internal/pipeline"
	"intake-backend/internal/queue"
	"intake-backend/internal/shared/storage/object/memory"
)

var fixedNow = time.Date(2026, time.May, 4, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *Service
	docs  *documents.Service
	repo  *documents.MemoryRepo
	logs  *MemoryLogRepo
	store *memory.Store
	queue *queue.MemoryPublisher
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	repo := documents.NewMemoryRepo()
	docs := documents.NewService(repo)
	clock := func() time.Time { return fixedNow }
	docs.Now = clock
	docs.Ledger.Now = clock
	pub := queue.NewMemoryPublisher()
	pipe := pipeline.NewService(docs, pub)
	pipe.Now = clock
	logs := NewMemoryLogRepo()
	store := memory.New()
	svc := &Service{
		Docs:        docs,
		Pipeline:    pipe,
		Store:       store,
		Logs:        logs,
		Secrets:     map[string]string{},
		BlobTimeout: time.Second,
		Now:         clock,
	}
	return fixture{svc: svc, docs: docs, repo: repo, logs: logs, store: store, queue: pub}
}

func (f fixture) doc(t *testing.T, tenantID, id string) documents.Document {
	t.Helper()
	doc, err := f.docs.Get(context.Background(), tenantID, id)
	require.NoError(t, err)
	return doc
}

func (f fixture) history(t *testing.T, tenantID, id string) []documents.StageTransition {
	t.Helper()
	rows, err := f.docs.Ledger.GetHistory(context.Background(), tenantID, id)
	require.NoError(t, err)
	return rows
}

func (f fixture) countDocuments(t *testing.T, tenantID string) int {
	t.Helper()
	docs, err := f.docs.List(context.Background(), tenantID, documents.ListFilter{Limit: 100})
	require.NoError(t, err)
	return len(docs)
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}
