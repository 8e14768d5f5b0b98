package ingest

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockLogRepo(t *testing.T) (*PGLogRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &PGLogRepo{DB: db}, mock
}

var logRowColumns = []string{"id", "tenant_id", "source_type", "connector_provider", "payload_hash", "payload", "metadata", "completed", "created_at"}

func TestPGLogRepoClaimInserts(t *testing.T) {
	repo, mock := newMockLogRepo(t)
	at := time.Date(2026, time.May, 4, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO ingestion_logs").
		WithArgs("log-1", "tenant-1", "webhook", "stripe", "hash-1", []byte(`{"a":1}`), []byte("{}"), at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	log, claimed, err := repo.Claim(context.Background(), Log{
		ID:                "log-1",
		TenantID:          "tenant-1",
		SourceType:        SourceWebhook,
		ConnectorProvider: "stripe",
		PayloadHash:       "hash-1",
		Payload:           map[string]any{"a": 1},
		CreatedAt:         at,
	})
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if !claimed || log.ID != "log-1" {
		t.Fatalf("expected fresh claim, got claimed=%v log=%+v", claimed, log)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGLogRepoClaimConflictReturnsExisting(t *testing.T) {
	repo, mock := newMockLogRepo(t)
	at := time.Date(2026, time.May, 4, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("ON CONFLICT \\(tenant_id, source_type, payload_hash\\) DO NOTHING").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT .+ FROM ingestion_logs\\s+WHERE tenant_id = \\$1 AND source_type = \\$2 AND payload_hash = \\$3").
		WithArgs("tenant-1", "email", "hash-1").
		WillReturnRows(sqlmock.NewRows(logRowColumns).
			AddRow("log-0", "tenant-1", "email", nil, "hash-1", []byte(`{}`), []byte(`{"documentIds":["doc-9"]}`), true, at))

	log, claimed, err := repo.Claim(context.Background(), Log{
		ID:          "log-1",
		TenantID:    "tenant-1",
		SourceType:  SourceEmail,
		PayloadHash: "hash-1",
		CreatedAt:   at,
	})
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed {
		t.Fatal("expected duplicate")
	}
	if log.ID != "log-0" || !log.Completed {
		t.Fatalf("unexpected existing log: %+v", log)
	}
	if ids := log.DocumentIDs(); len(ids) != 1 || ids[0] != "doc-9" {
		t.Fatalf("unexpected document ids: %v", ids)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGLogRepoClaimRetriesWhenConflictVanishes(t *testing.T) {
	repo, mock := newMockLogRepo(t)
	at := time.Date(2026, time.May, 4, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO ingestion_logs").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT .+ FROM ingestion_logs\\s+WHERE tenant_id = \\$1 AND source_type = \\$2 AND payload_hash = \\$3").
		WithArgs("tenant-1", "email", "hash-1").
		WillReturnRows(sqlmock.NewRows(logRowColumns))
	mock.ExpectExec("INSERT INTO ingestion_logs").
		WithArgs("log-1", "tenant-1", "email", nil, "hash-1", []byte("{}"), []byte("{}"), at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	log, claimed, err := repo.Claim(context.Background(), Log{
		ID:          "log-1",
		TenantID:    "tenant-1",
		SourceType:  SourceEmail,
		PayloadHash: "hash-1",
		CreatedAt:   at,
	})
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if !claimed || log.ID != "log-1" {
		t.Fatalf("expected the retried insert to win, got claimed=%v log=%+v", claimed, log)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGLogRepoCompleteMissing(t *testing.T) {
	repo, mock := newMockLogRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`SET metadata = metadata || $1::jsonb, completed = true`)).
		WithArgs([]byte(`{"failedCount":0}`), "log-1", "tenant-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Complete(context.Background(), "tenant-1", "log-1", map[string]any{"failedCount": 0})
	if !errors.Is(err, ErrLogNotFound) {
		t.Fatalf("expected ErrLogNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGLogRepoReleaseKeepsCompleted(t *testing.T) {
	repo, mock := newMockLogRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM ingestion_logs WHERE id = $1 AND tenant_id = $2 AND completed = false`)).
		WithArgs("log-1", "tenant-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Release(context.Background(), "tenant-1", "log-1"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGLogRepoGetByIDNotFound(t *testing.T) {
	repo, mock := newMockLogRepo(t)

	mock.ExpectQuery("SELECT .+ FROM ingestion_logs\\s+WHERE id = \\$1 AND tenant_id = \\$2").
		WithArgs("log-1", "tenant-2").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "tenant-2", "log-1")
	if !errors.Is(err, ErrLogNotFound) {
		t.Fatalf("expected ErrLogNotFound, got %v", err)
	}
}
