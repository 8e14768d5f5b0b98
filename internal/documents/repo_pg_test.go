package documents

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func newMockRepo(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &PGRepo{DB: db}, mock
}

func lockRows(status string, updatedAt time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"status", "updated_at"}).AddRow(status, updatedAt)
}

func TestPGRepoTransitionLocksUpdatesAndAppends(t *testing.T) {
	repo, mock := newMockRepo(t)
	prev := time.Date(2026, time.March, 1, 9, 59, 0, 0, time.UTC)
	at := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status, updated_at FROM documents WHERE id = $1 AND tenant_id = $2 FOR UPDATE`)).
		WithArgs("doc-1", "tenant-1").
		WillReturnRows(lockRows("UPLOADED", prev))
	mock.ExpectExec("UPDATE documents\\s+SET status = \\$1").
		WithArgs("PROCESSING", "ocr", nil, []byte("{}"), at, "doc-1", "tenant-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO document_stage_transitions").
		WithArgs("tr-1", "doc-1", "tenant-1", "UPLOADED", "PROCESSING", "document", "ocr", "ocr_enqueued", sqlmock.AnyArg(), at).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	row, err := repo.Transition(context.Background(), Transition{
		ID:         "tr-1",
		DocumentID: "doc-1",
		TenantID:   "tenant-1",
		ToStatus:   StatusProcessing,
		Trigger:    "ocr_enqueued",
		Clock:      func() time.Time { return at },
	})
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if row.FromStatus == nil || *row.FromStatus != StatusUploaded {
		t.Fatalf("expected from status UPLOADED, got %v", row.FromStatus)
	}
	if row.ToStage != StageOCR {
		t.Fatalf("expected to stage ocr, got %s", row.ToStage)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoTransitionStampsAfterLockedUpdatedAt(t *testing.T) {
	repo, mock := newMockRepo(t)
	stale := time.Date(2026, time.March, 1, 9, 0, 2, 0, time.UTC)
	committed := time.Date(2026, time.March, 1, 9, 0, 3, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("doc-1", "tenant-1").
		WillReturnRows(lockRows("PROCESSING", committed))
	mock.ExpectExec("UPDATE documents\\s+SET status = \\$1").
		WithArgs("ERROR", "error", "ocr failed", []byte(`{"rawText":""}`), committed, "doc-1", "tenant-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO document_stage_transitions").
		WithArgs("tr-2", "doc-1", "tenant-1", "PROCESSING", "ERROR", "ocr", "error", "worker_error", sqlmock.AnyArg(), committed).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	row, err := repo.Transition(context.Background(), Transition{
		ID: "tr-2", DocumentID: "doc-1", TenantID: "tenant-1",
		ToStatus: StatusError, Trigger: "worker_error", ErrorMessage: "ocr failed",
		ExtractedData: map[string]any{"rawText": ""},
		Clock:         func() time.Time { return stale },
	})
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if !row.CreatedAt.Equal(committed) {
		t.Fatalf("expected stamp clamped to %s, got %s", committed, row.CreatedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoTransitionStageOnlyKeepsStatus(t *testing.T) {
	repo, mock := newMockRepo(t)
	at := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("doc-1", "tenant-1").
		WillReturnRows(lockRows("UPLOADED", at.Add(-time.Second)))
	mock.ExpectExec(regexp.QuoteMeta("error_message = COALESCE($2, error_message)")).
		WithArgs("document", nil, []byte("{}"), at, "doc-1", "tenant-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO document_stage_transitions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	_, err := repo.Transition(context.Background(), Transition{
		ID: "tr-1", DocumentID: "doc-1", TenantID: "tenant-1",
		ToStatus: StatusUploaded, Trigger: "upload", StageOnly: true,
		Clock: func() time.Time { return at },
	})
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoTransitionMissingDocumentRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("doc-1", "tenant-2").
		WillReturnRows(sqlmock.NewRows([]string{"status", "updated_at"}))
	mock.ExpectRollback()

	_, err := repo.Transition(context.Background(), Transition{
		ID: "tr-1", DocumentID: "doc-1", TenantID: "tenant-2",
		ToStatus: StatusProcessing, Trigger: "ocr_enqueued",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoTransitionRejectedMoveWritesNothing(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("doc-1", "tenant-1").
		WillReturnRows(lockRows("POSTED", time.Now().UTC()))
	mock.ExpectRollback()

	_, err := repo.Transition(context.Background(), Transition{
		ID: "tr-1", DocumentID: "doc-1", TenantID: "tenant-1",
		ToStatus: StatusError, Trigger: "worker_failed",
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoHistoryOrdersBySeq(t *testing.T) {
	repo, mock := newMockRepo(t)
	t0 := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("doc-1", "tenant-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY seq ASC")).
		WithArgs("doc-1", "tenant-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "document_id", "tenant_id", "from_status", "to_status", "from_stage", "to_stage", "trigger", "metadata", "created_at"}).
			AddRow("tr-1", "doc-1", "tenant-1", "UPLOADED", "UPLOADED", "document", "document", "upload", []byte(`{}`), t0).
			AddRow("tr-2", "doc-1", "tenant-1", "UPLOADED", "PROCESSING", "document", "ocr", "ocr_enqueued", []byte(`{"queue":"ocr"}`), t0.Add(time.Second)))

	rows, err := repo.History(context.Background(), "tenant-1", "doc-1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[1].ToStatus != StatusProcessing || rows[1].Metadata["queue"] != "ocr" {
		t.Fatalf("unexpected second row: %+v", rows[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoHistoryUnknownDocument(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("doc-1", "tenant-2").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	if _, err := repo.History(context.Background(), "tenant-2", "doc-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoCreateDuplicateID(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("INSERT INTO documents").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), Document{ID: "doc-1", TenantID: "tenant-1", Status: StatusUploaded})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
