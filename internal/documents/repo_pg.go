package documents

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"intake-backend/internal/quality"
	"intake-backend/internal/shared/storage/db"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const documentColumns = `id, tenant_id, file_name, mime_type, byte_size, storage_key, checksum, document_type, status, processing_stage, extracted_data, quality_score, quality_issues, quality_checklist, error_message, upload_source, created_at, updated_at`

// Create inserts a new document.
func (r *PGRepo) Create(ctx context.Context, doc Document) error {
	const query = `
INSERT INTO documents (` + documentColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	extracted, err := marshalJSON(doc.ExtractedData, "{}")
	if err != nil {
		return fmt.Errorf("encode extracted data: %w", err)
	}
	issues, err := marshalJSON(doc.QualityIssues, "[]")
	if err != nil {
		return fmt.Errorf("encode quality issues: %w", err)
	}
	checklist, err := marshalJSON(doc.QualityChecklist, "[]")
	if err != nil {
		return fmt.Errorf("encode quality checklist: %w", err)
	}

	_, err = r.DB.ExecContext(
		ctx,
		query,
		doc.ID,
		doc.TenantID,
		doc.FileName,
		doc.MimeType,
		doc.ByteSize,
		doc.StorageKey,
		doc.Checksum,
		string(doc.DocumentType),
		string(doc.Status),
		string(doc.ProcessingStage),
		extracted,
		doc.QualityScore,
		issues,
		checklist,
		nullString(doc.ErrorMessage),
		string(doc.UploadSource),
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if db.IsUniqueViolation(err) {
		return Invalid("id", "already exists")
	}
	return err
}

// GetByID fetches a document scoped to the tenant.
func (r *PGRepo) GetByID(ctx context.Context, tenantID, documentID string) (Document, error) {
	const query = `
SELECT ` + documentColumns + `
FROM documents
WHERE tenant_id = $1 AND id = $2
LIMIT 1`
	doc, err := scanDocument(r.DB.QueryRowContext(ctx, query, tenantID, documentID))
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	return doc, err
}

// List lists tenant documents ordered newest-first.
func (r *PGRepo) List(ctx context.Context, tenantID string, filter ListFilter) ([]Document, error) {
	filter = clampListFilter(filter)
	const query = `
SELECT ` + documentColumns + `
FROM documents
WHERE tenant_id = $1
  AND ($2 = '' OR status = $2)
  AND ($3 = '' OR processing_stage = $3)
ORDER BY created_at DESC, id DESC
LIMIT $4 OFFSET $5`

	rows, err := r.DB.QueryContext(ctx, query, tenantID, string(filter.Status), string(filter.Stage), filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// ListStale returns documents in status last updated before cutoff, oldest first.
func (r *PGRepo) ListStale(ctx context.Context, status Status, cutoff time.Time, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
SELECT ` + documentColumns + `
FROM documents
WHERE status = $1 AND updated_at < $2
ORDER BY updated_at ASC
LIMIT $3`

	rows, err := r.DB.QueryContext(ctx, query, string(status), cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// Transition runs the lock, check, update and append steps in one transaction.
// The stamp is taken after the row lock is held so a writer that waited on
// the lock never sorts before the one it waited for.
func (r *PGRepo) Transition(ctx context.Context, t Transition) (StageTransition, error) {
	metadata, err := marshalJSON(t.Metadata, "{}")
	if err != nil {
		return StageTransition{}, fmt.Errorf("encode metadata: %w", err)
	}
	patch, err := marshalJSON(t.ExtractedData, "{}")
	if err != nil {
		return StageTransition{}, fmt.Errorf("encode extracted data: %w", err)
	}

	var row StageTransition
	err = db.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		var current string
		var updatedAt time.Time
		err := tx.QueryRowContext(ctx,
			`SELECT status, updated_at FROM documents WHERE id = $1 AND tenant_id = $2 FOR UPDATE`,
			t.DocumentID, t.TenantID,
		).Scan(&current, &updatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock document: %w", err)
		}

		from := Status(current)
		if err := CheckTransition(from, t); err != nil {
			return err
		}
		at := t.stampAfter(updatedAt)

		row = StageTransition{
			ID:         t.ID,
			DocumentID: t.DocumentID,
			TenantID:   t.TenantID,
			FromStatus: statusPtr(from),
			ToStatus:   t.ToStatus,
			FromStage:  StageFor(from),
			ToStage:    StageFor(t.ToStatus),
			Trigger:    t.Trigger,
			Metadata:   t.Metadata,
			CreatedAt:  at,
		}

		var errMsg sql.NullString
		if t.ErrorMessage != "" {
			errMsg = sql.NullString{String: t.ErrorMessage, Valid: true}
		}

		if t.StageOnly {
			_, err = tx.ExecContext(ctx, `
UPDATE documents
SET processing_stage = $1, error_message = COALESCE($2, error_message), extracted_data = extracted_data || $3::jsonb, updated_at = $4
WHERE id = $5 AND tenant_id = $6`,
				string(row.ToStage), errMsg, patch, at, t.DocumentID, t.TenantID)
		} else {
			_, err = tx.ExecContext(ctx, `
UPDATE documents
SET status = $1, processing_stage = $2, error_message = $3, extracted_data = extracted_data || $4::jsonb, updated_at = $5
WHERE id = $6 AND tenant_id = $7`,
				string(t.ToStatus), string(row.ToStage), errMsg, patch, at, t.DocumentID, t.TenantID)
		}
		if err != nil {
			return fmt.Errorf("update document: %w", err)
		}

		var fromStatus sql.NullString
		if row.FromStatus != nil {
			fromStatus = sql.NullString{String: string(*row.FromStatus), Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO document_stage_transitions (id, document_id, tenant_id, from_status, to_status, from_stage, to_stage, trigger, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			row.ID, row.DocumentID, row.TenantID, fromStatus, string(row.ToStatus),
			string(row.FromStage), string(row.ToStage), row.Trigger, metadata, row.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert transition: %w", err)
		}
		return nil
	})
	if err != nil {
		return StageTransition{}, err
	}
	return row, nil
}

// History returns transitions in commit order. seq is assigned under the row
// lock, so it is the commit order for one document.
func (r *PGRepo) History(ctx context.Context, tenantID, documentID string) ([]StageTransition, error) {
	var exists bool
	if err := r.DB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1 AND tenant_id = $2)`,
		documentID, tenantID,
	).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}

	const query = `
SELECT id, document_id, tenant_id, from_status, to_status, from_stage, to_stage, trigger, metadata, created_at
FROM document_stage_transitions
WHERE document_id = $1 AND tenant_id = $2
ORDER BY seq ASC`
	rows, err := r.DB.QueryContext(ctx, query, documentID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []StageTransition{}
	for rows.Next() {
		var row StageTransition
		var fromStatus sql.NullString
		var toStatus, fromStage, toStage string
		var metadata []byte
		if err := rows.Scan(
			&row.ID,
			&row.DocumentID,
			&row.TenantID,
			&fromStatus,
			&toStatus,
			&fromStage,
			&toStage,
			&row.Trigger,
			&metadata,
			&row.CreatedAt,
		); err != nil {
			return nil, err
		}
		if fromStatus.Valid {
			row.FromStatus = statusPtr(Status(fromStatus.String))
		}
		row.ToStatus = Status(toStatus)
		row.FromStage = Stage(fromStage)
		row.ToStage = Stage(toStage)
		row.Metadata = map[string]any{}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &row.Metadata); err != nil {
				return nil, fmt.Errorf("decode transition metadata: %w", err)
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(s rowScanner) (Document, error) {
	var doc Document
	var docType, status, stage, source string
	var extracted, issues, checklist []byte
	var errMsg sql.NullString
	if err := s.Scan(
		&doc.ID,
		&doc.TenantID,
		&doc.FileName,
		&doc.MimeType,
		&doc.ByteSize,
		&doc.StorageKey,
		&doc.Checksum,
		&docType,
		&status,
		&stage,
		&extracted,
		&doc.QualityScore,
		&issues,
		&checklist,
		&errMsg,
		&source,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	); err != nil {
		return Document{}, err
	}
	doc.DocumentType = quality.DocumentType(docType)
	doc.Status = Status(status)
	doc.ProcessingStage = Stage(stage)
	doc.UploadSource = UploadSource(source)
	if errMsg.Valid {
		msg := errMsg.String
		doc.ErrorMessage = &msg
	}
	doc.ExtractedData = map[string]any{}
	if len(extracted) > 0 {
		if err := json.Unmarshal(extracted, &doc.ExtractedData); err != nil {
			return Document{}, fmt.Errorf("decode extracted data: %w", err)
		}
	}
	if len(issues) > 0 {
		if err := json.Unmarshal(issues, &doc.QualityIssues); err != nil {
			return Document{}, fmt.Errorf("decode quality issues: %w", err)
		}
	}
	if len(checklist) > 0 {
		if err := json.Unmarshal(checklist, &doc.QualityChecklist); err != nil {
			return Document{}, fmt.Errorf("decode quality checklist: %w", err)
		}
	}
	return doc, nil
}

func marshalJSON(v any, empty string) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return []byte(empty), nil
	}
	return b, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

var _ Repo = (*PGRepo)(nil)
