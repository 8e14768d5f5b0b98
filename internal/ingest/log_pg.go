package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PGLogRepo implements LogRepo using Postgres.
type PGLogRepo struct {
	DB *sql.DB
}

const logColumns = `id, tenant_id, source_type, connector_provider, payload_hash, payload, metadata, completed, created_at`

// Claim inserts the log row. When the dedup key already exists nothing is
// inserted and the existing row is returned instead. A conflicting row that is
// released before it can be read is claimed again once.
func (r *PGLogRepo) Claim(ctx context.Context, log Log) (Log, bool, error) {
	payload, err := encodeJSON(log.Payload)
	if err != nil {
		return Log{}, false, fmt.Errorf("encode payload: %w", err)
	}
	metadata, err := encodeJSON(log.Metadata)
	if err != nil {
		return Log{}, false, fmt.Errorf("encode metadata: %w", err)
	}

	var provider sql.NullString
	if log.ConnectorProvider != "" {
		provider = sql.NullString{String: log.ConnectorProvider, Valid: true}
	}
	for attempt := 0; ; attempt++ {
		res, err := r.DB.ExecContext(ctx, `
INSERT INTO ingestion_logs (`+logColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, false, $8)
ON CONFLICT (tenant_id, source_type, payload_hash) DO NOTHING`,
			log.ID, log.TenantID, string(log.SourceType), provider, log.PayloadHash, payload, metadata, log.CreatedAt)
		if err != nil {
			return Log{}, false, fmt.Errorf("claim ingestion log: %w", err)
		}
		inserted, err := res.RowsAffected()
		if err != nil {
			return Log{}, false, fmt.Errorf("claim ingestion log: %w", err)
		}
		if inserted == 1 {
			return log, true, nil
		}

		existing, err := scanLog(r.DB.QueryRowContext(ctx, `
SELECT `+logColumns+`
FROM ingestion_logs
WHERE tenant_id = $1 AND source_type = $2 AND payload_hash = $3`,
			log.TenantID, string(log.SourceType), log.PayloadHash))
		if errors.Is(err, sql.ErrNoRows) && attempt == 0 {
			continue
		}
		if err != nil {
			return Log{}, false, fmt.Errorf("load claimed ingestion log: %w", err)
		}
		return existing, false, nil
	}
}

func (r *PGLogRepo) Complete(ctx context.Context, tenantID, id string, metadata map[string]any) error {
	encoded, err := encodeJSON(metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	res, err := r.DB.ExecContext(ctx, `
UPDATE ingestion_logs
SET metadata = metadata || $1::jsonb, completed = true
WHERE id = $2 AND tenant_id = $3`,
		encoded, id, tenantID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrLogNotFound
	}
	return nil
}

func (r *PGLogRepo) Release(ctx context.Context, tenantID, id string) error {
	_, err := r.DB.ExecContext(ctx,
		`DELETE FROM ingestion_logs WHERE id = $1 AND tenant_id = $2 AND completed = false`,
		id, tenantID)
	return err
}

func (r *PGLogRepo) GetByID(ctx context.Context, tenantID, id string) (Log, error) {
	log, err := scanLog(r.DB.QueryRowContext(ctx, `
SELECT `+logColumns+`
FROM ingestion_logs
WHERE id = $1 AND tenant_id = $2`, id, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return Log{}, ErrLogNotFound
	}
	return log, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLog(s rowScanner) (Log, error) {
	var log Log
	var source string
	var provider sql.NullString
	var payload, metadata []byte
	if err := s.Scan(
		&log.ID,
		&log.TenantID,
		&source,
		&provider,
		&log.PayloadHash,
		&payload,
		&metadata,
		&log.Completed,
		&log.CreatedAt,
	); err != nil {
		return Log{}, err
	}
	log.SourceType = SourceType(source)
	log.ConnectorProvider = provider.String
	log.Payload = map[string]any{}
	log.Metadata = map[string]any{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &log.Payload); err != nil {
			return Log{}, fmt.Errorf("decode payload: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &log.Metadata); err != nil {
			return Log{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return log, nil
}

func encodeJSON(v map[string]any) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

var _ LogRepo = (*PGLogRepo)(nil)
