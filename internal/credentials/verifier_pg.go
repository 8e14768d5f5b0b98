package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// PGVerifier looks keys up in the api_keys table by hash.
type PGVerifier struct {
	DB *sql.DB
}

// VerifyAPIKey implements Verifier.
func (v *PGVerifier) VerifyAPIKey(ctx context.Context, key string) (Verification, error) {
	if strings.TrimSpace(key) == "" {
		return Verification{}, nil
	}
	const query = `
SELECT tenant_id
FROM api_keys
WHERE key_hash = $1 AND revoked_at IS NULL
LIMIT 1`
	var tenant string
	err := v.DB.QueryRowContext(ctx, query, HashKey(key)).Scan(&tenant)
	if errors.Is(err, sql.ErrNoRows) {
		return Verification{}, nil
	}
	if err != nil {
		return Verification{}, fmt.Errorf("verify api key: %w", err)
	}
	return Verification{IsValid: true, TenantID: tenant}, nil
}

var _ Verifier = (*PGVerifier)(nil)
