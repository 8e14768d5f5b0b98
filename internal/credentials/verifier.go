package credentials

import (
	"context"
	"strings"

	"intake-backend/internal/shared/util"
)

// Verification is the outcome of checking an API key.
type Verification struct {
	IsValid  bool
	TenantID string
}

// Verifier resolves API keys to tenants. An unknown key is a valid call with
// IsValid=false; errors are reserved for infrastructure failures.
type Verifier interface {
	VerifyAPIKey(ctx context.Context, key string) (Verification, error)
}

// HashKey is the stored form of an API key.
func HashKey(key string) string {
	return util.SHA256Hex([]byte(strings.TrimSpace(key)))
}

// StaticVerifier checks keys against a fixed key -> tenant list.
type StaticVerifier struct {
	tenants map[string]string // key hash -> tenant id
}

// NewStatic builds a StaticVerifier from plain keys.
func NewStatic(keys map[string]string) *StaticVerifier {
	tenants := make(map[string]string, len(keys))
	for key, tenant := range keys {
		if strings.TrimSpace(key) == "" || strings.TrimSpace(tenant) == "" {
			continue
		}
		tenants[HashKey(key)] = strings.TrimSpace(tenant)
	}
	return &StaticVerifier{tenants: tenants}
}

// VerifyAPIKey implements Verifier.
func (v *StaticVerifier) VerifyAPIKey(ctx context.Context, key string) (Verification, error) {
	if err := ctx.Err(); err != nil {
		return Verification{}, err
	}
	if strings.TrimSpace(key) == "" {
		return Verification{}, nil
	}
	tenant, ok := v.tenants[HashKey(key)]
	if !ok {
		return Verification{}, nil
	}
	return Verification{IsValid: true, TenantID: tenant}, nil
}

// Chain tries each verifier in order and returns the first valid result.
type Chain []Verifier

// VerifyAPIKey implements Verifier.
func (c Chain) VerifyAPIKey(ctx context.Context, key string) (Verification, error) {
	for _, v := range c {
		if v == nil {
			continue
		}
		res, err := v.VerifyAPIKey(ctx, key)
		if err != nil {
			return Verification{}, err
		}
		if res.IsValid {
			return res, nil
		}
	}
	return Verification{}, nil
}
