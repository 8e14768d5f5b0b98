package object

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

// ErrInvalidKey is returned when a storage key escapes the store root.
var ErrInvalidKey = errors.New("invalid storage key")

// ErrNotFound is returned when no object exists at a key.
var ErrNotFound = errors.New("object not found")

// ObjectStore defines the contract for saving and retrieving binary objects.
type ObjectStore interface {
	Put(ctx context.Context, storageKey string, contentType string, r io.Reader) (int64, error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
}

// DocumentKey builds the per-tenant, per-document storage key for a sanitized file name.
func DocumentKey(tenantID, documentID, fileName string) string {
	return path.Join("tenants", tenantID, "documents", documentID, fileName)
}

// CleanKey normalizes a slash separated key and rejects traversal.
func CleanKey(storageKey string) (string, error) {
	clean := path.Clean(strings.TrimLeft(strings.TrimSpace(storageKey), "/"))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", ErrInvalidKey
	}
	return clean, nil
}
