package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SHA256Hex returns the hex encoded sha256 of b.
func SHA256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashParts joins parts with newlines and hashes the result. It is the
// canonical fingerprint primitive for ingestion payloads.
func HashParts(parts ...string) string {
	return SHA256Hex([]byte(strings.Join(parts, "\n")))
}
