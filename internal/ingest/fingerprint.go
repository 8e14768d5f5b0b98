package ingest

import (
	"encoding/json"
	"fmt"

	"intake-backend/internal/shared/util"
)

const emailBodyPrefixRunes = 500

// EmailFingerprint hashes sender, subject and the first 500 runes of the body.
func EmailFingerprint(from, subject, body string) string {
	runes := []rune(body)
	if len(runes) > emailBodyPrefixRunes {
		runes = runes[:emailBodyPrefixRunes]
	}
	return util.HashParts(from, subject, string(runes))
}

// WebhookFingerprint hashes provider, event type, the canonical JSON of data
// and the webhook id.
func WebhookFingerprint(provider, eventType string, data map[string]any, webhookID string) (string, error) {
	if data == nil {
		data = map[string]any{}
	}
	canonical, err := CanonicalJSON(data)
	if err != nil {
		return "", err
	}
	return util.HashParts(provider, eventType, canonical, webhookID), nil
}

// CanonicalJSON encodes v with object keys sorted at every depth.
// encoding/json already sorts map keys, so any decoded payload is canonical.
func CanonicalJSON(v any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonical json: %w", err)
	}
	return string(b), nil
}
