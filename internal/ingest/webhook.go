package ingest

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"intake-backend/internal/documents"
	"intake-backend/internal/shared/metrics"
)

// Provider is a webhook sender this service understands.
type Provider string

const (
	ProviderStripe     Provider = "stripe"
	ProviderQuickBooks Provider = "quickbooks"
	ProviderXero       Provider = "xero"
	ProviderPlaid      Provider = "plaid"
	ProviderDext       Provider = "dext"
	ProviderGeneric    Provider = "generic"
)

// MaxSignatureSkew bounds how far a signed timestamp may drift from now.
const MaxSignatureSkew = 5 * time.Minute

var (
	ErrUnhandledProvider = errors.New("unhandled webhook provider")
	ErrSignature         = errors.New("invalid webhook signature")
)

// ParseProvider maps a raw provider name onto the closed provider set.
func ParseProvider(raw string) (Provider, bool) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(raw))); p {
	case ProviderStripe, ProviderQuickBooks, ProviderXero, ProviderPlaid, ProviderDext, ProviderGeneric:
		return p, true
	}
	return "", false
}

// WebhookPayload is the envelope every provider posts.
type WebhookPayload struct {
	Provider    string          `json:"provider"`
	EventType   string          `json:"eventType,omitempty"`
	EventTypeSC string          `json:"event_type,omitempty"`
	Type        string          `json:"type,omitempty"`
	WebhookID   string          `json:"webhookId,omitempty"`
	ID          string          `json:"id,omitempty"`
	Timestamp   json.RawMessage `json:"timestamp,omitempty"`
	Signature   string          `json:"signature,omitempty"`
	Data        map[string]any  `json:"data,omitempty"`
	Attachments []RawAttachment `json:"attachments,omitempty"`
}

// Event returns the event type, honouring each provider's field name.
func (p WebhookPayload) Event(provider Provider) string {
	switch provider {
	case ProviderStripe:
		return firstNonEmpty(p.Type, p.EventType, p.EventTypeSC)
	case ProviderPlaid:
		return firstNonEmpty(p.EventTypeSC, p.EventType, stringField(p.Data, "webhook_type"))
	case ProviderQuickBooks, ProviderXero:
		return firstNonEmpty(p.EventType, p.EventTypeSC, stringField(p.Data, "eventType"))
	default:
		return firstNonEmpty(p.EventType, p.EventTypeSC, p.Type)
	}
}

// DeliveryID returns the provider's webhook id.
func (p WebhookPayload) DeliveryID() string {
	return firstNonEmpty(p.WebhookID, p.ID)
}

// TimestampString returns the payload timestamp as sent.
func (p WebhookPayload) TimestampString() string {
	raw := strings.TrimSpace(string(p.Timestamp))
	if raw == "" || raw == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(p.Timestamp, &s); err == nil {
		return s
	}
	return raw
}

// AllAttachments returns top-level attachments followed by nested ones in data.
func (p WebhookPayload) AllAttachments() []RawAttachment {
	out := append([]RawAttachment(nil), p.Attachments...)
	return append(out, nestedAttachments(p.Data)...)
}

// WebhookRequest carries the raw body and signature headers.
type WebhookRequest struct {
	Body      []byte
	Signature string
	Timestamp string
}

// IngestWebhook validates, authenticates, deduplicates and ingests a webhook.
func (s *Service) IngestWebhook(ctx context.Context, tenantID string, req WebhookRequest) (Result, error) {
	var p WebhookPayload
	if err := validatePayload(webhookPayloadSchema, req.Body, &p); err != nil {
		return Result{}, err
	}
	provider, ok := ParseProvider(p.Provider)
	if !ok {
		metrics.IncDelivery(string(SourceWebhook), "unhandled")
		return Result{}, fmt.Errorf("%w: %s", ErrUnhandledProvider, p.Provider)
	}
	if err := s.verifySignature(provider, p, req); err != nil {
		metrics.IncDelivery(string(SourceWebhook), "rejected")
		return Result{}, err
	}

	eventType := p.Event(provider)
	hash, err := WebhookFingerprint(string(provider), eventType, p.Data, p.DeliveryID())
	if err != nil {
		return Result{}, err
	}

	attachments := p.AllAttachments()
	return s.deliver(ctx, delivery{
		tenantID: tenantID,
		source:   SourceWebhook,
		provider: string(provider),
		hash:     hash,
		summary: map[string]any{
			"provider":    string(provider),
			"eventType":   eventType,
			"webhookId":   p.DeliveryID(),
			"attachments": attachmentNames(attachments),
		},
		trigger:      string(provider) + "_webhook",
		uploadSource: documents.SourceWebhook,
		attachments:  attachments,
	})
}

// verifySignature checks the HMAC when a secret is configured for provider.
// Header signatures cover the raw body; payload signatures cover the
// canonical JSON of data.
func (s *Service) verifySignature(provider Provider, p WebhookPayload, req WebhookRequest) error {
	secret := strings.TrimSpace(s.Secrets[string(provider)])
	if secret == "" {
		return nil
	}

	signature := strings.TrimSpace(req.Signature)
	timestamp := strings.TrimSpace(req.Timestamp)
	signed := req.Body
	if signature == "" {
		signature = strings.TrimSpace(p.Signature)
		if timestamp == "" {
			timestamp = p.TimestampString()
		}
		canonical, err := CanonicalJSON(p.Data)
		if err != nil {
			return err
		}
		signed = []byte(canonical)
	}
	if signature == "" || timestamp == "" {
		return fmt.Errorf("%w: missing signature or timestamp", ErrSignature)
	}
	return VerifySignature(secret, timestamp, signature, signed, s.now(), MaxSignatureSkew)
}

// VerifySignature checks hex(HMAC-SHA256(secret, timestamp + "." + body))
// and rejects timestamps outside maxSkew.
func VerifySignature(secret, timestamp, signature string, body []byte, now time.Time, maxSkew time.Duration) error {
	ts, err := parseTimestamp(timestamp)
	if err != nil {
		return fmt.Errorf("%w: invalid timestamp", ErrSignature)
	}
	delta := now.Sub(ts)
	if delta < 0 {
		delta = -delta
	}
	if delta > maxSkew {
		return fmt.Errorf("%w: timestamp outside replay window", ErrSignature)
	}

	expected := Sign(secret, timestamp, body)
	got := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(signature), "sha256="))
	if !hmac.Equal([]byte(got), []byte(expected)) {
		return fmt.Errorf("%w: signature mismatch", ErrSignature)
	}
	return nil
}

// Sign returns the hex HMAC a sender attaches to body.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(timestamp))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func parseTimestamp(raw string) (time.Time, error) {
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Parse(time.RFC3339, raw)
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
