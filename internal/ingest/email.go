package ingest

import (
	"context"
	"path/filepath"
	"strings"

	"intake-backend/internal/documents"
	"intake-backend/internal/shared/metrics"
	"intake-backend/internal/shared/telemetry"
)

// EmailPayload is an inbound email forwarded by the mail provider.
type EmailPayload struct {
	From        string            `json:"from"`
	To          string            `json:"to,omitempty"`
	Subject     string            `json:"subject"`
	Body        string            `json:"body,omitempty"`
	Text        string            `json:"text,omitempty"`
	MessageID   string            `json:"messageId,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Attachments []RawAttachment   `json:"attachments,omitempty"`
}

// BodyText returns the body, falling back to the plain text part.
func (p EmailPayload) BodyText() string {
	if p.Body != "" {
		return p.Body
	}
	return p.Text
}

var relevantExtensions = map[string]bool{
	".pdf": true, ".png": true, ".jpg": true, ".jpeg": true, ".heic": true,
	".webp": true, ".tif": true, ".tiff": true, ".csv": true, ".xml": true,
}

var (
	spamTerms        = []string{"viagra", "lottery", "winner", "crypto giveaway"}
	promotionalTerms = []string{"sale", "discount", "% off", "limited time", "special offer", "promo"}
)

// IsRelevantEmail reports whether an email carries at least one financial
// attachment and does not look like spam.
func IsRelevantEmail(p EmailPayload) bool {
	if IsSpam(p) {
		return false
	}
	for _, att := range p.Attachments {
		if isRelevantAttachment(att.FileName(), att.Type()) {
			return true
		}
	}
	return false
}

// IsSpam applies the spam header and keyword rules.
func IsSpam(p EmailPayload) bool {
	for k, v := range p.Headers {
		if strings.EqualFold(k, "X-Spam-Flag") && strings.EqualFold(strings.TrimSpace(v), "YES") {
			return true
		}
	}
	text := strings.ToLower(p.Subject + "\n" + p.BodyText())
	for _, term := range spamTerms {
		if strings.Contains(text, term) {
			return true
		}
	}
	if strings.Contains(text, "unsubscribe") {
		for _, term := range promotionalTerms {
			if strings.Contains(text, term) {
				return true
			}
		}
	}
	return false
}

func isRelevantAttachment(fileName, contentType string) bool {
	if relevantExtensions[strings.ToLower(filepath.Ext(fileName))] {
		return true
	}
	ct := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	switch {
	case ct == "application/pdf", strings.HasPrefix(ct, "image/"):
		return true
	case ct == "text/csv", ct == "application/xml", ct == "text/xml":
		return true
	}
	return false
}

// IngestEmail validates, deduplicates and ingests an email delivery.
// Irrelevant emails return Filtered with nothing written.
func (s *Service) IngestEmail(ctx context.Context, tenantID string, body []byte) (Result, error) {
	var p EmailPayload
	if err := validatePayload(emailPayloadSchema, body, &p); err != nil {
		return Result{}, err
	}
	p.From = strings.TrimSpace(p.From)

	if !IsRelevantEmail(p) {
		metrics.IncDelivery(string(SourceEmail), "filtered")
		telemetry.Info("ingest.email.filtered", map[string]any{
			"tenant_id":   tenantID,
			"attachments": len(p.Attachments),
			"spam":        IsSpam(p),
		})
		return Result{Filtered: true, DocumentIDs: []string{}}, nil
	}

	return s.deliver(ctx, delivery{
		tenantID: tenantID,
		source:   SourceEmail,
		hash:     EmailFingerprint(p.From, p.Subject, p.BodyText()),
		summary: map[string]any{
			"from":        p.From,
			"to":          p.To,
			"subject":     p.Subject,
			"messageId":   p.MessageID,
			"attachments": attachmentNames(p.Attachments),
		},
		trigger:      "email",
		uploadSource: documents.SourceEmail,
		attachments:  relevantAttachments(p.Attachments),
	})
}

func relevantAttachments(all []RawAttachment) []RawAttachment {
	out := make([]RawAttachment, 0, len(all))
	for _, att := range all {
		if isRelevantAttachment(att.FileName(), att.Type()) {
			out = append(out, att)
		}
	}
	return out
}

func attachmentNames(all []RawAttachment) []string {
	out := make([]string, 0, len(all))
	for _, att := range all {
		out = append(out, att.FileName())
	}
	return out
}
