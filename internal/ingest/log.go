package ingest

import (
	"context"
	"errors"
	"time"
)

// SourceType is the channel an ingestion log deduplicates.
type SourceType string

const (
	SourceEmail   SourceType = "email"
	SourceWebhook SourceType = "webhook"
	SourceCSV     SourceType = "csv"
)

// ErrLogNotFound is returned when an ingestion log does not exist for the tenant.
var ErrLogNotFound = errors.New("ingestion log not found")

// Log is the durable dedup record for one delivery.
type Log struct {
	ID                string
	TenantID          string
	SourceType        SourceType
	ConnectorProvider string
	PayloadHash       string
	Payload           map[string]any
	Metadata          map[string]any
	Completed         bool
	CreatedAt         time.Time
}

// DocumentIDs returns the document ids recorded on completion.
func (l Log) DocumentIDs() []string {
	raw, _ := l.Metadata["documentIds"].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	if typed, ok := l.Metadata["documentIds"].([]string); ok {
		return append(out, typed...)
	}
	return out
}

// LogRepo persists ingestion logs. Claim relies on the unique
// (tenant_id, source_type, payload_hash) key so only one racing delivery wins.
type LogRepo interface {
	// Claim inserts log unless its key exists. It returns the stored row and
	// whether this call created it.
	Claim(ctx context.Context, log Log) (Log, bool, error)
	// Complete marks a claimed log done and merges metadata into it.
	Complete(ctx context.Context, tenantID, id string, metadata map[string]any) error
	// Release deletes an uncompleted claim so the delivery can be retried.
	Release(ctx context.Context, tenantID, id string) error
	GetByID(ctx context.Context, tenantID, id string) (Log, error)
}

// LogResponse is the outward-facing representation of an ingestion log.
type LogResponse struct {
	ID                string         `json:"id"`
	TenantID          string         `json:"tenantId"`
	SourceType        string         `json:"sourceType"`
	ConnectorProvider string         `json:"connectorProvider,omitempty"`
	PayloadHash       string         `json:"payloadHash"`
	Payload           map[string]any `json:"payload"`
	Metadata          map[string]any `json:"metadata"`
	Completed         bool           `json:"completed"`
	DocumentIDs       []string       `json:"documentIds"`
	CreatedAt         time.Time      `json:"createdAt"`
}
