package queue

import (
	"encoding/json"
	"errors"
	"strings"
)

// MessageVersion is stamped on every job so workers can reject payloads they do not understand.
const MessageVersion = 1

// OCRJob asks the OCR worker to extract text from a stored file.
type OCRJob struct {
	DocumentID string `json:"documentId"`
	TenantID   string `json:"tenantId"`
	StorageKey string `json:"storageKey"`
	MimeType   string `json:"mimeType,omitempty"`
	Trigger    string `json:"trigger"`
	EnqueuedAt string `json:"enqueuedAt"`
	Version    int    `json:"version"`
}

// ClassificationJob carries previously extracted text to the classifier.
type ClassificationJob struct {
	DocumentID    string `json:"documentId"`
	TenantID      string `json:"tenantId"`
	ExtractedText string `json:"extractedText"`
	Trigger       string `json:"trigger"`
	EnqueuedAt    string `json:"enqueuedAt"`
	Version       int    `json:"version"`
}

// PostingJob hands a classified document to the ledger posting worker.
type PostingJob struct {
	DocumentID     string         `json:"documentId"`
	TenantID       string         `json:"tenantId"`
	Classification map[string]any `json:"classification,omitempty"`
	Trigger        string         `json:"trigger"`
	EnqueuedAt     string         `json:"enqueuedAt"`
	Version        int            `json:"version"`
}

// ResultMessage is what workers report back on the results queue.
type ResultMessage struct {
	DocumentID    string         `json:"documentId"`
	TenantID      string         `json:"tenantId"`
	Status        string         `json:"status"`
	ExtractedData map[string]any `json:"extractedData,omitempty"`
	ErrorMessage  string         `json:"errorMessage,omitempty"`
	Trigger       string         `json:"trigger,omitempty"`
}

var (
	ErrMissingDocumentID = errors.New("missing document id")
	ErrMissingTenantID   = errors.New("missing tenant id")
	ErrMissingStatus     = errors.New("missing status")
)

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(v any) ([]byte, error) {
	return json.Marshal(v)
}

// DecodeResult parses and validates a worker result payload.
func DecodeResult(payload []byte) (ResultMessage, error) {
	var msg ResultMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return ResultMessage{}, err
	}
	msg.DocumentID = strings.TrimSpace(msg.DocumentID)
	msg.TenantID = strings.TrimSpace(msg.TenantID)
	msg.Status = strings.TrimSpace(msg.Status)
	switch {
	case msg.DocumentID == "":
		return msg, ErrMissingDocumentID
	case msg.TenantID == "":
		return msg, ErrMissingTenantID
	case msg.Status == "":
		return msg, ErrMissingStatus
	}
	return msg, nil
}
