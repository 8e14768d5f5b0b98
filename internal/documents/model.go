package documents

import (
	"strings"
	"time"

	"intake-backend/internal/quality"
)

// Status is the externally visible lifecycle state of a document.
type Status string

const (
	StatusUploaded   Status = "UPLOADED"
	StatusProcessing Status = "PROCESSING"
	StatusExtracted  Status = "EXTRACTED"
	StatusClassified Status = "CLASSIFIED"
	StatusPosted     Status = "POSTED"
	StatusError      Status = "ERROR"
)

// Stage is the coarse pipeline phase, always derived from Status.
type Stage string

const (
	StageDocument       Stage = "document"
	StageOCR            Stage = "ocr"
	StageClassification Stage = "classification"
	StageLedgerPosting  Stage = "ledger_posting"
	StageCompleted      Stage = "completed"
	StageError          Stage = "error"
)

// StageFor projects a status onto its stage. Unknown statuses map to document.
func StageFor(status Status) Stage {
	switch status {
	case StatusUploaded:
		return StageDocument
	case StatusProcessing:
		return StageOCR
	case StatusExtracted:
		return StageClassification
	case StatusClassified:
		return StageLedgerPosting
	case StatusPosted:
		return StageCompleted
	case StatusError:
		return StageError
	default:
		return StageDocument
	}
}

// ParseStatus validates a raw status string.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	switch s {
	case StatusUploaded, StatusProcessing, StatusExtracted, StatusClassified, StatusPosted, StatusError:
		return s, true
	}
	return "", false
}

// ParseStage validates a raw stage string.
func ParseStage(raw string) (Stage, bool) {
	s := Stage(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case StageDocument, StageOCR, StageClassification, StageLedgerPosting, StageCompleted, StageError:
		return s, true
	}
	return "", false
}

// UploadSource records which channel produced a document.
type UploadSource string

const (
	SourceDashboard  UploadSource = "dashboard"
	SourceOnboarding UploadSource = "onboarding"
	SourceMobile     UploadSource = "mobile"
	SourceAPI        UploadSource = "api"
	SourceEmail      UploadSource = "email"
	SourceWebhook    UploadSource = "webhook"
	SourceCSV        UploadSource = "csv"
	SourceLegacy     UploadSource = "legacy"
)

// ParseUploadSource validates a raw upload source.
func ParseUploadSource(raw string) (UploadSource, bool) {
	s := UploadSource(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case SourceDashboard, SourceOnboarding, SourceMobile, SourceAPI, SourceEmail, SourceWebhook, SourceCSV, SourceLegacy:
		return s, true
	}
	return "", false
}

// Document is one physical source file under processing.
type Document struct {
	ID               string
	TenantID         string
	FileName         string
	MimeType         string
	ByteSize         int64
	StorageKey       string
	Checksum         string
	DocumentType     quality.DocumentType
	Status           Status
	ProcessingStage  Stage
	ExtractedData    map[string]any
	QualityScore     int
	QualityIssues    []quality.Issue
	QualityChecklist []quality.ChecklistItem
	ErrorMessage     *string
	UploadSource     UploadSource
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// StageTransition is an immutable audit row for one status or stage change.
type StageTransition struct {
	ID         string
	DocumentID string
	TenantID   string
	FromStatus *Status
	ToStatus   Status
	FromStage  Stage
	ToStage    Stage
	Trigger    string
	Metadata   map[string]any
	CreatedAt  time.Time
}

// Transition is a request to move a document to ToStatus.
type Transition struct {
	ID         string
	DocumentID string
	TenantID   string
	ToStatus   Status
	Trigger    string
	Metadata   map[string]any
	// StageOnly records a stage milestone without changing the visible status.
	StageOnly bool
	// ErrorMessage replaces the stored message on status updates (empty clears it)
	// and is kept only when non-empty on stage-only updates.
	ErrorMessage string
	// ExtractedData is shallow-merged into the document's extracted data in the
	// same unit of work, after the move is accepted.
	ExtractedData map[string]any
	// Clock stamps the transition once the row lock is held. The stamp never
	// precedes the document's current updated_at.
	Clock func() time.Time
}

// stampAfter returns the transition time for a document last updated at prev.
func (t Transition) stampAfter(prev time.Time) time.Time {
	at := time.Now().UTC()
	if t.Clock != nil {
		at = t.Clock().UTC()
	}
	if at.Before(prev) {
		return prev
	}
	return at
}

// ListFilter narrows List results.
type ListFilter struct {
	Status Status
	Stage  Stage
	Limit  int
	Offset int
}
