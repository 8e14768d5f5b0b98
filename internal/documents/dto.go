package documents

import (
	"time"

	"intake-backend/internal/quality"
)

// DocumentResponse is the outward-facing representation of a document.
type DocumentResponse struct {
	DocumentID       string                  `json:"documentId"`
	TenantID         string                  `json:"tenantId"`
	FileName         string                  `json:"fileName"`
	MimeType         string                  `json:"mimeType"`
	ByteSize         int64                   `json:"byteSize"`
	StorageKey       string                  `json:"storageKey"`
	Checksum         string                  `json:"checksum,omitempty"`
	DocumentType     string                  `json:"documentType"`
	Status           string                  `json:"status"`
	ProcessingStage  string                  `json:"processingStage"`
	ExtractedData    map[string]any          `json:"extractedData"`
	QualityScore     int                     `json:"qualityScore"`
	QualityIssues    []quality.Issue         `json:"qualityIssues"`
	QualityChecklist []quality.ChecklistItem `json:"qualityChecklist"`
	ErrorMessage     *string                 `json:"errorMessage"`
	UploadSource     string                  `json:"uploadSource"`
	CreatedAt        time.Time               `json:"createdAt"`
	UpdatedAt        time.Time               `json:"updatedAt"`
}

// ToResponse converts a Document for JSON output.
func ToResponse(doc Document) DocumentResponse {
	issues := doc.QualityIssues
	if issues == nil {
		issues = []quality.Issue{}
	}
	checklist := doc.QualityChecklist
	if checklist == nil {
		checklist = []quality.ChecklistItem{}
	}
	extracted := doc.ExtractedData
	if extracted == nil {
		extracted = map[string]any{}
	}
	return DocumentResponse{
		DocumentID:       doc.ID,
		TenantID:         doc.TenantID,
		FileName:         doc.FileName,
		MimeType:         doc.MimeType,
		ByteSize:         doc.ByteSize,
		StorageKey:       doc.StorageKey,
		Checksum:         doc.Checksum,
		DocumentType:     string(doc.DocumentType),
		Status:           string(doc.Status),
		ProcessingStage:  string(doc.ProcessingStage),
		ExtractedData:    extracted,
		QualityScore:     doc.QualityScore,
		QualityIssues:    issues,
		QualityChecklist: checklist,
		ErrorMessage:     doc.ErrorMessage,
		UploadSource:     string(doc.UploadSource),
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
	}
}

// TransitionResponse is one history row.
type TransitionResponse struct {
	ID         string         `json:"id"`
	FromStatus *string        `json:"fromStatus"`
	ToStatus   string         `json:"toStatus"`
	FromStage  string         `json:"fromStage"`
	ToStage    string         `json:"toStage"`
	Trigger    string         `json:"trigger"`
	Metadata   map[string]any `json:"metadata"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// ToTransitionResponses converts history rows for JSON output.
func ToTransitionResponses(rows []StageTransition) []TransitionResponse {
	out := make([]TransitionResponse, 0, len(rows))
	for _, row := range rows {
		var from *string
		if row.FromStatus != nil {
			s := string(*row.FromStatus)
			from = &s
		}
		meta := row.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		out = append(out, TransitionResponse{
			ID:         row.ID,
			FromStatus: from,
			ToStatus:   string(row.ToStatus),
			FromStage:  string(row.FromStage),
			ToStage:    string(row.ToStage),
			Trigger:    row.Trigger,
			Metadata:   meta,
			CreatedAt:  row.CreatedAt,
		})
	}
	return out
}
