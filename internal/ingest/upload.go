package ingest

import (
	"context"
	"strings"

	"intake-backend/internal/documents"
	"intake-backend/internal/extract"
	"intake-backend/internal/quality"
	"intake-backend/internal/shared/metrics"
	"intake-backend/internal/shared/storage/object"
	"intake-backend/internal/shared/util"
)

// UploadInput is one file posted directly by a client.
type UploadInput struct {
	TenantID     string
	FileName     string
	ContentType  string
	DeclaredType string
	UploadSource string
	Data         []byte
}

// UploadResult carries the created document and its gate outcome.
type UploadResult struct {
	Document documents.Document
	Quality  quality.Result
	Decision quality.Decision
}

// Upload scores the file, stores it, creates the document with its quality
// assessment and starts processing. The gate never blocks the upload.
func (s *Service) Upload(ctx context.Context, in UploadInput) (UploadResult, error) {
	if len(in.Data) == 0 {
		return UploadResult{}, documents.Invalid("file", "is empty")
	}
	name, err := util.SanitizeFileName(in.FileName)
	if err != nil {
		return UploadResult{}, documents.Invalid("fileName", err.Error())
	}
	source := documents.SourceDashboard
	if raw := strings.TrimSpace(in.UploadSource); raw != "" {
		parsed, ok := documents.ParseUploadSource(raw)
		if !ok {
			return UploadResult{}, documents.Invalid("uploadSource", "unknown source "+raw)
		}
		source = parsed
	}
	declared, declaredOK := quality.ParseDocumentType(in.DeclaredType)
	if strings.TrimSpace(in.DeclaredType) != "" && !declaredOK {
		return UploadResult{}, documents.Invalid("documentType", "unknown type "+in.DeclaredType)
	}

	mimeType := extract.NormalizeMimeType(in.ContentType, name, in.Data)
	assessment := s.scorer().Assess(quality.Input{
		Data:         in.Data,
		FileName:     name,
		MimeType:     mimeType,
		DeclaredType: declared,
	})
	decision := s.Gate.Decide(assessment)
	metrics.ObserveQualityScore(assessment.Score)
	metrics.IncGateDecision(string(decision))

	docID := documents.NewID()
	key := object.DocumentKey(in.TenantID, docID, name)
	size, err := s.putBlob(ctx, key, mimeType, in.Data)
	if err != nil {
		return UploadResult{}, err
	}

	doc, err := s.Docs.Create(ctx, documents.NewDocument{
		ID:               docID,
		TenantID:         in.TenantID,
		FileName:         name,
		MimeType:         mimeType,
		ByteSize:         size,
		StorageKey:       key,
		Checksum:         util.SHA256Hex(in.Data),
		DocumentType:     assessment.SuggestedType,
		QualityScore:     assessment.Score,
		QualityIssues:    assessment.Issues,
		QualityChecklist: assessment.Checklist,
		UploadSource:     source,
	})
	if err != nil {
		return UploadResult{}, err
	}

	started, err := s.Pipeline.Start(ctx, doc, "upload")
	return UploadResult{Document: started, Quality: assessment, Decision: decision}, err
}

func (s *Service) scorer() *quality.Scorer {
	if s.Scorer != nil {
		return s.Scorer
	}
	return quality.NewScorer()
}
