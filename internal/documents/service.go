package documents

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"intake-backend/internal/quality"
	"intake-backend/internal/shared/metrics"
)

// Service owns document creation and reads.
type Service struct {
	Repo   Repo
	Ledger *Ledger
	Now    func() time.Time
}

// NewService wires a Service and its Ledger over repo.
func NewService(repo Repo) *Service {
	return &Service{Repo: repo, Ledger: NewLedger(repo)}
}

// NewDocument holds the fields an adapter supplies at creation time.
type NewDocument struct {
	ID               string
	TenantID         string
	FileName         string
	MimeType         string
	ByteSize         int64
	StorageKey       string
	Checksum         string
	DocumentType     quality.DocumentType
	QualityScore     int
	QualityIssues    []quality.Issue
	QualityChecklist []quality.ChecklistItem
	UploadSource     UploadSource
}

// NewID returns a fresh document id so adapters can derive storage keys first.
func NewID() string {
	return uuid.NewString()
}

// Create persists a document at UPLOADED.
func (s *Service) Create(ctx context.Context, in NewDocument) (Document, error) {
	if strings.TrimSpace(in.TenantID) == "" {
		return Document{}, Invalid("tenantId", "required")
	}
	if strings.TrimSpace(in.FileName) == "" {
		return Document{}, Invalid("fileName", "required")
	}
	source, ok := ParseUploadSource(string(in.UploadSource))
	if !ok {
		return Document{}, Invalid("uploadSource", "unknown source "+string(in.UploadSource))
	}
	docType, ok := quality.ParseDocumentType(string(in.DocumentType))
	if !ok {
		docType = quality.TypeOther
	}
	if in.ID == "" {
		in.ID = NewID()
	}
	score := in.QualityScore
	if score < 0 || score > 100 {
		return Document{}, Invalid("qualityScore", "must be between 0 and 100")
	}

	now := s.now()
	doc := Document{
		ID:               in.ID,
		TenantID:         in.TenantID,
		FileName:         in.FileName,
		MimeType:         in.MimeType,
		ByteSize:         in.ByteSize,
		StorageKey:       in.StorageKey,
		Checksum:         in.Checksum,
		DocumentType:     docType,
		Status:           StatusUploaded,
		ProcessingStage:  StageFor(StatusUploaded),
		ExtractedData:    map[string]any{},
		QualityScore:     score,
		QualityIssues:    in.QualityIssues,
		QualityChecklist: in.QualityChecklist,
		UploadSource:     source,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.Repo.Create(ctx, doc); err != nil {
		return Document{}, err
	}
	metrics.IncDocumentCreated(string(source))
	return doc, nil
}

// Get returns one tenant document.
func (s *Service) Get(ctx context.Context, tenantID, documentID string) (Document, error) {
	return s.Repo.GetByID(ctx, tenantID, documentID)
}

// List returns tenant documents newest first.
func (s *Service) List(ctx context.Context, tenantID string, filter ListFilter) ([]Document, error) {
	return s.Repo.List(ctx, tenantID, filter)
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
