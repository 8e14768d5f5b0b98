package documents

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory implementation of Repo. Transitions on one
// document serialize on a per-document mutex; different documents never
// contend.
type MemoryRepo struct {
	mu      sync.RWMutex
	docs    map[string]Document
	history map[string][]StageTransition
	locks   map[string]*sync.Mutex
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		docs:    make(map[string]Document),
		history: make(map[string][]StageTransition),
		locks:   make(map[string]*sync.Mutex),
	}
}

// Create stores a new document.
func (r *MemoryRepo) Create(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.docs[doc.ID]; exists {
		return Invalid("id", "already exists")
	}
	r.docs[doc.ID] = cloneDocument(doc)
	r.locks[doc.ID] = &sync.Mutex{}
	return nil
}

// GetByID returns a document scoped to the tenant.
func (r *MemoryRepo) GetByID(ctx context.Context, tenantID, documentID string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[documentID]
	if !ok || doc.TenantID != tenantID {
		return Document{}, ErrNotFound
	}
	return cloneDocument(doc), nil
}

// List returns tenant documents newest first.
func (r *MemoryRepo) List(ctx context.Context, tenantID string, filter ListFilter) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filter = clampListFilter(filter)

	r.mu.RLock()
	var docs []Document
	for _, doc := range r.docs {
		if doc.TenantID != tenantID {
			continue
		}
		if filter.Status != "" && doc.Status != filter.Status {
			continue
		}
		if filter.Stage != "" && doc.ProcessingStage != filter.Stage {
			continue
		}
		docs = append(docs, cloneDocument(doc))
	}
	r.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID > docs[j].ID
		}
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})

	if filter.Offset >= len(docs) {
		return []Document{}, nil
	}
	end := len(docs)
	if filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}
	return docs[filter.Offset:end], nil
}

// ListStale returns documents in status last updated before cutoff, oldest first.
func (r *MemoryRepo) ListStale(ctx context.Context, status Status, cutoff time.Time, limit int) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	var docs []Document
	for _, doc := range r.docs {
		if doc.Status == status && doc.UpdatedAt.Before(cutoff) {
			docs = append(docs, cloneDocument(doc))
		}
	}
	r.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		return docs[i].UpdatedAt.Before(docs[j].UpdatedAt)
	})
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

// Transition applies t under the document's lock.
func (r *MemoryRepo) Transition(ctx context.Context, t Transition) (StageTransition, error) {
	if err := ctx.Err(); err != nil {
		return StageTransition{}, err
	}

	r.mu.RLock()
	lock, ok := r.locks[t.DocumentID]
	r.mu.RUnlock()
	if !ok {
		return StageTransition{}, ErrNotFound
	}
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.docs[t.DocumentID]
	if !ok || doc.TenantID != t.TenantID {
		return StageTransition{}, ErrNotFound
	}
	if err := CheckTransition(doc.Status, t); err != nil {
		return StageTransition{}, err
	}
	at := t.stampAfter(doc.UpdatedAt)

	row := StageTransition{
		ID:         t.ID,
		DocumentID: t.DocumentID,
		TenantID:   t.TenantID,
		FromStatus: statusPtr(doc.Status),
		ToStatus:   t.ToStatus,
		FromStage:  StageFor(doc.Status),
		ToStage:    StageFor(t.ToStatus),
		Trigger:    t.Trigger,
		Metadata:   cloneMap(t.Metadata),
		CreatedAt:  at,
	}

	if len(t.ExtractedData) > 0 {
		merged := cloneMap(doc.ExtractedData)
		for k, v := range t.ExtractedData {
			merged[k] = v
		}
		doc.ExtractedData = merged
	}

	if t.StageOnly {
		doc.ProcessingStage = row.ToStage
		if t.ErrorMessage != "" {
			msg := t.ErrorMessage
			doc.ErrorMessage = &msg
		}
	} else {
		doc.Status = t.ToStatus
		doc.ProcessingStage = row.ToStage
		doc.ErrorMessage = nil
		if t.ErrorMessage != "" {
			msg := t.ErrorMessage
			doc.ErrorMessage = &msg
		}
	}
	doc.UpdatedAt = at

	r.docs[doc.ID] = doc
	r.history[doc.ID] = append(r.history[doc.ID], row)
	return row, nil
}

// History returns transitions oldest first.
func (r *MemoryRepo) History(ctx context.Context, tenantID, documentID string) ([]StageTransition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[documentID]
	if !ok || doc.TenantID != tenantID {
		return nil, ErrNotFound
	}
	rows := r.history[documentID]
	out := make([]StageTransition, len(rows))
	copy(out, rows)
	return out, nil
}

func cloneDocument(doc Document) Document {
	doc.ExtractedData = cloneMap(doc.ExtractedData)
	if doc.QualityIssues != nil {
		doc.QualityIssues = append(doc.QualityIssues[:0:0], doc.QualityIssues...)
	}
	if doc.QualityChecklist != nil {
		doc.QualityChecklist = append(doc.QualityChecklist[:0:0], doc.QualityChecklist...)
	}
	if doc.ErrorMessage != nil {
		msg := *doc.ErrorMessage
		doc.ErrorMessage = &msg
	}
	return doc
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

var _ Repo = (*MemoryRepo)(nil)
