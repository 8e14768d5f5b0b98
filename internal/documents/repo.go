package documents

import (
	"context"
	"time"
)

// Repo defines persistence operations for documents and their history.
type Repo interface {
	Create(ctx context.Context, doc Document) error
	GetByID(ctx context.Context, tenantID, documentID string) (Document, error)
	List(ctx context.Context, tenantID string, filter ListFilter) ([]Document, error)
	// ListStale returns documents across tenants in status whose last update is before cutoff.
	ListStale(ctx context.Context, status Status, cutoff time.Time, limit int) ([]Document, error)
	// Transition locks the document row, checks the move, stamps it, merges
	// any extracted data, updates the status projection and appends one
	// history row, atomically.
	Transition(ctx context.Context, t Transition) (StageTransition, error)
	// History returns transitions in commit order.
	History(ctx context.Context, tenantID, documentID string) ([]StageTransition, error)
}

func clampListFilter(f ListFilter) ListFilter {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

func statusPtr(s Status) *Status {
	if s == "" {
		return nil
	}
	return &s
}
