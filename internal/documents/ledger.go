package documents

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"intake-backend/internal/shared/metrics"
	"intake-backend/internal/shared/telemetry"
)

// Ledger records stage transitions. It is the only writer of status and stage
// after a document is created.
type Ledger struct {
	Repo  Repo
	Now   func() time.Time
	NewID func() string
}

// NewLedger constructs a Ledger over repo.
func NewLedger(repo Repo) *Ledger {
	return &Ledger{Repo: repo}
}

// RecordTransition validates t and applies it through the repo's row-locking
// unit of work. Nothing is recorded when the document is missing or the move
// is rejected.
func (l *Ledger) RecordTransition(ctx context.Context, t Transition) (StageTransition, error) {
	t.DocumentID = strings.TrimSpace(t.DocumentID)
	t.TenantID = strings.TrimSpace(t.TenantID)
	t.Trigger = strings.TrimSpace(t.Trigger)
	if t.DocumentID == "" {
		return StageTransition{}, Invalid("documentId", "required")
	}
	if t.TenantID == "" {
		return StageTransition{}, Invalid("tenantId", "required")
	}
	status, ok := ParseStatus(string(t.ToStatus))
	if !ok {
		return StageTransition{}, Invalid("toStatus", "unknown status "+string(t.ToStatus))
	}
	t.ToStatus = status
	if t.Trigger == "" {
		return StageTransition{}, Invalid("trigger", "required")
	}
	if t.Metadata == nil {
		t.Metadata = map[string]any{}
	}
	if t.ID == "" {
		t.ID = l.newID()
	}
	if t.Clock == nil {
		t.Clock = l.now
	}

	start := time.Now()
	row, err := l.Repo.Transition(ctx, t)
	metrics.ObserveTransitionDurationMs(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		fields := map[string]any{
			"document_id": t.DocumentID,
			"tenant_id":   t.TenantID,
			"to_status":   string(t.ToStatus),
			"trigger":     t.Trigger,
			"error":       err.Error(),
		}
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidTransition) {
			telemetry.Warn("document.transition.rejected", fields)
		} else {
			telemetry.Error("document.transition.failed", fields)
		}
		return StageTransition{}, err
	}

	metrics.IncTransition(string(row.ToStatus))
	from := ""
	if row.FromStatus != nil {
		from = string(*row.FromStatus)
	}
	telemetry.Info("document.transition", map[string]any{
		"document_id": row.DocumentID,
		"tenant_id":   row.TenantID,
		"from_status": from,
		"to_status":   string(row.ToStatus),
		"to_stage":    string(row.ToStage),
		"trigger":     row.Trigger,
		"stage_only":  t.StageOnly,
	})
	return row, nil
}

// GetHistory returns all transitions for a document, oldest first.
func (l *Ledger) GetHistory(ctx context.Context, tenantID, documentID string) ([]StageTransition, error) {
	if strings.TrimSpace(tenantID) == "" || strings.TrimSpace(documentID) == "" {
		return nil, ErrNotFound
	}
	return l.Repo.History(ctx, tenantID, documentID)
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func (l *Ledger) newID() string {
	if l.NewID != nil {
		return l.NewID()
	}
	return uuid.NewString()
}
