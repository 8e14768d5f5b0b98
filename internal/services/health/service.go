package health

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const pingTimeout = 2 * time.Second

// Service reports whether the API's backing dependencies are reachable.
type Service struct {
	DB *sql.DB
}

// NewService constructs a new health service. A nil db means in-memory mode.
func NewService(db *sql.DB) *Service {
	return &Service{DB: db}
}

// Check pings the database when one is configured.
func (s *Service) Check(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := s.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	return nil
}

// Status returns the health payload served on /health.
func (s *Service) Status(ctx context.Context) map[string]any {
	status := map[string]any{"ok": true, "database": "memory"}
	if s != nil && s.DB != nil {
		status["database"] = "postgres"
	}
	if err := s.Check(ctx); err != nil {
		status["ok"] = false
		status["error"] = err.Error()
	}
	return status
}
