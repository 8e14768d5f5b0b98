package main

// Periodically re-enqueues documents stuck in PROCESSING:
//   go run ./cmd/sweeper

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"intake-backend/internal/bootstrap"
	"intake-backend/internal/pipeline"
	"intake-backend/internal/shared/config"
	"intake-backend/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()
	app, err := bootstrap.Build(cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("sweeper started interval=%s stale_after=%s", cfg.SweepInterval, app.PipelineService.StaleAfter)
	run(ctx, app.PipelineService, cfg.SweepInterval, time.Now)
}

type sweeper interface {
	SweepStale(ctx context.Context, now time.Time) (pipeline.SweepReport, error)
}

func run(ctx context.Context, s sweeper, interval time.Duration, now func() time.Time) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		sweepOnce(ctx, s, now())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func sweepOnce(ctx context.Context, s sweeper, now time.Time) {
	report, err := s.SweepStale(ctx, now)
	if err != nil {
		if ctx.Err() == nil {
			telemetry.Error("sweeper.failed", map[string]any{"error": err.Error()})
		}
		return
	}
	if report.Scanned > 0 {
		telemetry.Info("sweeper.completed", map[string]any{
			"scanned": report.Scanned,
			"retried": report.Retried,
			"failed":  report.Failed,
		})
	}
}
