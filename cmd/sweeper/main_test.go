package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"intake-backend/internal/pipeline"
)

type fakeSweeper struct {
	mu    sync.Mutex
	calls int
	err   error
	stop  func()
}

func (f *fakeSweeper) SweepStale(ctx context.Context, now time.Time) (pipeline.SweepReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls == 2 && f.stop != nil {
		f.stop()
	}
	return pipeline.SweepReport{Scanned: 1, Retried: 1}, f.err
}

func TestRunSweepsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &fakeSweeper{stop: cancel}

	done := make(chan struct{})
	go func() {
		run(ctx, s, time.Millisecond, time.Now)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls < 2 {
		t.Fatalf("expected at least 2 sweeps, got %d", s.calls)
	}
}

func TestSweepOnceSurvivesErrors(t *testing.T) {
	s := &fakeSweeper{err: errors.New("db down")}
	sweepOnce(context.Background(), s, time.Now())
	if s.calls != 1 {
		t.Fatalf("expected one call, got %d", s.calls)
	}
}
