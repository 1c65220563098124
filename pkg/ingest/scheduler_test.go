package ingest

import (
	"context"
	"testing"
	"time"

	"halcyon-hq/spendwatch/pkg/rawstore"
	"halcyon-hq/spendwatch/pkg/rollup"
	"halcyon-hq/spendwatch/pkg/rollup/storage"
)

func schedulerRunner(t *testing.T) *Runner {
	t.Helper()
	backend := storage.NewMemoryBackend()
	actor, err := rollup.New(rollup.Config{Backend: backend})
	if err != nil {
		t.Fatalf("Failed to create actor: %v", err)
	}
	t.Cleanup(func() { actor.Close() })
	runner, err := NewRunner(RunnerConfig{
		Actor:   actor,
		Raw:     rawstore.NewMemoryStore(),
		Backend: backend,
		Now:     func() time.Time { return time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("Failed to create runner: %v", err)
	}
	return runner
}

func TestScheduler_EmptyScheduleIsNoop(t *testing.T) {
	s := NewScheduler(schedulerRunner(t), "")
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if s.IsRunning() {
		t.Error("Expected scheduler to stay idle without a schedule")
	}
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	s := NewScheduler(schedulerRunner(t), "not a cron expr")
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("Expected error for invalid cron expression")
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler(schedulerRunner(t), "*/30 * * * *")
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !s.IsRunning() {
		t.Error("Expected scheduler to be running")
	}
	s.Stop()
	if s.IsRunning() {
		t.Error("Expected scheduler to stop")
	}
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler(schedulerRunner(t), "*/30 * * * *")
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	cancel()

	deadline := time.After(2 * time.Second)
	for s.IsRunning() {
		select {
		case <-deadline:
			t.Fatal("Expected scheduler to stop after context cancellation")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
