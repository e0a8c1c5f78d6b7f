package inmem

import (
	"context"
	"testing"
	"time"

	"github.com/sentinel-synth/synthcore/internal/domain"
)

func newRecord(jobID string, priority int, createdAt time.Time) *domain.JobRecord {
	return &domain.JobRecord{
		JobID:     jobID,
		Job:       domain.SynthesisJob{Type: domain.JobCreateRole, CommunityID: "c1", Priority: priority},
		State:     domain.StateWaiting,
		CreatedAt: createdAt,
	}
}

func TestReserveNext_PrefersHigherPriority(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Now()

	_ = s.Insert(ctx, newRecord("low", 0, base))
	_ = s.Insert(ctx, newRecord("high", 5, base.Add(time.Second)))

	rec, err := s.ReserveNext(ctx)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if rec.JobID != "high" {
		t.Fatalf("expected higher-priority job reserved first, got %s", rec.JobID)
	}
}

func TestReserveNext_SkipsDelayedUntilDue(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Now()

	future := newRecord("later", 0, base)
	future.State = domain.StateDelayed
	future.ScheduledAt = base.Add(time.Hour)
	_ = s.Insert(ctx, future)

	rec, err := s.ReserveNext(ctx)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected no ready job, got %v", rec)
	}
}

func TestCancel_RefusesActiveJobs(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.Insert(ctx, newRecord("j1", 0, time.Now()))

	if _, err := s.ReserveNext(ctx); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	if err := s.Cancel(ctx, "j1"); err != domain.ErrJobNotCancellable {
		t.Fatalf("expected ErrJobNotCancellable, got %v", err)
	}
}

func TestPurge_RemovesOnlyOldTerminalJobs(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()

	old := newRecord("old-completed", 0, now.Add(-2*time.Hour))
	old.State = domain.StateCompleted
	finished := now.Add(-90 * time.Minute)
	old.FinishedAt = &finished
	_ = s.Insert(ctx, old)

	recent := newRecord("recent-completed", 0, now)
	recent.State = domain.StateCompleted
	justFinished := now.Add(-time.Minute)
	recent.FinishedAt = &justFinished
	_ = s.Insert(ctx, recent)

	n, err := s.Purge(ctx, time.Hour, 24*time.Hour)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purged record, got %d", n)
	}
	if _, err := s.Get(ctx, "recent-completed"); err != nil {
		t.Fatalf("expected recent record to survive purge: %v", err)
	}
	if _, err := s.Get(ctx, "old-completed"); err != domain.ErrJobNotFound {
		t.Fatalf("expected old record purged, got err=%v", err)
	}
}
