package engine

import (
	"context"
	"testing"
	"time"

	chatmock "github.com/sentinel-synth/synthcore/internal/chatapi/mock"
	"github.com/sentinel-synth/synthcore/internal/config"
	"github.com/sentinel-synth/synthcore/internal/domain"
)

func TestEngine_PurgeOnceRemovesStaleTerminalJobs(t *testing.T) {
	chat := &chatmock.Client{}
	cfg := config.EngineConfig{
		Concurrency:            1,
		RateLimitMax:           100,
		MaxAttempts:            3,
		BackoffBaseMs:          10,
		RemoveOnCompleteAgeSec: 1,
		RemoveOnFailAgeSec:     1,
	}
	e, st, _ := testEngine(t, cfg, chat)

	ctx := context.Background()
	old := time.Now().Add(-time.Hour)

	completedID := "completed-stale"
	if err := st.Insert(ctx, &domain.JobRecord{
		JobID:      completedID,
		Job:        domain.SynthesisJob{Type: domain.JobAssignRole, IdempotencyKey: "k1"},
		State:      domain.StateCompleted,
		CreatedAt:  old,
		FinishedAt: &old,
	}); err != nil {
		t.Fatalf("insert completed job: %v", err)
	}

	failedID := "failed-stale"
	if err := st.Insert(ctx, &domain.JobRecord{
		JobID:      failedID,
		Job:        domain.SynthesisJob{Type: domain.JobAssignRole, IdempotencyKey: "k2"},
		State:      domain.StateFailed,
		CreatedAt:  old,
		FinishedAt: &old,
	}); err != nil {
		t.Fatalf("insert failed job: %v", err)
	}

	freshID := "completed-fresh"
	now := time.Now()
	if err := st.Insert(ctx, &domain.JobRecord{
		JobID:      freshID,
		Job:        domain.SynthesisJob{Type: domain.JobAssignRole, IdempotencyKey: "k3"},
		State:      domain.StateCompleted,
		CreatedAt:  now,
		FinishedAt: &now,
	}); err != nil {
		t.Fatalf("insert fresh job: %v", err)
	}

	e.purgeOnce(ctx)

	if _, err := st.Get(ctx, completedID); err != domain.ErrJobNotFound {
		t.Fatalf("expected stale completed job purged, got err=%v", err)
	}
	if _, err := st.Get(ctx, failedID); err != domain.ErrJobNotFound {
		t.Fatalf("expected stale failed job purged, got err=%v", err)
	}
	if _, err := st.Get(ctx, freshID); err != nil {
		t.Fatalf("expected fresh completed job to survive purge, got err=%v", err)
	}
}
