// Package store defines the durable job store contract consumed by the
// Synthesis Engine (C4). A JobRecord moves through the lifecycle described
// in spec §3/§4.4; implementations only need to persist and query that
// state — retry/backoff/rate-limit decisions live in the engine package.
package store

import (
	"context"
	"time"

	"github.com/sentinel-synth/synthcore/internal/domain"
)

// Store persists JobRecords durably (spec §4.4's "durable queue").
type Store interface {
	// Insert creates a new JobRecord in waiting or delayed state.
	Insert(ctx context.Context, rec *domain.JobRecord) error

	Get(ctx context.Context, jobID string) (*domain.JobRecord, error)

	// ReserveNext atomically picks the highest-priority ready job (state
	// waiting, or delayed with scheduled_at <= now) and transitions it to
	// active. Returns (nil, nil) when nothing is ready.
	ReserveNext(ctx context.Context) (*domain.JobRecord, error)

	// Reschedule moves a job to delayed after a failed or interrupted
	// attempt, storing the given AttemptsMade and next ScheduledAt.
	Reschedule(ctx context.Context, jobID string, attemptsMade int, scheduledAt time.Time) error

	Complete(ctx context.Context, jobID string) error
	Fail(ctx context.Context, jobID string, reason string) error

	// Cancel transitions a job out of waiting/delayed. Returns
	// domain.ErrJobNotCancellable for active/completed jobs.
	Cancel(ctx context.Context, jobID string) error

	ListByCommunity(ctx context.Context, communityID string, state domain.JobState) ([]*domain.JobRecord, error)

	// CountsByState returns the number of jobs in each state, for stats().
	CountsByState(ctx context.Context) (map[domain.JobState]int64, error)

	// Purge deletes completed/failed jobs older than the given retention
	// windows (spec §4.4 "Completion policy").
	Purge(ctx context.Context, completedOlderThan, failedOlderThan time.Duration) (int64, error)
}
