// Package postgres implements store.Store against a jobs table, grounded
// in the teacher's execution_jobs repository idiom: plain SQL over
// pgxpool, tag.RowsAffected() == 0 treated as not-found, UTC timestamps
// set at the call site rather than left to the database default.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sentinel-synth/synthcore/internal/domain"
	"github.com/sentinel-synth/synthcore/internal/engine/store"
)

var _ store.Store = (*Store)(nil)

// Store is a pgxpool-backed store.Store.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool. Schema migration is out of scope here;
// operators run the synthesis_jobs DDL separately.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Insert(ctx context.Context, rec *domain.JobRecord) error {
	payload, err := json.Marshal(rec.Job)
	if err != nil {
		return fmt.Errorf("postgres: marshal job: %w", err)
	}

	if rec.JobID == "" {
		rec.JobID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO synthesis_jobs
			(job_id, job_type, guild_id, community_id, idempotency_key, priority,
			 payload, state, attempts_made, created_at, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = s.pool.Exec(ctx, query,
		rec.JobID, rec.Job.Type, rec.Job.GuildID, rec.Job.CommunityID, rec.Job.IdempotencyKey,
		rec.Job.Priority, payload, rec.State, rec.AttemptsMade, rec.CreatedAt, rec.ScheduledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert job: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, jobID string) (*domain.JobRecord, error) {
	query := `
		SELECT job_id, job_type, guild_id, community_id, idempotency_key, priority,
		       payload, state, attempts_made, created_at, scheduled_at,
		       processed_at, finished_at, failed_reason
		FROM synthesis_jobs
		WHERE job_id = $1`

	rec, payload := &domain.JobRecord{}, []byte(nil)
	err := s.pool.QueryRow(ctx, query, jobID).Scan(
		&rec.JobID, &rec.Job.Type, &rec.Job.GuildID, &rec.Job.CommunityID, &rec.Job.IdempotencyKey,
		&rec.Job.Priority, &payload, &rec.State, &rec.AttemptsMade, &rec.CreatedAt, &rec.ScheduledAt,
		&rec.ProcessedAt, &rec.FinishedAt, &rec.FailedReason,
	)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get job: %w", err)
	}
	rec.Job.Payload = payload
	return rec, nil
}

// ReserveNext picks the highest-priority ready job and flips it to active
// inside one transaction, selecting with FOR UPDATE SKIP LOCKED so
// concurrent workers never reserve the same row.
func (s *Store) ReserveNext(ctx context.Context) (*domain.JobRecord, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin reserve: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	selectQuery := `
		SELECT job_id
		FROM synthesis_jobs
		WHERE state = 'waiting' OR (state = 'delayed' AND scheduled_at <= $1)
		ORDER BY priority DESC, created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`

	var jobID string
	err = tx.QueryRow(ctx, selectQuery, now).Scan(&jobID)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: reserve select: %w", err)
	}

	updateQuery := `UPDATE synthesis_jobs SET state = 'active', processed_at = $1 WHERE job_id = $2`
	if _, err := tx.Exec(ctx, updateQuery, now, jobID); err != nil {
		return nil, fmt.Errorf("postgres: reserve update: %w", err)
	}

	fetchQuery := `
		SELECT job_id, job_type, guild_id, community_id, idempotency_key, priority,
		       payload, state, attempts_made, created_at, scheduled_at,
		       processed_at, finished_at, failed_reason
		FROM synthesis_jobs
		WHERE job_id = $1`

	rec, payload := &domain.JobRecord{}, []byte(nil)
	err = tx.QueryRow(ctx, fetchQuery, jobID).Scan(
		&rec.JobID, &rec.Job.Type, &rec.Job.GuildID, &rec.Job.CommunityID, &rec.Job.IdempotencyKey,
		&rec.Job.Priority, &payload, &rec.State, &rec.AttemptsMade, &rec.CreatedAt, &rec.ScheduledAt,
		&rec.ProcessedAt, &rec.FinishedAt, &rec.FailedReason,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: reserve fetch: %w", err)
	}
	rec.Job.Payload = payload

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("postgres: reserve commit: %w", err)
	}
	return rec, nil
}

func (s *Store) Reschedule(ctx context.Context, jobID string, attemptsMade int, scheduledAt time.Time) error {
	query := `UPDATE synthesis_jobs SET state = 'delayed', attempts_made = $1, scheduled_at = $2 WHERE job_id = $3`
	tag, err := s.pool.Exec(ctx, query, attemptsMade, scheduledAt, jobID)
	if err != nil {
		return fmt.Errorf("postgres: reschedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func (s *Store) Complete(ctx context.Context, jobID string) error {
	query := `UPDATE synthesis_jobs SET state = 'completed', finished_at = $1 WHERE job_id = $2`
	tag, err := s.pool.Exec(ctx, query, time.Now().UTC(), jobID)
	if err != nil {
		return fmt.Errorf("postgres: complete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func (s *Store) Fail(ctx context.Context, jobID string, reason string) error {
	query := `UPDATE synthesis_jobs SET state = 'failed', failed_reason = $1, finished_at = $2 WHERE job_id = $3`
	tag, err := s.pool.Exec(ctx, query, reason, time.Now().UTC(), jobID)
	if err != nil {
		return fmt.Errorf("postgres: fail: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func (s *Store) Cancel(ctx context.Context, jobID string) error {
	query := `
		UPDATE synthesis_jobs
		SET state = 'failed', failed_reason = 'cancelled', finished_at = $1
		WHERE job_id = $2 AND state NOT IN ('active', 'completed')`
	tag, err := s.pool.Exec(ctx, query, time.Now().UTC(), jobID)
	if err != nil {
		return fmt.Errorf("postgres: cancel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, jobID); err != nil {
			return err
		}
		return domain.ErrJobNotCancellable
	}
	return nil
}

func (s *Store) ListByCommunity(ctx context.Context, communityID string, state domain.JobState) ([]*domain.JobRecord, error) {
	query := `
		SELECT job_id, job_type, guild_id, community_id, idempotency_key, priority,
		       payload, state, attempts_made, created_at, scheduled_at,
		       processed_at, finished_at, failed_reason
		FROM synthesis_jobs
		WHERE community_id = $1 AND ($2 = '' OR state = $2)
		ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, communityID, string(state))
	if err != nil {
		return nil, fmt.Errorf("postgres: list by community: %w", err)
	}
	defer rows.Close()

	var out []*domain.JobRecord
	for rows.Next() {
		rec, payload := &domain.JobRecord{}, []byte(nil)
		if err := rows.Scan(
			&rec.JobID, &rec.Job.Type, &rec.Job.GuildID, &rec.Job.CommunityID, &rec.Job.IdempotencyKey,
			&rec.Job.Priority, &payload, &rec.State, &rec.AttemptsMade, &rec.CreatedAt, &rec.ScheduledAt,
			&rec.ProcessedAt, &rec.FinishedAt, &rec.FailedReason,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan job: %w", err)
		}
		rec.Job.Payload = payload
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list by community rows: %w", err)
	}
	return out, nil
}

func (s *Store) CountsByState(ctx context.Context) (map[domain.JobState]int64, error) {
	query := `SELECT state, count(*) FROM synthesis_jobs GROUP BY state`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: counts by state: %w", err)
	}
	defer rows.Close()

	counts := map[domain.JobState]int64{
		domain.StateWaiting:   0,
		domain.StateDelayed:   0,
		domain.StateActive:    0,
		domain.StateCompleted: 0,
		domain.StateFailed:    0,
	}
	for rows.Next() {
		var state domain.JobState
		var n int64
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("postgres: scan count: %w", err)
		}
		counts[state] = n
	}
	return counts, rows.Err()
}

func (s *Store) Purge(ctx context.Context, completedOlderThan, failedOlderThan time.Duration) (int64, error) {
	query := `
		DELETE FROM synthesis_jobs
		WHERE (state = 'completed' AND finished_at < $1)
		   OR (state = 'failed' AND finished_at < $2)`

	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx, query, now.Add(-completedOlderThan), now.Add(-failedOlderThan))
	if err != nil {
		return 0, fmt.Errorf("postgres: purge: %w", err)
	}
	return tag.RowsAffected(), nil
}
