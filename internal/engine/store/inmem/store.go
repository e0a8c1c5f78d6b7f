// Package inmem implements store.Store in-process with a mutex-guarded
// map, ordered by priority then creation time for ReserveNext. It backs
// unit tests and any deployment that accepts losing queued jobs on
// restart in exchange for not running Postgres.
package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sentinel-synth/synthcore/internal/domain"
	"github.com/sentinel-synth/synthcore/internal/engine/store"
)

var _ store.Store = (*Store)(nil)

// Store is an in-memory store.Store.
type Store struct {
	mu      sync.Mutex
	records map[string]*domain.JobRecord
	nowFunc func() time.Time
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{records: make(map[string]*domain.JobRecord)}
}

func (s *Store) now() time.Time {
	if s.nowFunc != nil {
		return s.nowFunc()
	}
	return time.Now()
}

func (s *Store) Insert(_ context.Context, rec *domain.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.records[rec.JobID] = &cp
	return nil
}

func (s *Store) Get(_ context.Context, jobID string) (*domain.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	cp := *rec
	return &cp, nil
}

// ReserveNext picks the highest-priority ready job (waiting, or delayed
// whose ScheduledAt has elapsed), ties broken by earliest CreatedAt, and
// flips it to active.
func (s *Store) ReserveNext(_ context.Context) (*domain.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var candidates []*domain.JobRecord
	for _, rec := range s.records {
		ready := rec.State == domain.StateWaiting ||
			(rec.State == domain.StateDelayed && !rec.ScheduledAt.After(now))
		if ready {
			candidates = append(candidates, rec)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Job.Priority != candidates[j].Job.Priority {
			return candidates[i].Job.Priority > candidates[j].Job.Priority
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	chosen := candidates[0]
	chosen.State = domain.StateActive
	processedAt := now
	chosen.ProcessedAt = &processedAt
	cp := *chosen
	return &cp, nil
}

func (s *Store) Reschedule(_ context.Context, jobID string, attemptsMade int, scheduledAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	rec.AttemptsMade = attemptsMade
	rec.ScheduledAt = scheduledAt
	rec.State = domain.StateDelayed
	return nil
}

func (s *Store) Complete(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	rec.State = domain.StateCompleted
	now := s.now()
	rec.FinishedAt = &now
	return nil
}

func (s *Store) Fail(_ context.Context, jobID string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	rec.State = domain.StateFailed
	rec.FailedReason = reason
	now := s.now()
	rec.FinishedAt = &now
	return nil
}

func (s *Store) Cancel(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	if rec.State == domain.StateActive || rec.State == domain.StateCompleted {
		return domain.ErrJobNotCancellable
	}
	rec.State = domain.StateFailed
	rec.FailedReason = "cancelled"
	now := s.now()
	rec.FinishedAt = &now
	return nil
}

func (s *Store) ListByCommunity(_ context.Context, communityID string, state domain.JobState) ([]*domain.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.JobRecord
	for _, rec := range s.records {
		if rec.Job.CommunityID != communityID {
			continue
		}
		if state != "" && rec.State != state {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CountsByState(_ context.Context) (map[domain.JobState]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[domain.JobState]int64{
		domain.StateWaiting:   0,
		domain.StateDelayed:   0,
		domain.StateActive:    0,
		domain.StateCompleted: 0,
		domain.StateFailed:    0,
	}
	for _, rec := range s.records {
		counts[rec.State]++
	}
	return counts, nil
}

func (s *Store) Purge(_ context.Context, completedOlderThan, failedOlderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var n int64
	for id, rec := range s.records {
		if rec.FinishedAt == nil {
			continue
		}
		age := now.Sub(*rec.FinishedAt)
		if (rec.State == domain.StateCompleted && age > completedOlderThan) ||
			(rec.State == domain.StateFailed && age > failedOlderThan) {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}
