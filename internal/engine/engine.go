// Package engine implements the Synthesis Engine (C4): a durable job
// queue, worker pool, per-operation rate limit, retry/backoff, and
// metrics, grounded in the teacher's worker pool (worker/internal/pool)
// and execution usecase (worker/internal/usecase/execute_job.go) but
// generalized from "run one sandboxed program" to "perform one typed
// chat-platform mutation".
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sentinel-synth/synthcore/internal/chatapi"
	"github.com/sentinel-synth/synthcore/internal/config"
	"github.com/sentinel-synth/synthcore/internal/domain"
	"github.com/sentinel-synth/synthcore/internal/kv"
	"github.com/sentinel-synth/synthcore/internal/metrics"
	"github.com/sentinel-synth/synthcore/internal/ratelimit"
	"github.com/sentinel-synth/synthcore/internal/engine/store"
)

// Stats is the snapshot returned by Engine.Stats.
type Stats struct {
	QueueDepth         map[domain.JobState]int64
	Bucket             domain.TokenBucketState
	RateLimitHits      int
	Platform429ErrorsLastHour int
}

// Engine is the Synthesis Engine (C4).
type Engine struct {
	store store.Store
	kv    kv.Store
	chat  chatapi.Client

	bucket    *ratelimit.Bucket // C3, global across the whole process
	opLimiter *ratelimit.Bucket // engine-local per-operation limit

	cfg            config.EngineConfig
	idempotencyTTL time.Duration
	logger         *zap.Logger

	mu               sync.Mutex
	paused           bool
	cancel           context.CancelFunc
	wg               sync.WaitGroup
	started          bool
	globalPauseUntil time.Time // S6: a global 429 suspends all new pickups

	rateLimitHits   *rollingCounter
	platform429Hits *rollingCounter
}

// New constructs an Engine. bucket is the process-wide C3 instance shared
// with any other collaborator that spends chat-platform budget; the
// engine owns its own smaller opLimiter bucket for the per-operation cap.
func New(st store.Store, kvStore kv.Store, chat chatapi.Client, bucket *ratelimit.Bucket, cfg config.EngineConfig, idempotencyTTLSec int, logger *zap.Logger) *Engine {
	return &Engine{
		store:           st,
		kv:              kvStore,
		chat:            chat,
		bucket:          bucket,
		opLimiter:       ratelimit.New(float64(cfg.RateLimitMax), float64(cfg.RateLimitMax)),
		cfg:             cfg,
		idempotencyTTL:  time.Duration(idempotencyTTLSec) * time.Second,
		logger:          logger,
		rateLimitHits:   newRollingCounter(time.Hour),
		platform429Hits: newRollingCounter(time.Hour),
	}
}

// Start launches the worker pool. ctx governs the lifetime of every
// worker; cancel it (or call Close) to stop them.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	workerCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.mu.Unlock()

	e.logger.Info("starting synthesis engine worker pool", zap.Int("concurrency", e.cfg.Concurrency))
	for i := 0; i < e.cfg.Concurrency; i++ {
		e.wg.Add(1)
		go e.runWorker(workerCtx, i)
	}

	e.wg.Add(1)
	go e.runPurgeLoop(workerCtx)
}

// Pause stops workers from reserving new jobs; in-flight jobs finish
// normally (spec §4.8 supervisor shutdown sequence).
func (e *Engine) Pause() {
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
}

// Resume re-enables job reservation after Pause.
func (e *Engine) Resume() {
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()
}

func (e *Engine) isPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// suspendGlobally implements S6: a global=true 429 halts new job pickups
// across the whole worker pool until the platform's retryAfter elapses,
// not just for the worker that hit the limit.
func (e *Engine) suspendGlobally(until time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if until.After(e.globalPauseUntil) {
		e.globalPauseUntil = until
	}
}

// globalPauseRemaining returns how long pickups should still be
// suspended, or 0 if the window has elapsed.
func (e *Engine) globalPauseRemaining() time.Duration {
	e.mu.Lock()
	until := e.globalPauseUntil
	e.mu.Unlock()
	if d := time.Until(until); d > 0 {
		return d
	}
	return 0
}

// Close cancels the worker pool's context and waits for in-flight jobs
// to return. Callers should Pause first if they want a graceful drain
// rather than mid-job cancellation.
func (e *Engine) Close() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
}

// Enqueue persists a new job and returns its id immediately.
func (e *Engine) Enqueue(ctx context.Context, job domain.SynthesisJob, opts domain.EnqueueOptions) (string, error) {
	if opts.Priority != 0 {
		job.Priority = opts.Priority
	}
	if opts.Delay != 0 {
		job.Delay = opts.Delay
	}

	now := time.Now().UTC()
	rec := &domain.JobRecord{
		JobID:       uuid.NewString(),
		Job:         job,
		State:       domain.StateWaiting,
		CreatedAt:   now,
		ScheduledAt: now,
	}
	if job.Delay > 0 {
		rec.State = domain.StateDelayed
		rec.ScheduledAt = now.Add(job.Delay)
	}

	if err := e.store.Insert(ctx, rec); err != nil {
		return "", fmt.Errorf("engine: enqueue: %w", err)
	}
	metrics.JobsEnqueuedTotal.WithLabelValues(string(job.Type)).Inc()
	return rec.JobID, nil
}

// EnqueueBatch expands a declarative manifest into individual jobs,
// staggering each by cfg.BatchStagger * index to smooth bursts.
func (e *Engine) EnqueueBatch(ctx context.Context, communityID, guildID string, manifest []domain.BatchManifestEntry) ([]string, error) {
	jobIDs := make([]string, 0, len(manifest))
	for i, entry := range manifest {
		job := domain.SynthesisJob{
			Type:           entry.Type,
			GuildID:        guildID,
			CommunityID:    communityID,
			Payload:        entry.Payload,
			IdempotencyKey: fmt.Sprintf("%s:%s:%s", communityID, entry.Type, entry.IdempotencyKeySuffix),
			Priority:       entry.Priority,
			Delay:          time.Duration(i) * e.cfg.BatchStagger,
		}
		jobID, err := e.Enqueue(ctx, job, domain.EnqueueOptions{})
		if err != nil {
			return jobIDs, fmt.Errorf("engine: enqueue batch index %d: %w", i, err)
		}
		jobIDs = append(jobIDs, jobID)
	}
	return jobIDs, nil
}

func (e *Engine) GetJob(ctx context.Context, jobID string) (*domain.JobRecord, error) {
	return e.store.Get(ctx, jobID)
}

func (e *Engine) GetJobsByCommunity(ctx context.Context, communityID string, state domain.JobState) ([]*domain.JobRecord, error) {
	return e.store.ListByCommunity(ctx, communityID, state)
}

func (e *Engine) CancelJob(ctx context.Context, jobID string) error {
	return e.store.Cancel(ctx, jobID)
}

// RetryJob moves a failed job back to delayed, due immediately, with a
// fresh attempt budget, for operator-driven manual retries outside the automatic
// backoff path.
func (e *Engine) RetryJob(ctx context.Context, jobID string) error {
	rec, err := e.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if rec.State != domain.StateFailed {
		return fmt.Errorf("engine: retry job %s: %w", jobID, domain.ErrJobNotCancellable)
	}
	return e.store.Reschedule(ctx, jobID, 0, time.Now().UTC())
}

func (e *Engine) IsProcessed(ctx context.Context, idempotencyKey string) (bool, error) {
	job := domain.SynthesisJob{IdempotencyKey: idempotencyKey}
	return e.kv.Exists(ctx, job.ProcessedKey())
}

func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	counts, err := e.store.CountsByState(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("engine: stats: %w", err)
	}
	for state, n := range counts {
		metrics.QueueDepth.WithLabelValues(string(state)).Set(float64(n))
	}
	bucketState := e.bucket.Status()
	metrics.TokenBucketAvailable.Set(bucketState.AvailableTokens)

	return Stats{
		QueueDepth:                counts,
		Bucket:                    bucketState,
		RateLimitHits:             e.rateLimitHits.Count(),
		Platform429ErrorsLastHour: e.platform429Hits.Count(),
	}, nil
}

// decodePayload is a small helper shared by worker.go's dispatch table.
func decodePayload[T any](raw json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	return v, nil
}
