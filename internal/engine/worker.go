package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sentinel-synth/synthcore/internal/chatapi"
	"github.com/sentinel-synth/synthcore/internal/domain"
	"github.com/sentinel-synth/synthcore/internal/errs"
	"github.com/sentinel-synth/synthcore/internal/metrics"
)

// idlePoll is how long a worker sleeps after finding nothing ready to
// reserve, mirroring the teacher's pool worker's select-loop cadence
// without busy-spinning on an empty queue.
const idlePoll = 200 * time.Millisecond

func (e *Engine) runWorker(ctx context.Context, id int) {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("synthesis worker panic recovered", zap.Int("worker_id", id), zap.Any("panic", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if e.isPaused() {
			time.Sleep(idlePoll)
			continue
		}
		if remaining := e.globalPauseRemaining(); remaining > 0 {
			time.Sleep(min(remaining, idlePoll))
			continue
		}

		rec, err := e.store.ReserveNext(ctx)
		if err != nil {
			e.logger.Error("reserve next job failed", zap.Int("worker_id", id), zap.Error(err))
			time.Sleep(idlePoll)
			continue
		}
		if rec == nil {
			time.Sleep(idlePoll)
			continue
		}

		e.processJob(ctx, id, rec)
	}
}

// processJob implements spec §4.4's seven-step worker loop: acquire the
// global bucket, acquire the per-operation limiter, check idempotency,
// execute, and record the outcome.
func (e *Engine) processJob(ctx context.Context, workerID int, rec *domain.JobRecord) {
	logger := e.logger.With(zap.String("job_id", rec.JobID), zap.String("job_type", string(rec.Job.Type)))

	if err := e.bucket.AcquireAndWait(ctx); err != nil {
		e.requeueInterrupted(ctx, rec, "global bucket wait interrupted")
		return
	}

	if err := e.opLimiter.AcquireAndWait(ctx); err != nil {
		e.bucket.Release()
		e.requeueInterrupted(ctx, rec, "per-operation limiter wait interrupted")
		return
	}

	processedKey := rec.Job.ProcessedKey()
	already, err := e.kv.Exists(ctx, processedKey)
	if err != nil {
		logger.Warn("idempotency pre-check failed, proceeding fail-open", zap.Error(err))
	}
	if already {
		metrics.IdempotencyHitsTotal.Inc()
		e.bucket.Release() // no side effect performed, return the token
		if err := e.store.Complete(ctx, rec.JobID); err != nil {
			logger.Error("mark duplicate job completed failed", zap.Error(err))
		}
		return
	}
	metrics.IdempotencyMissesTotal.Inc()

	start := time.Now()
	res := e.execute(ctx, rec.Job)
	metrics.OperationLatencySeconds.WithLabelValues(string(rec.Job.Type)).Observe(time.Since(start).Seconds())

	if res.OK {
		if err := e.kv.Set(ctx, processedKey, "1", e.idempotencyTTL); err != nil {
			logger.Warn("idempotency set failed (best effort)", zap.Error(err))
		}
		if err := e.store.Complete(ctx, rec.JobID); err != nil {
			logger.Error("mark job completed failed", zap.Error(err))
		}
		metrics.JobsCompletedTotal.WithLabelValues(string(rec.Job.Type)).Inc()
		return
	}

	e.handleFailure(ctx, rec, res, logger)
}

func (e *Engine) handleFailure(ctx context.Context, rec *domain.JobRecord, res chatapi.Result, logger *zap.Logger) {
	class := errs.Classify(res.Err)

	if class == errs.ClassRateLimited {
		e.rateLimitHits.Incr()
		e.platform429Hits.Incr()
		metrics.Platform429Total.WithLabelValues(string(rec.Job.Type), rec.Job.GuildID, boolLabel(res.Global)).Inc()
		if res.Global {
			e.suspendGlobally(time.Now().Add(time.Duration(res.RetryAfterMs) * time.Millisecond))
		}
	}

	attemptsMade := rec.AttemptsMade + 1
	retryable := errs.IsRetryable(class) && attemptsMade < e.cfg.MaxAttempts
	if class == errs.ClassUnknown && attemptsMade > 1 {
		// Unknown errors get a single retry, then count as permanent.
		retryable = false
	}

	if !retryable {
		reason := class.String()
		if res.Err != nil {
			reason = res.Err.Error()
		}
		if err := e.store.Fail(ctx, rec.JobID, reason); err != nil {
			logger.Error("mark job failed failed", zap.Error(err))
		}
		metrics.JobsFailedTotal.WithLabelValues(string(rec.Job.Type), class.String()).Inc()
		return
	}

	base := time.Duration(e.cfg.BackoffBaseMs) * time.Millisecond
	maxDelay := base * time.Duration(1<<uint(e.cfg.MaxAttempts))

	var delay time.Duration
	if class == errs.ClassRateLimited {
		delay = rateLimitDelay(base, attemptsMade, maxDelay, res.RetryAfterMs)
	} else {
		delay = nextDelay(base, attemptsMade, maxDelay)
	}

	if err := e.store.Reschedule(ctx, rec.JobID, attemptsMade, time.Now().UTC().Add(delay)); err != nil {
		logger.Error("reschedule job failed", zap.Error(err))
	}
	metrics.JobsRetriedTotal.WithLabelValues(string(rec.Job.Type)).Inc()
}

// requeueInterrupted pushes a reserved job back to delayed, due
// immediately and with its attempt count unchanged, when a wait was
// interrupted by shutdown rather than by failure.
func (e *Engine) requeueInterrupted(ctx context.Context, rec *domain.JobRecord, reason string) {
	e.logger.Debug("job reservation interrupted", zap.String("job_id", rec.JobID), zap.String("reason", reason))
	if err := e.store.Reschedule(context.Background(), rec.JobID, rec.AttemptsMade, time.Now().UTC()); err != nil {
		e.logger.Error("requeue interrupted job failed", zap.String("job_id", rec.JobID), zap.Error(err))
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// execute dispatches a SynthesisJob to the matching chatapi.Client
// operation, decoding its tagged-union Payload by Type.
func (e *Engine) execute(ctx context.Context, job domain.SynthesisJob) chatapi.Result {
	switch job.Type {
	case domain.JobCreateRole:
		p, err := decodePayload[domain.RolePayload](job.Payload)
		if err != nil {
			return chatapi.Result{OK: false, Err: err}
		}
		return e.chat.CreateRole(ctx, job.GuildID, p.Name, p.Color, p.Permissions)

	case domain.JobDeleteRole:
		p, err := decodePayload[domain.RolePayload](job.Payload)
		if err != nil {
			return chatapi.Result{OK: false, Err: err}
		}
		return e.chat.DeleteRole(ctx, job.GuildID, p.RoleID)

	case domain.JobAssignRole:
		p, err := decodePayload[domain.RolePayload](job.Payload)
		if err != nil {
			return chatapi.Result{OK: false, Err: err}
		}
		return e.chat.AssignRole(ctx, job.GuildID, p.UserID, p.RoleID)

	case domain.JobRemoveRole:
		p, err := decodePayload[domain.RolePayload](job.Payload)
		if err != nil {
			return chatapi.Result{OK: false, Err: err}
		}
		return e.chat.RemoveRole(ctx, job.GuildID, p.UserID, p.RoleID)

	case domain.JobCreateChannel:
		p, err := decodePayload[domain.ChannelPayload](job.Payload)
		if err != nil {
			return chatapi.Result{OK: false, Err: err}
		}
		return e.chat.CreateChannel(ctx, job.GuildID, p.Name, p.ParentID, p.Private)

	case domain.JobDeleteChannel:
		p, err := decodePayload[domain.ChannelPayload](job.Payload)
		if err != nil {
			return chatapi.Result{OK: false, Err: err}
		}
		return e.chat.DeleteChannel(ctx, job.GuildID, p.ChannelID)

	case domain.JobUpdatePermissions:
		p, err := decodePayload[domain.PermissionsPayload](job.Payload)
		if err != nil {
			return chatapi.Result{OK: false, Err: err}
		}
		return e.chat.UpdateChannelPermissions(ctx, job.GuildID, p.ChannelID, p.TargetID, p.Allow, p.Deny)

	default:
		return chatapi.Result{OK: false, Err: domain.ErrMalformedPayload}
	}
}
