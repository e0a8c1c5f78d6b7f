// Package event implements the Event Consumer (C6): the fail-open,
// idempotent dispatch loop for non-interaction Discord events (spec §4.6).
package event

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/sentinel-synth/synthcore/internal/consumer"
	"github.com/sentinel-synth/synthcore/internal/domain"
	"github.com/sentinel-synth/synthcore/internal/errs"
	"github.com/sentinel-synth/synthcore/internal/kv"
)

// Handler processes one validated event payload with injected
// capabilities already bound by the caller (chatapi client, engine,
// cooldown store, etc. — see internal/handlers).
type Handler func(ctx context.Context, payload *domain.DiscordEventPayload) error

// Consumer is the Event Consumer (C6), built on top of the abstract
// Message Consumer (C5).
type Consumer struct {
	base           *consumer.Consumer
	handlers       map[domain.EventType]Handler
	kv             kv.Store
	idempotencyTTL time.Duration
	logger         *zap.Logger
}

// New builds an Event Consumer. handlers maps an EventType to the
// function invoked once validation and the idempotency pre-check pass;
// an unregistered EventType is ack-ed and dropped silently (spec §4.6
// step 1).
func New(url, queue string, prefetch int, handlers map[domain.EventType]Handler, kvStore kv.Store, idempotencyTTL time.Duration, logger *zap.Logger) *Consumer {
	c := &Consumer{
		handlers:       handlers,
		kv:             kvStore,
		idempotencyTTL: idempotencyTTL,
		logger:         logger,
	}
	c.base = consumer.New("event", url, queue, prefetch, c.handle, logger)
	return c
}

func (c *Consumer) Connect(ctx context.Context) error       { return c.base.Connect(ctx) }
func (c *Consumer) StartConsuming(ctx context.Context) error { return c.base.StartConsuming(ctx) }
func (c *Consumer) StopConsuming()                           { c.base.StopConsuming() }
func (c *Consumer) Close() error                             { return c.base.Close() }
func (c *Consumer) Status() domain.ConsumerStatus             { return c.base.Status() }

// handle implements spec §4.6's five-step algorithm.
func (c *Consumer) handle(ctx context.Context, body []byte) domain.AckDecision {
	var payload domain.DiscordEventPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.logger.Warn("malformed event payload", zap.Error(err))
		return domain.NackDrop
	}
	if err := payload.Validate(); err != nil {
		c.logger.Warn("event payload failed validation", zap.String("eventId", payload.EventID), zap.Error(err))
		return domain.NackDrop
	}

	handler, ok := c.handlers[payload.EventType]
	if !ok {
		return domain.Ack
	}

	key := payload.ProcessedKey()
	exists, err := c.kv.Exists(ctx, key)
	if err != nil {
		c.logger.Warn("idempotency check failed, proceeding fail-open", zap.String("eventId", payload.EventID), zap.Error(err))
	}
	if exists {
		return domain.Ack
	}

	if err := handler(ctx, &payload); err != nil {
		class := errs.Classify(err)
		c.logger.Error("event handler failed",
			zap.String("eventId", payload.EventID),
			zap.String("eventType", string(payload.EventType)),
			zap.String("class", class.String()),
			zap.Error(err),
		)
		if class == errs.ClassTransient {
			return domain.NackRequeue
		}
		return domain.NackDrop
	}

	if err := c.kv.Set(ctx, key, "1", c.idempotencyTTL); err != nil {
		c.logger.Warn("idempotency set failed (best effort)", zap.String("eventId", payload.EventID), zap.Error(err))
	}
	return domain.Ack
}
