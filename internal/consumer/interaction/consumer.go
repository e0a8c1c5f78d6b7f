// Package interaction implements the Interaction Consumer (C7): the
// two-phase reply dispatch loop for interaction.* events (spec §4.7).
package interaction

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/sentinel-synth/synthcore/internal/chatapi"
	"github.com/sentinel-synth/synthcore/internal/consumer"
	"github.com/sentinel-synth/synthcore/internal/domain"
)

// Handler is dispatched after deferReply succeeds; it may enqueue
// Synthesis jobs and/or call chatapi for the follow-up message.
type Handler func(ctx context.Context, payload *domain.DiscordEventPayload) error

// Consumer is the Interaction Consumer (C7).
type Consumer struct {
	base     *consumer.Consumer
	handlers map[domain.EventType]Handler
	chat     chatapi.Client
	logger   *zap.Logger
}

// New builds an Interaction Consumer. handlers maps an EventType (e.g.
// "interaction.command.verify") to the command handler invoked after
// deferReply succeeds.
func New(url, queue string, prefetch int, handlers map[domain.EventType]Handler, chat chatapi.Client, logger *zap.Logger) *Consumer {
	c := &Consumer{handlers: handlers, chat: chat, logger: logger}
	c.base = consumer.New("interaction", url, queue, prefetch, c.handle, logger)
	return c
}

func (c *Consumer) Connect(ctx context.Context) error       { return c.base.Connect(ctx) }
func (c *Consumer) StartConsuming(ctx context.Context) error { return c.base.StartConsuming(ctx) }
func (c *Consumer) StopConsuming()                           { c.base.StopConsuming() }
func (c *Consumer) Close() error                             { return c.base.Close() }
func (c *Consumer) Status() domain.ConsumerStatus             { return c.base.Status() }

// handle implements spec §4.7's five-step algorithm.
func (c *Consumer) handle(ctx context.Context, body []byte) domain.AckDecision {
	var payload domain.DiscordEventPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.logger.Warn("malformed interaction payload", zap.Error(err))
		return domain.NackDrop
	}

	if !payload.EventType.IsInteraction() {
		c.logger.Debug("dropping non-interaction message on interaction queue", zap.String("eventType", string(payload.EventType)))
		return domain.Ack
	}

	if payload.InteractionID == "" || payload.InteractionToken == "" {
		c.logger.Warn("interaction missing interactionId/interactionToken", zap.String("eventId", payload.EventID))
		return domain.NackDrop
	}

	res := c.chat.DeferReply(ctx, payload.InteractionID, payload.InteractionToken)
	if !res.OK {
		c.logger.Warn("deferReply failed", zap.String("eventId", payload.EventID), zap.Error(res.Err))
		return domain.NackDrop
	}

	handler, ok := c.handlers[payload.EventType]
	if !ok {
		c.logger.Warn("no handler registered for interaction", zap.String("eventType", string(payload.EventType)))
		return domain.NackDrop
	}

	if err := handler(ctx, &payload); err != nil {
		c.logger.Error("interaction handler failed",
			zap.String("eventId", payload.EventID),
			zap.String("eventType", string(payload.EventType)),
			zap.Error(err),
		)
		return domain.NackDrop
	}
	return domain.Ack
}
