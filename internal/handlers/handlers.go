// Package handlers contains example event and interaction handlers
// demonstrating the injected-capability pattern from spec §9 ("Runtime
// dependency injection: Consumers and the Engine take their collaborators
// ... by interface"). Capabilities is constructed once at boot and its
// methods are registered into the Event/Interaction Consumer handler maps.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sentinel-synth/synthcore/internal/chatapi"
	"github.com/sentinel-synth/synthcore/internal/consumer/event"
	"github.com/sentinel-synth/synthcore/internal/consumer/interaction"
	"github.com/sentinel-synth/synthcore/internal/domain"
	"github.com/sentinel-synth/synthcore/internal/kv"
)

// welcomeCooldown bounds how often the welcome DM fires per user, scoped
// under "cooldown:welcome:<guildId>:<userId>" via kv.Store's cooldown
// helpers.
const welcomeCooldown = 10 * time.Minute

// Capabilities bundles the collaborators handlers need, all taken by
// interface so tests substitute fakes (spec §9's dependency-injection
// note).
type Capabilities struct {
	Chat   chatapi.Client
	KV     kv.Store
	Engine jobEnqueuer
	Logger *zap.Logger
}

// jobEnqueuer is the subset of engine.Engine a handler needs; kept as a
// narrow local interface so this package doesn't depend on
// internal/engine and tests can substitute a fake enqueuer.
type jobEnqueuer interface {
	Enqueue(ctx context.Context, job domain.SynthesisJob, opts domain.EnqueueOptions) (string, error)
}

type memberJoinData struct {
	UserID string `json:"userId"`
}

// MemberJoin sends a cooldown-gated welcome DM and enqueues a default
// "member" role assignment.
func (c *Capabilities) MemberJoin(ctx context.Context, payload *domain.DiscordEventPayload) error {
	var data memberJoinData
	if err := json.Unmarshal(payload.Data, &data); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}

	cooldownKey := fmt.Sprintf("welcome:%s:%s", payload.GuildID, data.UserID)
	until, onCooldown, err := c.KV.CooldownGet(ctx, cooldownKey)
	if err != nil {
		c.Logger.Warn("cooldown check failed, proceeding fail-open", zap.Error(err))
	}
	if onCooldown && time.Now().Before(until) {
		return nil
	}

	res := c.Chat.SendDM(ctx, data.UserID, "welcome to the server")
	if !res.OK {
		return res.Err
	}
	if err := c.KV.CooldownSet(ctx, cooldownKey, time.Now().Add(welcomeCooldown)); err != nil {
		c.Logger.Warn("cooldown set failed (best effort)", zap.Error(err))
	}

	rolePayload, err := json.Marshal(domain.RolePayload{UserID: data.UserID, RoleID: "default-member"})
	if err != nil {
		return fmt.Errorf("marshal role payload: %w", err)
	}
	_, err = c.Engine.Enqueue(ctx, domain.SynthesisJob{
		Type:           domain.JobAssignRole,
		GuildID:        payload.GuildID,
		CommunityID:    payload.GuildID,
		Payload:        rolePayload,
		IdempotencyKey: fmt.Sprintf("assign:%s:%s:default-member", payload.GuildID, data.UserID),
	}, domain.EnqueueOptions{})
	return err
}

type memberLeaveData struct {
	UserID string `json:"userId"`
}

// MemberLeave clears any session state held for the departing member.
func (c *Capabilities) MemberLeave(ctx context.Context, payload *domain.DiscordEventPayload) error {
	var data memberLeaveData
	if err := json.Unmarshal(payload.Data, &data); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	sessionKey := fmt.Sprintf("%s:%s", payload.GuildID, data.UserID)
	return c.KV.SessionDelete(ctx, sessionKey)
}

// EventHandlers returns the Event Consumer registry for these capabilities.
func (c *Capabilities) EventHandlers() map[domain.EventType]event.Handler {
	return map[domain.EventType]event.Handler{
		domain.EventMemberJoin:  c.MemberJoin,
		domain.EventMemberLeave: c.MemberLeave,
	}
}

const verifyCommand domain.EventType = "interaction.command.verify"

type verifyCommandData struct {
	UserID string `json:"userId"`
	RoleID string `json:"roleId"`
}

// VerifyCommand demonstrates the interaction two-phase reply: by the time
// it runs, deferReply has already succeeded; this enqueues the role
// assignment and sends the follow-up message.
func (c *Capabilities) VerifyCommand(ctx context.Context, payload *domain.DiscordEventPayload) error {
	var data verifyCommandData
	if err := json.Unmarshal(payload.Data, &data); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}

	rolePayload, err := json.Marshal(domain.RolePayload{UserID: data.UserID, RoleID: data.RoleID})
	if err != nil {
		return fmt.Errorf("marshal role payload: %w", err)
	}
	if _, err := c.Engine.Enqueue(ctx, domain.SynthesisJob{
		Type:           domain.JobAssignRole,
		GuildID:        payload.GuildID,
		CommunityID:    payload.GuildID,
		Payload:        rolePayload,
		IdempotencyKey: fmt.Sprintf("assign:%s:%s:%s", payload.GuildID, data.UserID, data.RoleID),
	}, domain.EnqueueOptions{}); err != nil {
		return err
	}

	res := c.Chat.SendFollowup(ctx, payload.InteractionToken, "verification submitted")
	if !res.OK {
		return res.Err
	}
	return nil
}

// InteractionHandlers returns the Interaction Consumer registry for these
// capabilities.
func (c *Capabilities) InteractionHandlers() map[domain.EventType]interaction.Handler {
	return map[domain.EventType]interaction.Handler{
		verifyCommand: c.VerifyCommand,
	}
}
