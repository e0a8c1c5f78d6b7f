// Package domain holds the wire and queue-internal types shared by every
// component of the synthesis core. Nothing here talks to the network,
// a broker, or a database — it is the vocabulary the rest of the packages
// share.
package domain

import "encoding/json"

// EventType is the discriminated tag carried on every inbound payload.
type EventType string

const (
	EventMemberJoin   EventType = "member.join"
	EventMemberLeave  EventType = "member.leave"
	EventMemberUpdate EventType = "member.update"
	EventGuildCreate  EventType = "guild.create"
	EventGuildDelete  EventType = "guild.delete"
	EventMessageCreate EventType = "message.create"
)

// IsInteraction reports whether the event type is an interaction command,
// i.e. starts with "interaction.".
func (t EventType) IsInteraction() bool {
	return len(t) >= len("interaction.") && string(t)[:len("interaction.")] == "interaction."
}

// DiscordEventPayload is the inbound broker message body (see spec §6).
type DiscordEventPayload struct {
	EventID           string          `json:"eventId"`
	EventType         EventType       `json:"eventType"`
	GuildID           string          `json:"guildId"`
	Timestamp         int64           `json:"timestamp"`
	Data              json.RawMessage `json:"data"`
	InteractionID     string          `json:"interactionId,omitempty"`
	InteractionToken  string          `json:"interactionToken,omitempty"`
}

// Validate checks the minimal structural requirements of the wire schema.
// It does not interpret Data — that is the handler's job.
func (p *DiscordEventPayload) Validate() error {
	if p.EventID == "" {
		return ErrSchemaInvalid
	}
	if p.EventType == "" {
		return ErrSchemaInvalid
	}
	if p.GuildID == "" {
		return ErrSchemaInvalid
	}
	if p.EventType.IsInteraction() {
		if p.InteractionID == "" || p.InteractionToken == "" {
			return ErrMissingInteractionToken
		}
	}
	return nil
}

// ProcessedKey is the KV idempotency key for this event (see spec §6).
func (p *DiscordEventPayload) ProcessedKey() string {
	return "event:processed:" + p.EventID
}
