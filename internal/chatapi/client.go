// Package chatapi defines the typed wrapper over the external chat
// platform's HTTP API (C2). Every operation returns a structured Result
// instead of raising for rate limits — 429s are first-class (spec §4.2).
package chatapi

import "context"

// Result is the structured outcome of every chatapi operation.
type Result struct {
	OK           bool
	MessageID    string
	Err          error
	RetryAfterMs int64
	Global       bool
}

// Client is the Chat REST Client contract (C2).
type Client interface {
	DeferReply(ctx context.Context, interactionID, interactionToken string) Result
	SendFollowup(ctx context.Context, interactionToken, content string) Result
	EditOriginal(ctx context.Context, interactionToken, content string) Result
	AssignRole(ctx context.Context, guildID, userID, roleID string) Result
	RemoveRole(ctx context.Context, guildID, userID, roleID string) Result
	SendDM(ctx context.Context, userID, content string) Result
	GetGuildMember(ctx context.Context, guildID, userID string) Result
	CreateRole(ctx context.Context, guildID, name string, color int, permissions []string) Result
	DeleteRole(ctx context.Context, guildID, roleID string) Result
	CreateChannel(ctx context.Context, guildID, name, parentID string, private bool) Result
	DeleteChannel(ctx context.Context, guildID, channelID string) Result
	UpdateChannelPermissions(ctx context.Context, guildID, channelID, targetID string, allow, deny []string) Result
}
