// Package mock provides a test double for chatapi.Client, following the
// teacher's Fn-override-plus-recorded-calls idiom
// (worker/internal/repository/mock/mock.go).
package mock

import (
	"context"
	"sync"

	"github.com/sentinel-synth/synthcore/internal/chatapi"
)

var _ chatapi.Client = (*Client)(nil)

// Call records one invocation for assertions.
type Call struct {
	Op   string
	Args []string
}

// Client is a test double for chatapi.Client.
type Client struct {
	mu sync.Mutex

	DeferReplyFn               func(ctx context.Context, interactionID, interactionToken string) chatapi.Result
	SendFollowupFn              func(ctx context.Context, interactionToken, content string) chatapi.Result
	EditOriginalFn               func(ctx context.Context, interactionToken, content string) chatapi.Result
	AssignRoleFn                func(ctx context.Context, guildID, userID, roleID string) chatapi.Result
	RemoveRoleFn                func(ctx context.Context, guildID, userID, roleID string) chatapi.Result
	SendDMFn                     func(ctx context.Context, userID, content string) chatapi.Result
	GetGuildMemberFn             func(ctx context.Context, guildID, userID string) chatapi.Result
	CreateRoleFn                 func(ctx context.Context, guildID, name string, color int, permissions []string) chatapi.Result
	DeleteRoleFn                 func(ctx context.Context, guildID, roleID string) chatapi.Result
	CreateChannelFn              func(ctx context.Context, guildID, name, parentID string, private bool) chatapi.Result
	DeleteChannelFn              func(ctx context.Context, guildID, channelID string) chatapi.Result
	UpdateChannelPermissionsFn   func(ctx context.Context, guildID, channelID, targetID string, allow, deny []string) chatapi.Result

	Calls []Call
}

func (m *Client) record(op string, args ...string) {
	m.mu.Lock()
	m.Calls = append(m.Calls, Call{Op: op, Args: args})
	m.mu.Unlock()
}

func (m *Client) DeferReply(ctx context.Context, interactionID, interactionToken string) chatapi.Result {
	m.record("deferReply", interactionID, interactionToken)
	if m.DeferReplyFn != nil {
		return m.DeferReplyFn(ctx, interactionID, interactionToken)
	}
	return chatapi.Result{OK: true}
}

func (m *Client) SendFollowup(ctx context.Context, interactionToken, content string) chatapi.Result {
	m.record("sendFollowup", interactionToken, content)
	if m.SendFollowupFn != nil {
		return m.SendFollowupFn(ctx, interactionToken, content)
	}
	return chatapi.Result{OK: true}
}

func (m *Client) EditOriginal(ctx context.Context, interactionToken, content string) chatapi.Result {
	m.record("editOriginal", interactionToken, content)
	if m.EditOriginalFn != nil {
		return m.EditOriginalFn(ctx, interactionToken, content)
	}
	return chatapi.Result{OK: true}
}

func (m *Client) AssignRole(ctx context.Context, guildID, userID, roleID string) chatapi.Result {
	m.record("assignRole", guildID, userID, roleID)
	if m.AssignRoleFn != nil {
		return m.AssignRoleFn(ctx, guildID, userID, roleID)
	}
	return chatapi.Result{OK: true}
}

func (m *Client) RemoveRole(ctx context.Context, guildID, userID, roleID string) chatapi.Result {
	m.record("removeRole", guildID, userID, roleID)
	if m.RemoveRoleFn != nil {
		return m.RemoveRoleFn(ctx, guildID, userID, roleID)
	}
	return chatapi.Result{OK: true}
}

func (m *Client) SendDM(ctx context.Context, userID, content string) chatapi.Result {
	m.record("sendDM", userID, content)
	if m.SendDMFn != nil {
		return m.SendDMFn(ctx, userID, content)
	}
	return chatapi.Result{OK: true}
}

func (m *Client) GetGuildMember(ctx context.Context, guildID, userID string) chatapi.Result {
	m.record("getGuildMember", guildID, userID)
	if m.GetGuildMemberFn != nil {
		return m.GetGuildMemberFn(ctx, guildID, userID)
	}
	return chatapi.Result{OK: true}
}

func (m *Client) CreateRole(ctx context.Context, guildID, name string, color int, permissions []string) chatapi.Result {
	m.record("createRole", guildID, name)
	if m.CreateRoleFn != nil {
		return m.CreateRoleFn(ctx, guildID, name, color, permissions)
	}
	return chatapi.Result{OK: true}
}

func (m *Client) DeleteRole(ctx context.Context, guildID, roleID string) chatapi.Result {
	m.record("deleteRole", guildID, roleID)
	if m.DeleteRoleFn != nil {
		return m.DeleteRoleFn(ctx, guildID, roleID)
	}
	return chatapi.Result{OK: true}
}

func (m *Client) CreateChannel(ctx context.Context, guildID, name, parentID string, private bool) chatapi.Result {
	m.record("createChannel", guildID, name, parentID)
	if m.CreateChannelFn != nil {
		return m.CreateChannelFn(ctx, guildID, name, parentID, private)
	}
	return chatapi.Result{OK: true}
}

func (m *Client) DeleteChannel(ctx context.Context, guildID, channelID string) chatapi.Result {
	m.record("deleteChannel", guildID, channelID)
	if m.DeleteChannelFn != nil {
		return m.DeleteChannelFn(ctx, guildID, channelID)
	}
	return chatapi.Result{OK: true}
}

func (m *Client) UpdateChannelPermissions(ctx context.Context, guildID, channelID, targetID string, allow, deny []string) chatapi.Result {
	m.record("updateChannelPermissions", guildID, channelID, targetID)
	if m.UpdateChannelPermissionsFn != nil {
		return m.UpdateChannelPermissionsFn(ctx, guildID, channelID, targetID, allow, deny)
	}
	return chatapi.Result{OK: true}
}

// CountOp returns how many times an operation was called.
func (m *Client) CountOp(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c.Op == op {
			n++
		}
	}
	return n
}
