package handlers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sentinel-synth/synthcore/internal/chatapi"
	chatmock "github.com/sentinel-synth/synthcore/internal/chatapi/mock"
	"github.com/sentinel-synth/synthcore/internal/domain"
	kvmock "github.com/sentinel-synth/synthcore/internal/kv/mock"
)

type fakeEnqueuer struct {
	calls []domain.SynthesisJob
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, job domain.SynthesisJob, opts domain.EnqueueOptions) (string, error) {
	f.calls = append(f.calls, job)
	return "job-1", nil
}

func newCapabilities() (*Capabilities, *chatmock.Client, *kvmock.Store, *fakeEnqueuer) {
	chat := &chatmock.Client{}
	kvStore := kvmock.NewEmpty()
	enq := &fakeEnqueuer{}
	c := &Capabilities{Chat: chat, KV: kvStore, Engine: enq, Logger: zap.NewNop()}
	return c, chat, kvStore, enq
}

func TestMemberJoin_SendsWelcomeAndEnqueuesRole(t *testing.T) {
	c, chat, _, enq := newCapabilities()

	data, _ := json.Marshal(map[string]string{"userId": "u1"})
	payload := &domain.DiscordEventPayload{EventID: "e1", EventType: domain.EventMemberJoin, GuildID: "g1", Data: data}

	if err := c.MemberJoin(context.Background(), payload); err != nil {
		t.Fatalf("member join: %v", err)
	}
	if n := chat.CountOp("sendDM"); n != 1 {
		t.Fatalf("expected 1 welcome DM, got %d", n)
	}
	if len(enq.calls) != 1 {
		t.Fatalf("expected 1 enqueued job, got %d", len(enq.calls))
	}
	if enq.calls[0].Type != domain.JobAssignRole {
		t.Fatalf("expected assign_role job, got %s", enq.calls[0].Type)
	}
}

func TestMemberJoin_OnCooldown_SkipsDM(t *testing.T) {
	c, chat, kvStore, enq := newCapabilities()
	_ = kvStore.CooldownSet(context.Background(), "welcome:g1:u1", time.Now().Add(time.Hour))

	data, _ := json.Marshal(map[string]string{"userId": "u1"})
	payload := &domain.DiscordEventPayload{EventID: "e1", EventType: domain.EventMemberJoin, GuildID: "g1", Data: data}

	if err := c.MemberJoin(context.Background(), payload); err != nil {
		t.Fatalf("member join: %v", err)
	}
	if n := chat.CountOp("sendDM"); n != 0 {
		t.Fatalf("expected no DM while on cooldown, got %d", n)
	}
	if len(enq.calls) != 0 {
		t.Fatalf("expected no job enqueued while on cooldown, got %d", len(enq.calls))
	}
}

func TestMemberJoin_MalformedData(t *testing.T) {
	c, _, _, _ := newCapabilities()
	payload := &domain.DiscordEventPayload{EventID: "e1", EventType: domain.EventMemberJoin, GuildID: "g1", Data: []byte("not json")}
	if err := c.MemberJoin(context.Background(), payload); err == nil {
		t.Fatal("expected error for malformed data")
	}
}

func TestVerifyCommand_EnqueuesAndSendsFollowup(t *testing.T) {
	c, chat, _, enq := newCapabilities()

	data, _ := json.Marshal(map[string]string{"userId": "u1", "roleId": "verified"})
	payload := &domain.DiscordEventPayload{
		EventID: "e1", EventType: "interaction.command.verify", GuildID: "g1",
		Data: data, InteractionID: "i1", InteractionToken: "t1",
	}

	if err := c.VerifyCommand(context.Background(), payload); err != nil {
		t.Fatalf("verify command: %v", err)
	}
	if len(enq.calls) != 1 {
		t.Fatalf("expected 1 enqueued job, got %d", len(enq.calls))
	}
	if n := chat.CountOp("sendFollowup"); n != 1 {
		t.Fatalf("expected 1 follow-up message, got %d", n)
	}
}

func TestVerifyCommand_FollowupFails(t *testing.T) {
	c, chat, _, _ := newCapabilities()
	chat.SendFollowupFn = func(ctx context.Context, interactionToken, content string) chatapi.Result {
		return chatapi.Result{OK: false, Err: domain.ErrUnavailable}
	}

	data, _ := json.Marshal(map[string]string{"userId": "u1", "roleId": "verified"})
	payload := &domain.DiscordEventPayload{
		EventID: "e1", EventType: "interaction.command.verify", GuildID: "g1",
		Data: data, InteractionID: "i1", InteractionToken: "t1",
	}

	if err := c.VerifyCommand(context.Background(), payload); err == nil {
		t.Fatal("expected error when follow-up fails")
	}
}
