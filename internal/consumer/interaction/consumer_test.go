package interaction

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/sentinel-synth/synthcore/internal/chatapi"
	chatmock "github.com/sentinel-synth/synthcore/internal/chatapi/mock"
	"github.com/sentinel-synth/synthcore/internal/domain"
)

// S3 — interaction happy path: deferReply called exactly once, then ack.
func TestHandle_HappyPath_DefersThenAcks(t *testing.T) {
	chat := &chatmock.Client{}
	var dispatched bool
	handlers := map[domain.EventType]Handler{
		"interaction.command.verify": func(ctx context.Context, payload *domain.DiscordEventPayload) error {
			dispatched = true
			return nil
		},
	}
	c := New("amqp://unused", "interactions", 5, handlers, chat, zap.NewNop())

	body := []byte(`{"eventId":"e1","eventType":"interaction.command.verify","guildId":"g1","timestamp":1,"data":{},"interactionId":"i1","interactionToken":"t1"}`)
	decision := c.handle(context.Background(), body)

	if decision != domain.Ack {
		t.Fatalf("expected Ack, got %v", decision)
	}
	if n := chat.CountOp("deferReply"); n != 1 {
		t.Fatalf("expected deferReply called exactly once, got %d", n)
	}
	if !dispatched {
		t.Fatal("expected command handler dispatched after successful defer")
	}
}

// S4 — missing interaction token: nack(requeue=false); no REST call.
func TestHandle_MissingInteractionToken_NackDropNoRest(t *testing.T) {
	chat := &chatmock.Client{}
	c := New("amqp://unused", "interactions", 5, nil, chat, zap.NewNop())

	body := []byte(`{"eventId":"e1","eventType":"interaction.command.verify","guildId":"g1","timestamp":1,"data":{}}`)
	decision := c.handle(context.Background(), body)

	if decision != domain.NackDrop {
		t.Fatalf("expected NackDrop, got %v", decision)
	}
	if n := chat.CountOp("deferReply"); n != 0 {
		t.Fatalf("expected no REST call, got %d", n)
	}
}

func TestHandle_NonInteractionEvent_Acked(t *testing.T) {
	c := New("amqp://unused", "interactions", 5, nil, &chatmock.Client{}, zap.NewNop())
	body := []byte(`{"eventId":"e1","eventType":"member.join","guildId":"g1","timestamp":1,"data":{}}`)
	decision := c.handle(context.Background(), body)
	if decision != domain.Ack {
		t.Fatalf("expected Ack (dropped, logged) for non-interaction event, got %v", decision)
	}
}

func TestHandle_DeferReplyFails_NackDrop(t *testing.T) {
	chat := &chatmock.Client{
		DeferReplyFn: func(ctx context.Context, interactionID, interactionToken string) chatapi.Result {
			return chatapi.Result{OK: false, Err: errors.New("token expired")}
		},
	}
	handlers := map[domain.EventType]Handler{
		"interaction.command.verify": func(ctx context.Context, payload *domain.DiscordEventPayload) error {
			t.Fatal("handler should not run when deferReply fails")
			return nil
		},
	}
	c := New("amqp://unused", "interactions", 5, handlers, chat, zap.NewNop())

	body := []byte(`{"eventId":"e1","eventType":"interaction.command.verify","guildId":"g1","timestamp":1,"data":{},"interactionId":"i1","interactionToken":"t1"}`)
	decision := c.handle(context.Background(), body)
	if decision != domain.NackDrop {
		t.Fatalf("expected NackDrop, got %v", decision)
	}
}
