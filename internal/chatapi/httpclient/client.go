// Package httpclient implements chatapi.Client over net/http, wrapping
// every call in a sony/gobreaker circuit breaker so a wedged platform
// trips open instead of letting every Synthesis Engine worker burn its
// full retry budget against a dead upstream.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/sentinel-synth/synthcore/internal/chatapi"
	"github.com/sentinel-synth/synthcore/internal/domain"
	"github.com/sentinel-synth/synthcore/internal/metrics"
)

var _ chatapi.Client = (*Client)(nil)

// Client is an HTTP-backed chatapi.Client.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
	logger  *zap.Logger
}

// New creates a Client against baseURL, authenticating with token as a
// bot-style bearer credential.
func New(baseURL, token string, logger *zap.Logger) *Client {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "chatapi",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("chat REST circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
		breaker: cb,
		logger:  logger,
	}
}

// do executes one HTTP request through the circuit breaker and classifies
// the response into a structured Result. Only transport-level failures and
// an open breaker count as breaker failures; 4xx/429 responses are
// considered successful round trips from the breaker's perspective (the
// platform answered) and are classified afterward.
func (c *Client) do(ctx context.Context, op, method, path string, body any) Result {
	start := time.Now()
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errResult(op, fmt.Errorf("marshal request: %w", err))
		}
		buf = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, buf)
	if err != nil {
		return errResult(op, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bot "+c.token)

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		return c.http.Do(req)
	})
	elapsed := time.Since(start).Seconds()
	metrics.OperationLatencySeconds.WithLabelValues(op).Observe(elapsed)

	if err != nil {
		metrics.OperationsTotal.WithLabelValues(op, "unavailable").Inc()
		return Result{OK: false, Err: fmt.Errorf("%w: %v", domain.ErrUnavailable, err)}
	}
	defer resp.Body.Close()

	return c.classify(op, resp)
}

type Result = chatapi.Result

func errResult(op string, err error) Result {
	metrics.OperationsTotal.WithLabelValues(op, "error").Inc()
	return Result{OK: false, Err: err}
}

// classify turns an HTTP response into the spec §4.2 structured Result:
// 429s surface retryAfterMs/global instead of an opaque error, 5xx
// surfaces ErrUnavailable, 403/404 surface ErrPermanent, and any other
// status surfaces an unclassified "unexpected status" error.
func (c *Client) classify(op string, resp *http.Response) Result {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		metrics.OperationsTotal.WithLabelValues(op, "ok").Inc()
		var payload struct {
			ID string `json:"id"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		return Result{OK: true, MessageID: payload.ID}

	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfterMs := retryAfterMillis(resp)
		global := resp.Header.Get("X-RateLimit-Global") == "true"
		metrics.OperationsTotal.WithLabelValues(op, "rate_limited").Inc()
		return Result{
			OK:           false,
			Err:          domain.ErrRateLimited,
			RetryAfterMs: retryAfterMs,
			Global:       global,
		}

	case resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusNotFound:
		metrics.OperationsTotal.WithLabelValues(op, "permanent").Inc()
		return Result{OK: false, Err: domain.ErrPermanent}

	case resp.StatusCode >= 500:
		metrics.OperationsTotal.WithLabelValues(op, "unavailable").Inc()
		return Result{OK: false, Err: domain.ErrUnavailable}

	default:
		metrics.OperationsTotal.WithLabelValues(op, "error").Inc()
		return Result{OK: false, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
}

// retryAfterMillis parses the Retry-After header (seconds, per HTTP spec)
// into milliseconds. The chat platform may also carry a more precise
// X-RateLimit-Reset-After header in fractional seconds; prefer it.
func retryAfterMillis(resp *http.Response) int64 {
	if v := resp.Header.Get("X-RateLimit-Reset-After"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return int64(f * 1000)
		}
	}
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return int64(secs) * 1000
		}
	}
	return 1000
}

func (c *Client) DeferReply(ctx context.Context, interactionID, interactionToken string) Result {
	path := fmt.Sprintf("/interactions/%s/%s/callback", url.PathEscape(interactionID), url.PathEscape(interactionToken))
	return c.do(ctx, "defer_reply", http.MethodPost, path, map[string]int{"type": 5})
}

func (c *Client) SendFollowup(ctx context.Context, interactionToken, content string) Result {
	path := fmt.Sprintf("/webhooks/%s", url.PathEscape(interactionToken))
	return c.do(ctx, "send_followup", http.MethodPost, path, map[string]string{"content": content})
}

func (c *Client) EditOriginal(ctx context.Context, interactionToken, content string) Result {
	path := fmt.Sprintf("/webhooks/%s/messages/@original", url.PathEscape(interactionToken))
	return c.do(ctx, "edit_original", http.MethodPatch, path, map[string]string{"content": content})
}

func (c *Client) AssignRole(ctx context.Context, guildID, userID, roleID string) Result {
	path := fmt.Sprintf("/guilds/%s/members/%s/roles/%s", guildID, userID, roleID)
	return c.do(ctx, "assign_role", http.MethodPut, path, nil)
}

func (c *Client) RemoveRole(ctx context.Context, guildID, userID, roleID string) Result {
	path := fmt.Sprintf("/guilds/%s/members/%s/roles/%s", guildID, userID, roleID)
	return c.do(ctx, "remove_role", http.MethodDelete, path, nil)
}

func (c *Client) SendDM(ctx context.Context, userID, content string) Result {
	path := fmt.Sprintf("/users/%s/dm", userID)
	return c.do(ctx, "send_dm", http.MethodPost, path, map[string]string{"content": content})
}

func (c *Client) GetGuildMember(ctx context.Context, guildID, userID string) Result {
	path := fmt.Sprintf("/guilds/%s/members/%s", guildID, userID)
	return c.do(ctx, "get_guild_member", http.MethodGet, path, nil)
}

func (c *Client) CreateRole(ctx context.Context, guildID, name string, color int, permissions []string) Result {
	path := fmt.Sprintf("/guilds/%s/roles", guildID)
	body := map[string]any{"name": name, "color": color, "permissions": permissions}
	return c.do(ctx, "create_role", http.MethodPost, path, body)
}

func (c *Client) DeleteRole(ctx context.Context, guildID, roleID string) Result {
	path := fmt.Sprintf("/guilds/%s/roles/%s", guildID, roleID)
	return c.do(ctx, "delete_role", http.MethodDelete, path, nil)
}

func (c *Client) CreateChannel(ctx context.Context, guildID, name, parentID string, private bool) Result {
	path := fmt.Sprintf("/guilds/%s/channels", guildID)
	body := map[string]any{"name": name, "parent_id": parentID, "private": private}
	return c.do(ctx, "create_channel", http.MethodPost, path, body)
}

func (c *Client) DeleteChannel(ctx context.Context, guildID, channelID string) Result {
	path := fmt.Sprintf("/guilds/%s/channels/%s", guildID, channelID)
	return c.do(ctx, "delete_channel", http.MethodDelete, path, nil)
}

func (c *Client) UpdateChannelPermissions(ctx context.Context, guildID, channelID, targetID string, allow, deny []string) Result {
	path := fmt.Sprintf("/guilds/%s/channels/%s/permissions/%s", guildID, channelID, targetID)
	body := map[string]any{"allow": allow, "deny": deny}
	return c.do(ctx, "update_channel_permissions", http.MethodPut, path, body)
}
