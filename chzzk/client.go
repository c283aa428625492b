// Package chzzk contains the HTTP side of the Chzzk chat protocol: locating a
// channel's live chat room and exchanging it for a chat access token. The
// streaming side lives in package chat.
package chzzk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/onnwee/chatdeck/telemetry"
)

const (
	DefaultAPIBase     = "https://api.chzzk.naver.com"
	DefaultCommAPIBase = "https://comm-api.game.naver.com"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

var (
	// ErrChannelUnavailable means no status endpoint produced a usable answer.
	ErrChannelUnavailable = errors.New("channel unavailable")
	// ErrNotLive means the channel exists but is not broadcasting.
	ErrNotLive = errors.New("channel is not live")
	// ErrCredential means the chat access token could not be obtained.
	ErrCredential = errors.New("chat credential exchange failed")
)

// Client talks to the Chzzk REST endpoints.
type Client struct {
	APIBase     string
	CommAPIBase string
	HTTPClient  *http.Client
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (c *Client) apiBase() string {
	if c.APIBase != "" {
		return c.APIBase
	}
	return DefaultAPIBase
}

func (c *Client) commBase() string {
	if c.CommAPIBase != "" {
		return c.CommAPIBase
	}
	return DefaultCommAPIBase
}

// statusURLs lists the status endpoints in preference order.
func (c *Client) statusURLs(channelID string) []string {
	id := url.PathEscape(channelID)
	base := c.apiBase()
	return []string{
		base + "/polling/v2/channels/" + id + "/live-status",
		base + "/polling/v1/channels/" + id + "/live-status",
		base + "/service/v2/channels/" + id + "/live-detail",
	}
}

// LiveStatus queries the status endpoints in order and returns the first
// successful, parseable answer. It does not judge whether the channel is live.
func (c *Client) LiveStatus(ctx context.Context, channelID string) (*LiveStatus, error) {
	ctx, span := telemetry.StartSpan(ctx, "chzzk", "chzzk.live_status")
	defer span.End()

	for _, u := range c.statusURLs(channelID) {
		st, err := c.fetchStatus(ctx, u)
		if err != nil {
			slog.Debug("chzzk status endpoint failed", slog.String("url", u), slog.Any("err", err), slog.String("component", "chzzk"))
			continue
		}
		slog.Debug("chzzk live status", slog.String("url", u), slog.String("status", st.Status), slog.Bool("has_chat_channel", st.ChatChannelID != ""), slog.String("component", "chzzk"))
		return st, nil
	}
	if err := ctx.Err(); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	err := fmt.Errorf("%w: no status endpoint answered for %q", ErrChannelUnavailable, channelID)
	telemetry.RecordError(span, err)
	return nil, err
}

func (c *Client) fetchStatus(ctx context.Context, u string) (*LiveStatus, error) {
	body, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	raw := unwrapContent(body)
	var st LiveStatus
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	if st.Status == "" {
		return nil, errors.New("status field missing")
	}
	return &st, nil
}

// AccessToken exchanges a chat channel id for a chat access token.
func (c *Client) AccessToken(ctx context.Context, chatChannelID string) (*AccessToken, error) {
	ctx, span := telemetry.StartSpan(ctx, "chzzk", "chzzk.access_token")
	defer span.End()

	q := url.Values{}
	q.Set("channelId", chatChannelID)
	q.Set("chatType", "STREAMING")
	u := c.commBase() + "/nng_main/v1/chats/access-token?" + q.Encode()

	body, err := c.get(ctx, u)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrCredential, err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	var env struct {
		Content *AccessToken `json:"content"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		err = fmt.Errorf("%w: decode: %w", ErrCredential, err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	if env.Content == nil || env.Content.AccessToken == "" {
		err := fmt.Errorf("%w: response has no access token", ErrCredential)
		telemetry.RecordError(span, err)
		return nil, err
	}
	return env.Content, nil
}

// get performs a GET with browser-like headers and returns the body of a 2xx
// response.
func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Referer", "https://chzzk.naver.com/")
	req.Header.Set("Origin", "https://chzzk.naver.com")
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

// unwrapContent returns the "content" member when present and non-null,
// otherwise the whole document.
func unwrapContent(body []byte) json.RawMessage {
	var env struct {
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(body, &env); err == nil && len(env.Content) > 0 && string(env.Content) != "null" {
		return env.Content
	}
	return body
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
