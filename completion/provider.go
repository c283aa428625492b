// Package completion sends prompts to a hosted language model with retries
// and a short response cache, and builds the chat analysis prompts on top.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"
)

var (
	// ErrRateLimited marks a provider answer that asked us to slow down.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrUnauthorized marks a rejected API key. It is not retried.
	ErrUnauthorized = errors.New("invalid api key")
	// ErrUnknownProvider is returned by NewProvider for an unsupported kind.
	ErrUnknownProvider = errors.New("unknown completion provider")
	// ErrEmptyResponse means the provider answered without any text.
	ErrEmptyResponse = errors.New("empty completion response")
)

// Kind names a provider.
type Kind string

const (
	ChatGPT Kind = "chatgpt"
	Claude  Kind = "claude"
	Gemini  Kind = "gemini"
)

// ParseKind accepts the provider names used in configuration, case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "chatgpt", "openai", "gpt":
		return ChatGPT, nil
	case "claude", "anthropic":
		return Claude, nil
	case "gemini", "google":
		return Gemini, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
}

const (
	maxOutputTokens = 500
	temperature     = 0.7
	requestTimeout  = 30 * time.Second
)

// DefaultModel is used when no model is configured.
func DefaultModel(k Kind) string {
	switch k {
	case ChatGPT:
		return "gpt-4o-mini"
	case Claude:
		return "claude-3-5-haiku-latest"
	case Gemini:
		return "gemini-1.5-flash"
	}
	return ""
}

// Provider completes a single prompt with no retries of its own.
type Provider interface {
	Kind() Kind
	Complete(ctx context.Context, prompt string) (string, error)
}

// ProviderOptions overrides endpoints, mostly for tests.
type ProviderOptions struct {
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// NewProvider builds the provider for kind.
func NewProvider(kind Kind, apiKey string, opts ProviderOptions) (Provider, error) {
	if opts.Model == "" {
		opts.Model = DefaultModel(kind)
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: requestTimeout}
	}
	switch kind {
	case ChatGPT:
		o := []openaioption.RequestOption{
			openaioption.WithAPIKey(apiKey),
			openaioption.WithHTTPClient(hc),
			openaioption.WithMaxRetries(0),
		}
		if opts.BaseURL != "" {
			o = append(o, openaioption.WithBaseURL(opts.BaseURL))
		}
		return &openAIProvider{client: openai.NewClient(o...), model: opts.Model}, nil
	case Claude:
		o := []anthropicoption.RequestOption{
			anthropicoption.WithAPIKey(apiKey),
			anthropicoption.WithHTTPClient(hc),
			anthropicoption.WithMaxRetries(0),
		}
		if opts.BaseURL != "" {
			o = append(o, anthropicoption.WithBaseURL(opts.BaseURL))
		}
		return &anthropicProvider{client: anthropic.NewClient(o...), model: opts.Model}, nil
	case Gemini:
		base := opts.BaseURL
		if base == "" {
			base = "https://generativelanguage.googleapis.com"
		}
		return &geminiProvider{apiKey: apiKey, model: opts.Model, baseURL: strings.TrimRight(base, "/"), http: hc}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, kind)
}

// classifyStatus maps an HTTP status from any provider onto the package errors.
func classifyStatus(kind Kind, code int, detail string) error {
	switch {
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w", kind, ErrRateLimited)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%s: %w", kind, ErrUnauthorized)
	case code >= 500:
		return fmt.Errorf("%s server error (%d): %s", kind, code, detail)
	default:
		return fmt.Errorf("%s request failed (%d): %s", kind, code, detail)
	}
}

type openAIProvider struct {
	client openai.Client
	model  string
}

func (p *openAIProvider) Kind() Kind { return ChatGPT }

func (p *openAIProvider) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(p.model),
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		MaxTokens:   openai.Int(maxOutputTokens),
		Temperature: openai.Float(temperature),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", classifyStatus(ChatGPT, apiErr.StatusCode, apiErr.Message)
		}
		return "", fmt.Errorf("chatgpt: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("chatgpt: %w", ErrEmptyResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

type anthropicProvider struct {
	client anthropic.Client
	model  string
}

func (p *anthropicProvider) Kind() Kind { return Claude }

func (p *anthropicProvider) Complete(ctx context.Context, prompt string) (string, error) {
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: maxOutputTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", classifyStatus(Claude, apiErr.StatusCode, apiErr.Error())
		}
		return "", fmt.Errorf("claude: %w", err)
	}
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("claude: %w", ErrEmptyResponse)
	}
	return sb.String(), nil
}

type geminiProvider struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (p *geminiProvider) Kind() Kind { return Gemini }

func (p *geminiProvider) Complete(ctx context.Context, prompt string) (string, error) {
	var body geminiRequest
	body.Contents = []geminiContent{{Parts: []geminiPart{{Text: prompt}}}}
	body.GenerationConfig.Temperature = temperature
	body.GenerationConfig.MaxOutputTokens = maxOutputTokens
	buf, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	u := p.baseURL + "/v1beta/models/" + url.PathEscape(p.model) + ":generateContent?key=" + url.QueryEscape(p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.http.Do(req)
	if err != nil {
		// the url carries the key; keep it out of the error
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return "", fmt.Errorf("gemini: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("gemini: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(Gemini, resp.StatusCode, truncate(string(raw), 200))
	}
	var out geminiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("gemini: decode response: %w", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 || out.Candidates[0].Content.Parts[0].Text == "" {
		return "", fmt.Errorf("gemini: %w", ErrEmptyResponse)
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
