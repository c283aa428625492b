package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v5"

	"github.com/onnwee/chatdeck/telemetry"
)

const (
	DefaultMaxTries       = 3
	DefaultRetryDelay     = 2 * time.Second
	DefaultRateLimitPause = 10 * time.Second
	DefaultCacheTTL       = 5 * time.Minute

	cacheKeyPromptBytes = 100
)

// Gateway wraps a Provider with bounded retries and a response cache.
type Gateway struct {
	provider       Provider
	maxTries       uint
	retryDelay     time.Duration
	rateLimitPause time.Duration
	cacheTTL       time.Duration
	now            func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	text    string
	expires time.Time
}

// Option tunes a Gateway.
type Option func(*Gateway)

// WithMaxTries bounds the attempts per prompt.
func WithMaxTries(n uint) Option { return func(g *Gateway) { g.maxTries = n } }

// WithRetryDelay sets the linear step: attempt n waits n*d.
func WithRetryDelay(d time.Duration) Option { return func(g *Gateway) { g.retryDelay = d } }

// WithRateLimitPause sets the wait after a rate limited attempt.
func WithRateLimitPause(d time.Duration) Option { return func(g *Gateway) { g.rateLimitPause = d } }

// WithCacheTTL sets how long responses are reused. Zero disables the cache.
func WithCacheTTL(d time.Duration) Option { return func(g *Gateway) { g.cacheTTL = d } }

// NewGateway returns a gateway over p.
func NewGateway(p Provider, opts ...Option) *Gateway {
	g := &Gateway{
		provider:       p,
		maxTries:       DefaultMaxTries,
		retryDelay:     DefaultRetryDelay,
		rateLimitPause: DefaultRateLimitPause,
		cacheTTL:       DefaultCacheTTL,
		now:            time.Now,
		cache:          make(map[string]cacheEntry),
	}
	for _, o := range opts {
		o(g)
	}
	if g.maxTries == 0 {
		g.maxTries = 1
	}
	return g
}

// Kind reports the underlying provider.
func (g *Gateway) Kind() Kind { return g.provider.Kind() }

// Complete returns the provider's answer to prompt. kind namespaces the cache
// so different prompt families never share entries.
func (g *Gateway) Complete(ctx context.Context, kind, prompt string) (string, error) {
	key := cacheKey(kind, prompt)
	if text, ok := g.cached(key); ok {
		telemetry.CountCompletion(string(g.provider.Kind()), "cached")
		return text, nil
	}

	ctx, span := telemetry.StartSpan(ctx, "completion", "completion.complete")
	defer span.End()

	b := &linearBackOff{step: g.retryDelay, pause: g.rateLimitPause}
	attempt := 0
	var text string
	var err error
	telemetry.TimeFunc(telemetry.CompletionDuration, func() {
		text, err = backoff.Retry(ctx, func() (string, error) {
			attempt++
			out, err := g.provider.Complete(ctx, prompt)
			if err == nil {
				return out, nil
			}
			b.rateLimited = IsRateLimited(err)
			slog.Warn("completion attempt failed",
				slog.String("component", "completion"),
				slog.String("provider", string(g.provider.Kind())),
				slog.Int("attempt", attempt),
				slog.Any("err", err))
			if errors.Is(err, ErrUnauthorized) {
				return "", backoff.Permanent(err)
			}
			return "", err
		}, backoff.WithBackOff(b), backoff.WithMaxTries(g.maxTries))
	})
	if err != nil {
		telemetry.RecordError(span, err)
		telemetry.CountCompletion(string(g.provider.Kind()), "error")
		return "", fmt.Errorf("completion failed after %d attempts: %w", attempt, err)
	}
	telemetry.SetSpanSuccess(span)
	telemetry.CountCompletion(string(g.provider.Kind()), "ok")
	g.store(key, text)
	return text, nil
}

// IsRateLimited reports whether err is a rate limit signal from a provider.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "429")
}

func (g *Gateway) cached(key string) (string, bool) {
	if g.cacheTTL <= 0 {
		return "", false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.cache[key]
	if !ok {
		return "", false
	}
	if !g.now().Before(e.expires) {
		delete(g.cache, key)
		return "", false
	}
	return e.text, true
}

func (g *Gateway) store(key, text string) {
	if g.cacheTTL <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	for k, e := range g.cache {
		if !now.Before(e.expires) {
			delete(g.cache, k)
		}
	}
	g.cache[key] = cacheEntry{text: text, expires: now.Add(g.cacheTTL)}
}

// cacheKey is kind plus at most the first 100 bytes of prompt, cut on a rune
// boundary.
func cacheKey(kind, prompt string) string {
	if len(prompt) > cacheKeyPromptBytes {
		cut := cacheKeyPromptBytes
		for cut > 0 && !utf8.RuneStart(prompt[cut]) {
			cut--
		}
		prompt = prompt[:cut]
	}
	return kind + ":" + prompt
}

// linearBackOff waits n*step before the (n+1)th attempt, or pause when the
// last attempt was rate limited.
type linearBackOff struct {
	step        time.Duration
	pause       time.Duration
	n           int
	rateLimited bool
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	if b.rateLimited {
		return b.pause
	}
	return time.Duration(b.n) * b.step
}

func (b *linearBackOff) Reset() {
	b.n = 0
	b.rateLimited = false
}
