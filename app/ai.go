package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/onnwee/chatdeck/completion"
)

// AIStatus summarizes the AI helper configuration.
type AIStatus struct {
	Configured        bool   `json:"configured"`
	Provider          string `json:"provider"`
	HasTargetAudience bool   `json:"has_target_audience"`
	ChatBufferSize    int    `json:"chat_buffer_size"`
}

// ConfigureAI selects the completion provider and its key.
func (a *App) ConfigureAI(provider, apiKey string) error {
	kind, err := completion.ParseKind(provider)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if strings.TrimSpace(apiKey) == "" {
		return fmt.Errorf("%w: empty api key", ErrInvalidInput)
	}
	c, err := a.newCompleter(kind, apiKey)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.ai = &aiClient{kind: kind, completer: c}
	a.mu.Unlock()
	return nil
}

// SetTargetAudience records who the streamer is addressing. With a
// preference store it is also saved for the next start.
func (a *App) SetTargetAudience(t completion.TargetAudience) {
	t.Interests = append([]string(nil), t.Interests...)
	a.mu.Lock()
	a.audience = &t
	a.mu.Unlock()

	if a.prefs == nil {
		return
	}
	b, err := json.Marshal(t)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := a.prefs.Set(ctx, prefAudience, string(b)); err != nil {
		slog.Warn("target audience save failed", slog.String("component", "app"), slog.Any("err", err))
	}
}

// AnalyzeChatContext summarizes the buffered chat and keeps the result for
// RecommendScripts.
func (a *App) AnalyzeChatContext(ctx context.Context) (completion.ContextAnalysis, error) {
	a.mu.RLock()
	ai := a.ai
	lines := a.chatBuf.items()
	a.mu.RUnlock()

	if ai == nil {
		return completion.ContextAnalysis{}, fmt.Errorf("%w: AI service", ErrNotConfigured)
	}
	if len(lines) == 0 {
		return completion.ContextAnalysis{}, fmt.Errorf("%w: no chat messages to analyze", ErrInvalidInput)
	}

	analysis, err := completion.AnalyzeContext(ctx, ai.completer, lines)
	if err != nil {
		return completion.ContextAnalysis{}, err
	}
	a.mu.Lock()
	a.analysis = &analysis
	a.mu.Unlock()
	return analysis, nil
}

// RecommendScripts suggests talking points from the last analysis and the
// target audience.
func (a *App) RecommendScripts(ctx context.Context) (completion.ScriptRecommendation, error) {
	a.mu.RLock()
	ai, analysis, audience := a.ai, a.analysis, a.audience
	a.mu.RUnlock()

	switch {
	case ai == nil:
		return completion.ScriptRecommendation{}, fmt.Errorf("%w: AI service", ErrNotConfigured)
	case analysis == nil:
		return completion.ScriptRecommendation{}, fmt.Errorf("%w: no context analysis available, analyze chat first", ErrNotConfigured)
	case audience == nil:
		return completion.ScriptRecommendation{}, fmt.Errorf("%w: target audience", ErrNotConfigured)
	}
	return completion.RecommendScripts(ctx, ai.completer, *analysis, *audience)
}

// AIStatus reports the current AI configuration.
func (a *App) AIStatus() AIStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	st := AIStatus{
		Provider:          "none",
		HasTargetAudience: a.audience != nil,
		ChatBufferSize:    a.chatBuf.len(),
	}
	if a.ai != nil {
		st.Configured = true
		st.Provider = string(a.ai.kind)
	}
	return st
}
