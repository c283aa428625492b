package completion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// AnalysisWindow is how many of the most recent chat lines go into a prompt.
const AnalysisWindow = 20

// ErrNoJSON is returned when a reply holds no JSON object.
var ErrNoJSON = errors.New("no JSON object in response")

// ChatLine is one buffered chat message.
type ChatLine struct {
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// TargetAudience describes who the streamer is talking to.
type TargetAudience struct {
	AgeRange    string   `json:"age_range"`
	Gender      string   `json:"gender"`
	Interests   []string `json:"interests"`
	ContentType string   `json:"content_type"`
}

// ContextAnalysis summarizes recent chat.
type ContextAnalysis struct {
	Summary      string   `json:"summary"`
	MainTopics   []string `json:"main_topics"`
	Sentiment    string   `json:"sentiment"`
	KeyQuestions []string `json:"key_questions"`
}

// ScriptRecommendation is a set of suggested lines for the streamer.
type ScriptRecommendation struct {
	Scripts         []string `json:"scripts"`
	ContextBased    bool     `json:"context_based"`
	AudienceAligned bool     `json:"audience_aligned"`
}

// Completer is satisfied by *Gateway.
type Completer interface {
	Complete(ctx context.Context, kind, prompt string) (string, error)
}

// AnalyzeContext asks the model to summarize the most recent lines.
func AnalyzeContext(ctx context.Context, c Completer, lines []ChatLine) (ContextAnalysis, error) {
	var out ContextAnalysis
	reply, err := c.Complete(ctx, "context", ContextPrompt(lines))
	if err != nil {
		return out, err
	}
	if err := decodeReply(reply, &out); err != nil {
		return out, fmt.Errorf("context analysis: %w", err)
	}
	return out, nil
}

// RecommendScripts asks the model for lines fitting the analysis and audience.
func RecommendScripts(ctx context.Context, c Completer, analysis ContextAnalysis, audience TargetAudience) (ScriptRecommendation, error) {
	var out ScriptRecommendation
	reply, err := c.Complete(ctx, "script", ScriptPrompt(analysis, audience))
	if err != nil {
		return out, err
	}
	if err := decodeReply(reply, &out); err != nil {
		return out, fmt.Errorf("script recommendations: %w", err)
	}
	return out, nil
}

// ContextPrompt renders the analysis prompt for the last AnalysisWindow lines.
func ContextPrompt(lines []ChatLine) string {
	if len(lines) > AnalysisWindow {
		lines = lines[len(lines)-AnalysisWindow:]
	}
	var sb strings.Builder
	sb.WriteString("Analyze these chat messages:\n\n")
	for _, l := range lines {
		sb.WriteString(l.Username)
		sb.WriteString(": ")
		sb.WriteString(l.Message)
		sb.WriteByte('\n')
	}
	sb.WriteString(`
Reply in the language of the chat, as JSON in exactly this shape:
{
  "summary": "a short summary of the conversation",
  "main_topics": ["topic 1", "topic 2"],
  "sentiment": "positive/neutral/negative",
  "key_questions": ["question viewers are asking 1", "question 2"]
}`)
	return sb.String()
}

// ScriptPrompt renders the recommendation prompt.
func ScriptPrompt(a ContextAnalysis, t TargetAudience) string {
	return fmt.Sprintf(`Suggest talking points for a live streamer.

Current chat context:
- Summary: %s
- Main topics: %s
- Mood: %s
- Key questions: %s

Target audience:
- Age range: %s
- Gender: %s
- Interests: %s
- Content type: %s

Reply in the language of the chat, as JSON in exactly this shape:
{
  "scripts": ["suggested line 1", "suggested line 2", "suggested line 3"],
  "context_based": true,
  "audience_aligned": true
}`,
		a.Summary, strings.Join(a.MainTopics, ", "), a.Sentiment, strings.Join(a.KeyQuestions, ", "),
		t.AgeRange, t.Gender, strings.Join(t.Interests, ", "), t.ContentType)
}

// ExtractJSON returns the span from the first '{' to the last '}'. Models
// often wrap the object in prose or code fences.
func ExtractJSON(reply string) (string, bool) {
	start := strings.IndexByte(reply, '{')
	end := strings.LastIndexByte(reply, '}')
	if start < 0 || end < start {
		return "", false
	}
	return reply[start : end+1], true
}

func decodeReply(reply string, v any) error {
	obj, ok := ExtractJSON(reply)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoJSON, truncate(reply, 200))
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}
