// Package analyze turns redacted report text into a structured clinical
// summary. The implementation is picked once at construction time: a
// network-backed analyzer against an OpenAI-compatible API, or a deterministic
// mock for offline development and tests.
package analyze

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrAnalysisParse marks a completion that was not valid structured output.
var ErrAnalysisParse = errors.New("analysis output is not valid JSON")

// Analyzer produces a structured summary from already-redacted text.
type Analyzer interface {
	Analyze(ctx context.Context, redactedText string) (json.RawMessage, error)
}

// CompletionClient is the slice of the AI client the analyzer needs.
type CompletionClient interface {
	ChatCompletion(ctx context.Context, system, user string) (string, error)
}

const systemPrompt = "You are a clinical report summarizer. " +
	"Extract Blood Sugar and Cholesterol values from the provided text. " +
	"Return valid JSON only, with no commentary and no markdown."

// AIAnalyzer calls an external completion service and parses its output.
type AIAnalyzer struct {
	client CompletionClient
}

func NewAIAnalyzer(client CompletionClient) *AIAnalyzer {
	return &AIAnalyzer{client: client}
}

func (a *AIAnalyzer) Analyze(ctx context.Context, redactedText string) (json.RawMessage, error) {
	user := fmt.Sprintf("Extract Blood Sugar and Cholesterol values from this text.\nReturn valid JSON only:\n---\n%s\n---", redactedText)

	content, err := a.client.ChatCompletion(ctx, systemPrompt, user)
	if err != nil {
		return nil, fmt.Errorf("completion request: %w", err)
	}

	raw := []byte(stripCodeFence(content))
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: %q", ErrAnalysisParse, truncate(content, 256))
	}
	return raw, nil
}

// stripCodeFence unwraps ```json ... ``` fences that models add despite the
// JSON-only instruction.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
