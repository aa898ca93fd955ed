// Package summarize produces short AI summaries for items.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrUnavailable covers a missing credential or a failed call. Callers leave
// the summary empty and carry on.
var ErrUnavailable = errors.New("summarization unavailable")

const summaryPrompt = `You write one- or two-sentence summaries of NWSL news and fan discussion for a daily newsletter.
Be factual, neutral and specific (names, scores, dates). Do not add opinions, emojis or hashtags.
Keep it under 45 words. Reply with the summary text only.

Title: %s

Text:
%s`

// Summarizer turns a title and body into a short summary.
type Summarizer interface {
	Summarize(ctx context.Context, title, body string) (string, error)
}

// LLM calls an OpenAI- or Anthropic-compatible chat endpoint.
type LLM struct {
	client   *resty.Client
	provider string // "openai" or "anthropic"
	model    string
	apiKey   string
	baseURL  string
}

// NewLLM creates a summarizer for the given provider.
func NewLLM(provider, model, apiKey, baseURL string) *LLM {
	if model == "" {
		switch provider {
		case "anthropic":
			model = "claude-3-5-haiku-latest"
		default:
			model = "gpt-4o-mini"
		}
	}
	if baseURL == "" {
		switch provider {
		case "anthropic":
			baseURL = "https://api.anthropic.com"
		default:
			baseURL = "https://api.openai.com"
		}
	}
	return &LLM{
		client:   resty.New().SetTimeout(60 * time.Second),
		provider: provider,
		model:    model,
		apiKey:   apiKey,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// Available reports whether a credential is configured.
func (l *LLM) Available() bool {
	return l != nil && l.apiKey != ""
}

func (l *LLM) Summarize(ctx context.Context, title, body string) (string, error) {
	if !l.Available() {
		return "", fmt.Errorf("%w: no api key", ErrUnavailable)
	}

	prompt := fmt.Sprintf(summaryPrompt, title, truncateStr(body, 4000))

	var (
		raw string
		err error
	)
	switch l.provider {
	case "anthropic":
		raw, err = l.callAnthropic(ctx, prompt)
	default:
		raw, err = l.callOpenAI(ctx, prompt)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	summary := cleanSummary(raw)
	if summary == "" {
		return "", fmt.Errorf("%w: empty response", ErrUnavailable)
	}
	return summary, nil
}

func (l *LLM) callOpenAI(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"model": l.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": 0.2,
		"max_tokens":  120,
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	resp, err := l.client.R().
		SetContext(ctx).
		SetAuthToken(l.apiKey).
		SetBody(payload).
		SetResult(&result).
		Post(l.baseURL + "/v1/chat/completions")
	if err != nil {
		return "", fmt.Errorf("call openai: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("openai status %d: %s", resp.StatusCode(), truncateStr(resp.String(), 300))
	}
	if len(result.Choices) == 0 {
		return "", errors.New("openai: no choices returned")
	}
	return result.Choices[0].Message.Content, nil
}

func (l *LLM) callAnthropic(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"model":      l.model,
		"max_tokens": 200,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	resp, err := l.client.R().
		SetContext(ctx).
		SetHeader("x-api-key", l.apiKey).
		SetHeader("anthropic-version", "2023-06-01").
		SetBody(payload).
		SetResult(&result).
		Post(l.baseURL + "/v1/messages")
	if err != nil {
		return "", fmt.Errorf("call anthropic: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("anthropic status %d: %s", resp.StatusCode(), truncateStr(resp.String(), 300))
	}
	if len(result.Content) == 0 {
		return "", errors.New("anthropic: no content returned")
	}
	return result.Content[0].Text, nil
}

// cleanSummary strips code fences and wrapping quotes some models add.
func cleanSummary(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s[3:], "\n"); idx >= 0 {
			s = s[3+idx+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	s = strings.Trim(strings.TrimSpace(s), `"`)
	return strings.Join(strings.Fields(s), " ")
}

func truncateStr(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
