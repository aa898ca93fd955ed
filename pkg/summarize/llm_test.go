package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLLMOpenAI(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"  \"Portland beat Seattle 2-1 on a late winner.\"  "}}]}`))
	}))
	defer srv.Close()

	l := NewLLM("openai", "", "sk-test", srv.URL)
	got, err := l.Summarize(context.Background(), "Thorns win", "Body text")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if got != "Portland beat Seattle 2-1 on a late winner." {
		t.Errorf("summary = %q", got)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotPath != "/v1/chat/completions" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody["model"] != "gpt-4o-mini" {
		t.Errorf("model = %v", gotBody["model"])
	}
}

func TestLLMAnthropic(t *testing.T) {
	var gotKey, gotVersion string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		if r.URL.Path != "/v1/messages" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"type":"text","text":"Reign add depth at fullback."}]}`))
	}))
	defer srv.Close()

	l := NewLLM("anthropic", "", "ant-key", srv.URL)
	got, err := l.Summarize(context.Background(), "Reign sign defender", "")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if got != "Reign add depth at fullback." {
		t.Errorf("summary = %q", got)
	}
	if gotKey != "ant-key" || gotVersion == "" {
		t.Errorf("headers key=%q version=%q", gotKey, gotVersion)
	}
}

func TestLLMUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	tests := []struct {
		name string
		llm  *LLM
	}{
		{"no key", NewLLM("openai", "", "", srv.URL)},
		{"http error", NewLLM("openai", "", "sk", srv.URL)},
		{"nil", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.llm.Summarize(context.Background(), "t", "b")
			if !errors.Is(err, ErrUnavailable) {
				t.Fatalf("err = %v, want ErrUnavailable", err)
			}
		})
	}
}

func TestCleanSummary(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain text", "plain text"},
		{"```\nfenced\nsummary\n```", "fenced summary"},
		{"\"quoted\"", "quoted"},
		{"  lots   of\n space ", "lots of space"},
	}
	for _, tt := range tests {
		if got := cleanSummary(tt.in); got != tt.want {
			t.Errorf("cleanSummary(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncateStr(t *testing.T) {
	long := strings.Repeat("é", 10)
	if got := truncateStr(long, 4); got != "éééé..." {
		t.Errorf("truncateStr = %q", got)
	}
	if got := truncateStr("short", 10); got != "short" {
		t.Errorf("truncateStr = %q", got)
	}
}
