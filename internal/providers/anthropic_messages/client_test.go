package anthropic_messages

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"workbench/internal/providers"
)

func TestBuildPayloadRoles(t *testing.T) {
	c := New(Config{BaseURL: "https://api.anthropic.com/v1", APIKey: "k", Model: "claude-3-5-haiku"})

	body, err := c.buildPayload(providers.ChatRequest{
		SystemPrompt: "be brief",
		Messages: []providers.Message{
			{Role: "system", Content: "extra context"},
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello"},
			{Role: "tool", Content: "ignored"},
		},
	})
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}

	var payload struct {
		System    string `json:"system"`
		MaxTokens int    `json:"max_tokens"`
		Messages  []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.System != "be brief" {
		t.Fatalf("system = %q", payload.System)
	}
	if payload.MaxTokens != 1200 {
		t.Fatalf("max_tokens = %d", payload.MaxTokens)
	}
	if len(payload.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(payload.Messages))
	}
	if payload.Messages[0].Role != "user" || payload.Messages[2].Role != "assistant" {
		t.Fatalf("unexpected roles %+v", payload.Messages)
	}
}

func TestChatRejectsEmptyKey(t *testing.T) {
	c := New(Config{BaseURL: "https://api.anthropic.com/v1"})
	_, err := c.Chat(context.Background(), providers.ChatRequest{Model: "m"})
	if !errors.Is(err, providers.ErrAuthMissing) {
		t.Fatalf("expected ErrAuthMissing, got %v", err)
	}
}

func TestChatRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "secret" {
			t.Errorf("unexpected api key header %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got != "2023-06-01" {
			t.Errorf("unexpected version header %q", got)
		}
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"done"}]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/v1", APIKey: "secret", Model: "claude-3-5-haiku"})
	resp, err := c.Chat(context.Background(), providers.ChatRequest{
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Text != "done" {
		t.Fatalf("unexpected text %q", resp.Text)
	}
}
