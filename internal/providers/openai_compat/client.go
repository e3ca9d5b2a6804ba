// Package openai_compat talks to OpenAI-style chat completion APIs. MiniMax
// exposes the same request/response shape on a different path, so the same
// client serves both via the Endpoint knob.
package openai_compat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"workbench/internal/providers"
)

type Config struct {
	Name       string
	BaseURL    string
	APIKey     string
	Model      string
	Endpoint   string
	HTTPClient *http.Client
}

type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "chat_completions"
	}
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	return &Client{cfg: cfg}
}

var _ providers.Provider = (*Client)(nil)

func (c *Client) Name() string {
	return c.cfg.Name
}

func (c *Client) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return providers.ChatResponse{}, fmt.Errorf("%s: %w", c.cfg.Name, providers.ErrAuthMissing)
	}

	body, endpointURL, err := c.buildPayload(req)
	if err != nil {
		return providers.ChatResponse{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(body))
	if err != nil {
		return providers.ChatResponse{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+strings.TrimSpace(c.cfg.APIKey))

	resp, err := c.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return providers.ChatResponse{}, fmt.Errorf("%s request failed: %w", c.cfg.Name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return providers.ChatResponse{}, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return providers.ChatResponse{}, fmt.Errorf("%s status %d: %s", c.cfg.Name, resp.StatusCode, truncate(respBody, 200))
	}

	text, err := parseChatCompletions(respBody)
	if err != nil {
		return providers.ChatResponse{}, fmt.Errorf("%s: %w", c.cfg.Name, err)
	}
	return providers.ChatResponse{Text: text}, nil
}

func (c *Client) buildPayload(req providers.ChatRequest) ([]byte, string, error) {
	endpointURL, err := c.buildEndpointURL()
	if err != nil {
		return nil, "", err
	}

	messages := []map[string]string{}
	if strings.TrimSpace(req.SystemPrompt) != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.SystemPrompt})
	}
	for _, m := range req.Messages {
		role := "user"
		if m.Role == "assistant" {
			role = "assistant"
		}
		messages = append(messages, map[string]string{"role": role, "content": m.Content})
	}

	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	payload := map[string]any{
		"model":    model,
		"messages": messages,
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		payload["temperature"] = req.Temperature
	}
	if isMiniMaxEndpoint(c.cfg.Endpoint) {
		payload["stream"] = false
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("marshal chat completion payload: %w", err)
	}
	return b, endpointURL, nil
}

func (c *Client) buildEndpointURL() (string, error) {
	base := strings.TrimSuffix(strings.TrimSpace(c.cfg.BaseURL), "/")
	if base == "" {
		return "", fmt.Errorf("base url is empty")
	}
	if isMiniMaxEndpoint(c.cfg.Endpoint) {
		return base + "/text/chatcompletion_v2", nil
	}
	if strings.HasSuffix(base, "/chat/completions") {
		return base, nil
	}
	return base + "/chat/completions", nil
}

func parseChatCompletions(body []byte) (string, error) {
	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			Text string `json:"text"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty choices: %w", providers.ErrParse)
	}
	if strings.TrimSpace(resp.Choices[0].Message.Content) != "" {
		return resp.Choices[0].Message.Content, nil
	}
	if resp.Choices[0].Text != "" {
		return resp.Choices[0].Text, nil
	}
	return "", fmt.Errorf("missing message content: %w", providers.ErrParse)
}

func isMiniMaxEndpoint(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "chatcompletion_v2" || v == "minimax"
}

func truncate(b []byte, n int) string {
	s := string(b)
	if len(s) > n {
		return s[:n]
	}
	return s
}
