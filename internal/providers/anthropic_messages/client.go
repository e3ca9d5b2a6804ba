// Package anthropic_messages talks to the Anthropic Messages API.
package anthropic_messages

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

const defaultAPIVersion = "2023-06-01"

type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	APIVersion string
	HTTPClient *http.Client
}

type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	return &Client{cfg: cfg}
}

var _ providers.Provider = (*Client)(nil)

func (c *Client) Name() string {
	return "anthropic"
}

func (c *Client) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return providers.ChatResponse{}, fmt.Errorf("anthropic: %w", providers.ErrAuthMissing)
	}

	body, err := c.buildPayload(req)
	if err != nil {
		return providers.ChatResponse{}, err
	}

	endpoint := strings.TrimSuffix(strings.TrimSpace(c.cfg.BaseURL), "/") + "/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return providers.ChatResponse{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", strings.TrimSpace(c.cfg.APIKey))
	httpReq.Header.Set("anthropic-version", c.cfg.APIVersion)

	resp, err := c.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return providers.ChatResponse{}, fmt.Errorf("anthropic request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return providers.ChatResponse{}, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return providers.ChatResponse{}, fmt.Errorf("anthropic status %d: %s", resp.StatusCode, truncate(respBody, 200))
	}

	var decoded struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return providers.ChatResponse{}, fmt.Errorf("decode anthropic response: %w", err)
	}
	if len(decoded.Content) == 0 || strings.TrimSpace(decoded.Content[0].Text) == "" {
		return providers.ChatResponse{}, fmt.Errorf("anthropic response missing text: %w", providers.ErrParse)
	}
	return providers.ChatResponse{Text: decoded.Content[0].Text}, nil
}

func (c *Client) buildPayload(req providers.ChatRequest) ([]byte, error) {
	// System turns fold into user turns; the Messages API takes the system
	// prompt as a top-level field and rejects any other role values.
	messages := make([]map[string]string, 0, len(req.Messages))
	for _, m := range req.Messages {
		var role string
		switch m.Role {
		case "assistant":
			role = "assistant"
		case "user", "system":
			role = "user"
		default:
			continue
		}
		messages = append(messages, map[string]string{"role": role, "content": m.Content})
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1200
	}
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	payload := map[string]any{
		"model":      model,
		"max_tokens": maxTokens,
		"messages":   messages,
	}
	if req.Temperature > 0 {
		payload["temperature"] = req.Temperature
	}
	if strings.TrimSpace(req.SystemPrompt) != "" {
		payload["system"] = req.SystemPrompt
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal messages payload: %w", err)
	}
	return b, nil
}

func truncate(b []byte, n int) string {
	s := string(b)
	if len(s) > n {
		return s[:n]
	}
	return s
}
