package agent

import (
	"workbench/internal/actions"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ProviderConfig struct {
	BaseURL    string `json:"baseUrl"`
	APIKey     string `json:"apiKey"`
	Model      string `json:"model"`
	APIVersion string `json:"apiVersion,omitempty"`
}

// RuntimeConfig is the per-request slice of local runtime settings. Empty
// fields fall back to server-side defaults.
type RuntimeConfig struct {
	Enabled    bool     `json:"enabled"`
	BinaryPath string   `json:"binaryPathOverride,omitempty"`
	PreferMCP  bool     `json:"preferMcp,omitempty"`
	Args       []string `json:"invocationArgs,omitempty"`
	TimeoutMs  int      `json:"timeoutMs,omitempty"`
}

// ProviderSettings selects exactly one active provider per request. The
// inactive configs are inert data and are never dispatched.
type ProviderSettings struct {
	Provider  string         `json:"provider"`
	OpenAI    ProviderConfig `json:"openai"`
	Anthropic ProviderConfig `json:"anthropic"`
	MiniMax   ProviderConfig `json:"minimax"`
	Runtime   RuntimeConfig  `json:"localRuntime"`
}

type ChatRequest struct {
	RequestID string           `json:"requestId"`
	Messages  []Message        `json:"messages"`
	Settings  ProviderSettings `json:"settings"`
}

type ChatResponse struct {
	RequestID string             `json:"requestId"`
	Provider  string             `json:"provider"`
	Reply     string             `json:"reply"`
	Actions   []actions.Proposal `json:"actions"`
	Fallback  bool               `json:"fallback"`
}
