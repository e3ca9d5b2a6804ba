package providers

import (
	"context"
	"errors"
)

var (
	ErrAuthMissing = errors.New("api key is empty")
	ErrParse       = errors.New("provider response unparseable")
	ErrUnsupported = errors.New("unsupported provider")
)

type Message struct {
	Role    string
	Content string
}

type ChatRequest struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	MaxTokens    int
	Temperature  float64
}

type ChatResponse struct {
	Text string
}

// Provider returns the model's raw text. Interpreting that text into a
// structured reply is the caller's concern; a provider only moves bytes.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	Name() string
}
