// Package llm provides a uniform chat interface over external model providers.
package llm

import (
	"context"

	"github.com/duitwise/duitwise-engine/pkg/models"
)

// Message role constants.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatOptions control a single chat completion call.
type ChatOptions struct {
	Temperature float64
	MaxTokens   int
}

// Usage reports provider token accounting, when the provider returns it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResult is the outcome of a chat completion call.
type ChatResult struct {
	Content string `json:"content"`
	Usage   *Usage `json:"usage,omitempty"`
}

// ChatClient is the uniform gateway contract every provider adapter
// implements. Use this interface for dependency injection to enable mocking
// in tests.
type ChatClient interface {
	// Chat performs a single chat completion call.
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (*ChatResult, error)

	// Provider returns the provider this client talks to.
	Provider() models.Provider

	// Model returns the configured model name.
	Model() string
}

// ChatStreamer is an optional capability. Adapters that support token
// streaming implement it; callers detect it with a type assertion. Its
// absence silently forces the non-streaming code path.
type ChatStreamer interface {
	// ChatStream performs a chat completion, invoking onDelta for each text
	// fragment as it arrives, and returns the complete result.
	ChatStream(ctx context.Context, messages []Message, opts ChatOptions, onDelta func(text string) error) (*ChatResult, error)
}
